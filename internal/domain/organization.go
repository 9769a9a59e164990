package domain

// OrgStatus 机构状态
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "ACTIVE"
	OrgStatusInactive  OrgStatus = "INACTIVE"
	OrgStatusSuspended OrgStatus = "SUSPENDED"
	OrgStatusPending   OrgStatus = "PENDING"
)

// RegionNationwide 服务全国的机构
const RegionNationwide = "NATIONWIDE"

// PerformanceSummary 机构历史处置表现
type PerformanceSummary struct {
	CompletedPackages int     `json:"completed_packages"`
	AvgRecoveryRate   float64 `json:"avg_recovery_rate"` // 0..1
	AvgDisposalDays   float64 `json:"avg_disposal_days"`
}

// Organization 处置机构快照（外部只读数据）
type Organization struct {
	OrgID                 string             `json:"org_id"`
	OrgName               string             `json:"org_name"`
	OrgType               string             `json:"org_type"`
	Status                OrgStatus          `json:"status"`
	ServiceRegions        []string           `json:"service_regions"`
	CaseTypes             []string           `json:"case_types,omitempty"`
	DisposalMethods       []string           `json:"disposal_methods,omitempty"`
	MonthlyCaseCapacity   int                `json:"monthly_case_capacity"`
	CurrentLoadPercentage *float64           `json:"current_load_percentage,omitempty"` // nil = 未上报
	MembershipPaid        bool               `json:"membership_paid"`
	Performance           PerformanceSummary `json:"performance"`
	ContactPerson         string             `json:"contact_person,omitempty"`
	ContactPhone          string             `json:"contact_phone,omitempty"`
	ContactEmail          string             `json:"contact_email,omitempty"`
}

// ServesRegion 是否服务某地区
func (o *Organization) ServesRegion(region string) bool {
	for _, r := range o.ServiceRegions {
		if r == region || r == RegionNationwide {
			return true
		}
	}
	return false
}
