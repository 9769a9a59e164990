package domain

import "time"

// PackageStatus 案件包状态（只能通过 statemachine 变更）
type PackageStatus string

const (
	PackageStatusDraft      PackageStatus = "DRAFT"
	PackageStatusPublished  PackageStatus = "PUBLISHED"
	PackageStatusWithdrawn  PackageStatus = "WITHDRAWN"
	PackageStatusAssigned   PackageStatus = "ASSIGNED"
	PackageStatusInProgress PackageStatus = "IN_PROGRESS"
	PackageStatusCompleted  PackageStatus = "COMPLETED"
)

// AllPackageStatuses 全部状态（固定顺序）
var AllPackageStatuses = []PackageStatus{
	PackageStatusDraft,
	PackageStatusPublished,
	PackageStatusWithdrawn,
	PackageStatusAssigned,
	PackageStatusInProgress,
	PackageStatusCompleted,
}

// IsTerminal 终态：WITHDRAWN, COMPLETED
func (s PackageStatus) IsTerminal() bool {
	return s == PackageStatusWithdrawn || s == PackageStatusCompleted
}

// RequiresDisposalOrg disposal_org_id 仅在这些状态下非空
func (s PackageStatus) RequiresDisposalOrg() bool {
	return s == PackageStatusAssigned || s == PackageStatusInProgress || s == PackageStatusCompleted
}

// Valid 是否为已知状态
func (s PackageStatus) Valid() bool {
	for _, v := range AllPackageStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// PackageEvent 触发状态变更的事件
type PackageEvent string

const (
	EventPublish  PackageEvent = "PUBLISH"
	EventWithdraw PackageEvent = "WITHDRAW"
	EventAssign   PackageEvent = "ASSIGN"
	EventAccept   PackageEvent = "ACCEPT"
	EventReject   PackageEvent = "REJECT"
	EventComplete PackageEvent = "COMPLETE"
)

// CasePackage 案件包（对应 case_packages 表）
type CasePackage struct {
	PackageID                string        `json:"package_id" db:"package_id"`
	PackageCode              string        `json:"package_code" db:"package_code"`
	PackageName              string        `json:"package_name" db:"package_name"`
	Status                   PackageStatus `json:"status" db:"status"`
	TotalAmount              float64       `json:"total_amount" db:"total_amount"`
	RemainingAmount          float64       `json:"remaining_amount" db:"remaining_amount"`
	CaseCount                int           `json:"case_count" db:"case_count"`
	ExpectedRecoveryRate     float64       `json:"expected_recovery_rate" db:"expected_recovery_rate"` // 0..1
	ExpectedDisposalDays     int           `json:"expected_disposal_days" db:"expected_disposal_days"`
	PreferredDisposalMethods []string      `json:"preferred_disposal_methods,omitempty" db:"preferred_disposal_methods"`
	Region                   string        `json:"region,omitempty" db:"region"`                     // 主要债务人地区
	RequiredRegions          []string      `json:"required_regions,omitempty" db:"required_regions"` // 明确的地区约束
	CaseType                 string        `json:"case_type,omitempty" db:"case_type"`
	SourceOrgID              string        `json:"source_org_id" db:"source_org_id"`
	DisposalOrgID            *string       `json:"disposal_org_id,omitempty" db:"disposal_org_id"`

	PublishedAt *time.Time `json:"published_at,omitempty" db:"published_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty" db:"assigned_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// Version 乐观锁版本号，每次持久化状态变更 +1
	Version int64 `json:"version" db:"version"`
}

// TargetRegions 地理匹配使用的目标地区：优先 RequiredRegions，否则 Region
func (p *CasePackage) TargetRegions() []string {
	if len(p.RequiredRegions) > 0 {
		return p.RequiredRegions
	}
	if p.Region != "" {
		return []string{p.Region}
	}
	return nil
}

// HasRegionConstraint 是否携带明确的地区约束
func (p *CasePackage) HasRegionConstraint() bool {
	return len(p.RequiredRegions) > 0
}

// Validate 校验不变量
func (p *CasePackage) Validate() error {
	if p.PackageID == "" {
		return Validation("package_id is required")
	}
	if !p.Status.Valid() {
		return Validation("invalid package status: %s", p.Status)
	}
	if p.TotalAmount < 0 || p.RemainingAmount < 0 {
		return Validation("amounts must not be negative")
	}
	if p.RemainingAmount > p.TotalAmount {
		return Validation("remaining_amount %.2f exceeds total_amount %.2f", p.RemainingAmount, p.TotalAmount)
	}
	if p.CaseCount < 0 {
		return Validation("case_count must not be negative")
	}
	hasOrg := p.DisposalOrgID != nil && *p.DisposalOrgID != ""
	if hasOrg != p.Status.RequiresDisposalOrg() {
		return Validation("disposal organization presence does not match status %s", p.Status)
	}
	return nil
}

// Clone 深拷贝（批量分配在内存副本上操作）
func (p *CasePackage) Clone() *CasePackage {
	c := *p
	c.PreferredDisposalMethods = append([]string(nil), p.PreferredDisposalMethods...)
	c.RequiredRegions = append([]string(nil), p.RequiredRegions...)
	if p.DisposalOrgID != nil {
		v := *p.DisposalOrgID
		c.DisposalOrgID = &v
	}
	c.PublishedAt = cloneTime(p.PublishedAt)
	c.AssignedAt = cloneTime(p.AssignedAt)
	c.AcceptedAt = cloneTime(p.AcceptedAt)
	c.ClosedAt = cloneTime(p.ClosedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
