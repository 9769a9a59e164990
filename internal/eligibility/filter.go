package eligibility

import "drmp-assignment/internal/domain"

// DefaultCeiling 负载上限（百分比），达到或超过即不可分配
const DefaultCeiling = 95.0

// Filter 机构资格过滤器（纯函数，无副作用）
type Filter struct {
	ceiling float64
}

// NewFilter 创建过滤器；ceiling <= 0 时使用 DefaultCeiling
func NewFilter(ceiling float64) *Filter {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Filter{ceiling: ceiling}
}

// Ceiling 当前负载上限
func (f *Filter) Ceiling() float64 { return f.ceiling }

// IsEligible status=ACTIVE && 会费已缴 && (负载未上报 || 负载 < 上限)
func (f *Filter) IsEligible(org *domain.Organization) bool {
	if org.Status != domain.OrgStatusActive || !org.MembershipPaid {
		return false
	}
	return org.CurrentLoadPercentage == nil || *org.CurrentLoadPercentage < f.ceiling
}

// Apply 返回可分配的机构子集，保持输入顺序
func (f *Filter) Apply(orgs []domain.Organization) []domain.Organization {
	out := make([]domain.Organization, 0, len(orgs))
	for i := range orgs {
		if f.IsEligible(&orgs[i]) {
			out = append(out, orgs[i])
		}
	}
	return out
}

// Reason 不可分配原因（可分配时为空）
func (f *Filter) Reason(org *domain.Organization) string {
	switch {
	case org.Status != domain.OrgStatusActive:
		return "organization status is " + string(org.Status)
	case !org.MembershipPaid:
		return "membership fee not paid"
	case org.CurrentLoadPercentage != nil && *org.CurrentLoadPercentage >= f.ceiling:
		return "organization load at or above ceiling"
	}
	return ""
}
