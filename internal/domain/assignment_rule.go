package domain

import "time"

// RuleType 分配规则类型
type RuleType string

const (
	RuleTypeRegionBased      RuleType = "REGION_BASED"
	RuleTypeAmountBased      RuleType = "AMOUNT_BASED"
	RuleTypeCapacityBased    RuleType = "CAPACITY_BASED"
	RuleTypePerformanceBased RuleType = "PERFORMANCE_BASED"
	RuleTypeComprehensive    RuleType = "COMPREHENSIVE"
)

// Valid 是否为已知规则类型
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeRegionBased, RuleTypeAmountBased, RuleTypeCapacityBased,
		RuleTypePerformanceBased, RuleTypeComprehensive:
		return true
	}
	return false
}

// RuleConditions 规则匹配条件（全部 AND；空字段视为满足）
type RuleConditions struct {
	Regions      []string `json:"regions,omitempty"`
	MinAmount    *float64 `json:"min_amount,omitempty"`
	MaxAmount    *float64 `json:"max_amount,omitempty"`
	CaseTypes    []string `json:"case_types,omitempty"`
	MinCaseCount *int     `json:"min_case_count,omitempty"`
	MaxCaseCount *int     `json:"max_case_count,omitempty"`
	SourceOrgIDs []string `json:"source_org_ids,omitempty"`
}

// RuleActions 规则动作
type RuleActions struct {
	IncludeOrgIDs  []string `json:"include_org_ids,omitempty"`
	ExcludeOrgIDs  []string `json:"exclude_org_ids,omitempty"`
	MaxAssignments int      `json:"max_assignments,omitempty"` // 0 = 不限
	Notify         bool     `json:"notify,omitempty"`
	Strategy       string   `json:"strategy,omitempty"` // 空 = 按规则类型 / 案件包自动选择
}

// AssignmentRule 分配规则（对应 assignment_rules 表）
type AssignmentRule struct {
	RuleID           string         `json:"rule_id"`
	RuleName         string         `json:"rule_name"`
	RuleType         RuleType       `json:"rule_type"`
	Description      string         `json:"description,omitempty"`
	Priority         int            `json:"priority"`
	Enabled          bool           `json:"enabled"`
	MinMatchingScore float64        `json:"min_matching_score"`
	Conditions       RuleConditions `json:"conditions"`
	Actions          RuleActions    `json:"actions"`

	UsageCount   int64      `json:"usage_count"`
	SuccessCount int64      `json:"success_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SuccessRate 成功率 = success / usage（未使用时为 0）
func (r *AssignmentRule) SuccessRate() float64 {
	if r.UsageCount <= 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.UsageCount)
}
