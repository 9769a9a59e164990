// Package rules 分配规则引擎：条件匹配、机构过滤、分数门槛与使用统计
package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/strategy"
)

// StrategyRegistry 校验规则动作中的策略名称
type StrategyRegistry interface {
	Has(name string) bool
}

// EvaluationResult 规则评估结果
type EvaluationResult struct {
	Matched           bool     `json:"matched"`
	MatchedCriteria   []string `json:"matched_criteria"`
	UnmatchedCriteria []string `json:"unmatched_criteria"`
	Reason            string   `json:"reason"`
}

// Engine 规则引擎（无状态，可并发使用）
type Engine struct {
	strategies StrategyRegistry
}

// NewEngine 创建规则引擎
func NewEngine(strategies StrategyRegistry) *Engine {
	return &Engine{strategies: strategies}
}

// ValidateRule 校验规则定义
func (e *Engine) ValidateRule(rule *domain.AssignmentRule) error {
	if strings.TrimSpace(rule.RuleName) == "" {
		return domain.Validation("rule_name is required")
	}
	if !rule.RuleType.Valid() {
		return domain.Validation("invalid rule_type: %q", rule.RuleType)
	}
	if rule.MinMatchingScore < 0 || rule.MinMatchingScore > 100 {
		return domain.Validation("min_matching_score must be within [0, 100]")
	}

	c := rule.Conditions
	if c.MinAmount != nil && *c.MinAmount < 0 {
		return domain.Validation("min_amount must not be negative")
	}
	if c.MinAmount != nil && c.MaxAmount != nil && *c.MinAmount > *c.MaxAmount {
		return domain.Validation("min_amount %.2f exceeds max_amount %.2f", *c.MinAmount, *c.MaxAmount)
	}
	if c.MinCaseCount != nil && c.MaxCaseCount != nil && *c.MinCaseCount > *c.MaxCaseCount {
		return domain.Validation("min_case_count %d exceeds max_case_count %d", *c.MinCaseCount, *c.MaxCaseCount)
	}

	a := rule.Actions
	if a.MaxAssignments < 0 {
		return domain.Validation("max_assignments must not be negative")
	}
	for _, id := range a.IncludeOrgIDs {
		if containsString(a.ExcludeOrgIDs, id) {
			return domain.Validation("organization %s is both included and excluded", id)
		}
	}
	if a.Strategy != "" && e.strategies != nil && !e.strategies.Has(a.Strategy) {
		return domain.NewError(domain.KindUnknownStrategy, "unknown strategy: %q", a.Strategy)
	}
	return nil
}

// Evaluate 条件全部满足才匹配；空条件视为满足
func (e *Engine) Evaluate(rule *domain.AssignmentRule, pkg *domain.CasePackage) EvaluationResult {
	res := EvaluationResult{MatchedCriteria: []string{}, UnmatchedCriteria: []string{}}

	if !rule.Enabled {
		res.UnmatchedCriteria = append(res.UnmatchedCriteria, "enabled")
		res.Reason = fmt.Sprintf("rule %s is disabled", rule.RuleID)
		return res
	}
	if limit := rule.Actions.MaxAssignments; limit > 0 && rule.SuccessCount >= int64(limit) {
		res.UnmatchedCriteria = append(res.UnmatchedCriteria, "max_assignments")
		res.Reason = fmt.Sprintf("rule %s reached max assignments (%d)", rule.RuleID, limit)
		return res
	}

	check := func(name string, applies, ok bool) {
		if !applies {
			return
		}
		if ok {
			res.MatchedCriteria = append(res.MatchedCriteria, name)
		} else {
			res.UnmatchedCriteria = append(res.UnmatchedCriteria, name)
		}
	}

	c := rule.Conditions
	check("regions", len(c.Regions) > 0, intersectsAny(c.Regions, pkg.TargetRegions()))
	check("min_amount", c.MinAmount != nil, c.MinAmount != nil && pkg.TotalAmount >= *c.MinAmount)
	check("max_amount", c.MaxAmount != nil, c.MaxAmount != nil && pkg.TotalAmount <= *c.MaxAmount)
	check("case_types", len(c.CaseTypes) > 0, containsString(c.CaseTypes, pkg.CaseType))
	check("min_case_count", c.MinCaseCount != nil, c.MinCaseCount != nil && pkg.CaseCount >= *c.MinCaseCount)
	check("max_case_count", c.MaxCaseCount != nil, c.MaxCaseCount != nil && pkg.CaseCount <= *c.MaxCaseCount)
	check("source_org_ids", len(c.SourceOrgIDs) > 0, containsString(c.SourceOrgIDs, pkg.SourceOrgID))

	res.Matched = len(res.UnmatchedCriteria) == 0
	if res.Matched {
		res.Reason = fmt.Sprintf("package %s satisfies rule %s", pkg.PackageID, rule.RuleID)
	} else {
		res.Reason = fmt.Sprintf("package %s does not satisfy rule %s: %s",
			pkg.PackageID, rule.RuleID, strings.Join(res.UnmatchedCriteria, ", "))
	}
	return res
}

// FilterOrganizations 包含列表限定范围，排除列表剔除；保持输入顺序
func (e *Engine) FilterOrganizations(rule *domain.AssignmentRule, orgs []domain.Organization) []domain.Organization {
	a := rule.Actions
	if len(a.IncludeOrgIDs) == 0 && len(a.ExcludeOrgIDs) == 0 {
		return orgs
	}
	out := make([]domain.Organization, 0, len(orgs))
	for _, o := range orgs {
		if len(a.IncludeOrgIDs) > 0 && !containsString(a.IncludeOrgIDs, o.OrgID) {
			continue
		}
		if containsString(a.ExcludeOrgIDs, o.OrgID) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// CheckScore 候选得分低于规则门槛时返回 SCORE_BELOW_THRESHOLD
func (e *Engine) CheckScore(rule *domain.AssignmentRule, c domain.AssignmentCandidate) error {
	if c.Score < rule.MinMatchingScore {
		return domain.NewError(domain.KindScoreBelowThreshold,
			"best candidate %s scored %.2f, below rule minimum %.2f", c.OrgID, c.Score, rule.MinMatchingScore)
	}
	return nil
}

// StrategyFor 规则指定的策略；返回空字符串表示按案件包自动选择
func (e *Engine) StrategyFor(rule *domain.AssignmentRule) string {
	if rule.Actions.Strategy != "" {
		return strategy.NormalizeName(rule.Actions.Strategy)
	}
	switch rule.RuleType {
	case domain.RuleTypeRegionBased:
		return strategy.NameGeographyFirst
	case domain.RuleTypeCapacityBased:
		return strategy.NameCapacityBalanced
	case domain.RuleTypePerformanceBased:
		return strategy.NamePerformanceFirst
	}
	return ""
}

// RecordUsage 内存中更新使用统计（持久化由仓储原子递增完成）
func (e *Engine) RecordUsage(rule *domain.AssignmentRule, success bool, at time.Time) {
	rule.UsageCount++
	if success {
		rule.SuccessCount++
	}
	rule.LastUsedAt = &at
}

// SelectRules 返回匹配的启用规则：优先级降序，同优先级按 RuleID 升序
func (e *Engine) SelectRules(rules []domain.AssignmentRule, pkg *domain.CasePackage) []domain.AssignmentRule {
	out := make([]domain.AssignmentRule, 0, len(rules))
	for i := range rules {
		if e.Evaluate(&rules[i], pkg).Matched {
			out = append(out, rules[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// intersectsAny 规则地区包含 NATIONWIDE 时匹配任意案件包
func intersectsAny(ruleRegions, targets []string) bool {
	if containsString(ruleRegions, domain.RegionNationwide) {
		return true
	}
	for _, s := range targets {
		if containsString(ruleRegions, s) {
			return true
		}
	}
	return false
}
