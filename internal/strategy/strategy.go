// Package strategy 案件包分配策略（打分 + 排序）
//
// 策略集合在进程启动时固定（见 Manager），不支持运行时注册。
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"drmp-assignment/internal/domain"
)

// 策略名称
const (
	NameComposite        = "COMPOSITE"
	NameGeographyFirst   = "GEOGRAPHY_FIRST"
	NameCapacityBalanced = "CAPACITY_BALANCED"
	NamePerformanceFirst = "PERFORMANCE_FIRST"
)

// Strategy 分配策略
type Strategy interface {
	Name() string
	Description() string
	Weights() Weights
	// Execute 对机构集合打分，按总分降序、机构ID升序返回
	Execute(pkg *domain.CasePackage, orgs []domain.Organization) []domain.AssignmentCandidate
	// Assess 单机构评估；qualified=false 表示被该策略硬性排除
	Assess(org *domain.Organization, pkg *domain.CasePackage) (candidate domain.AssignmentCandidate, qualified bool)
}

// weightedStrategy 按权重组合四维得分的策略
type weightedStrategy struct {
	name        string
	description string
	weights     Weights

	// requireTargetRegion 为 true 时不服务目标地区的机构被排除
	requireTargetRegion bool
}

var _ Strategy = (*weightedStrategy)(nil)

func (s *weightedStrategy) Name() string        { return s.name }
func (s *weightedStrategy) Description() string { return s.description }
func (s *weightedStrategy) Weights() Weights    { return s.weights }

func (s *weightedStrategy) Assess(org *domain.Organization, pkg *domain.CasePackage) (domain.AssignmentCandidate, bool) {
	dims := ScoreDimensions(org, pkg)
	c := domain.AssignmentCandidate{
		OrgID:      org.OrgID,
		OrgName:    org.OrgName,
		Score:      s.weights.Composite(dims),
		Dimensions: dims,
		Strengths:  strengths(dims),
		Weaknesses: weaknesses(dims),
	}
	qualified := true
	if s.requireTargetRegion {
		if targets := pkg.TargetRegions(); len(targets) > 0 && !servesAny(org, targets) {
			qualified = false
		}
	}
	c.Reason = s.reason(c, qualified)
	return c, qualified
}

func (s *weightedStrategy) Execute(pkg *domain.CasePackage, orgs []domain.Organization) []domain.AssignmentCandidate {
	out := make([]domain.AssignmentCandidate, 0, len(orgs))
	for i := range orgs {
		c, ok := s.Assess(&orgs[i], pkg)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	Rank(out)
	return out
}

func (s *weightedStrategy) reason(c domain.AssignmentCandidate, qualified bool) string {
	d := c.Dimensions
	msg := fmt.Sprintf("%s score %.2f (geographic %.1f, capacity %.1f, experience %.1f, performance %.1f)",
		s.name, c.Score, d.Geographic, d.Capacity, d.Experience, d.Performance)
	if !qualified {
		msg += "; excluded: organization does not serve the target regions"
	}
	return msg
}

// Rank 稳定排序：总分降序，同分按机构ID升序；并写入名次
func Rank(candidates []domain.AssignmentCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].OrgID < candidates[j].OrgID
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}

func strengths(d domain.DimensionScores) []string {
	out := []string{}
	if d.Geographic >= strengthThreshold {
		out = append(out, "covers the package region")
	}
	if d.Capacity >= strengthThreshold {
		out = append(out, "ample spare capacity")
	}
	if d.Experience >= strengthThreshold {
		out = append(out, "experienced with similar packages")
	}
	if d.Performance >= strengthThreshold {
		out = append(out, "strong recovery track record")
	}
	return out
}

func weaknesses(d domain.DimensionScores) []string {
	out := []string{}
	if d.Geographic < weaknessThreshold {
		out = append(out, "outside the package region")
	}
	if d.Capacity < weaknessThreshold {
		out = append(out, "high current load")
	}
	if d.Experience < weaknessThreshold {
		out = append(out, "limited relevant experience")
	}
	if d.Performance < weaknessThreshold {
		out = append(out, "weak recovery track record")
	}
	return out
}

// NormalizeName 规范化策略名称
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
