package strategy

import (
	"math"

	"drmp-assignment/internal/domain"
)

const (
	noTargetRegionScore  = 80.0
	regionMatchScore     = 100.0
	regionMismatchScore  = 20.0
	assumedLoad          = 30.0 // 机构未上报负载时的假定值
	minCapacityFit       = 0.5
	experienceVolumeCap  = 20 // 完成包数达到该值即满分
	experienceVolumePart = 70.0
	specialtyPart        = 15.0
	noHistoryScore       = 60.0
	recoveryPart         = 60.0
	speedPart            = 40.0

	strengthThreshold = 80.0
	weaknessThreshold = 50.0
)

// Weights 四个维度的权重，总和为 1
type Weights struct {
	Geographic  float64 `json:"geographic"`
	Capacity    float64 `json:"capacity"`
	Experience  float64 `json:"experience"`
	Performance float64 `json:"performance"`
}

// Sum 权重之和
func (w Weights) Sum() float64 {
	return w.Geographic + w.Capacity + w.Experience + w.Performance
}

// Composite 加权总分，保留两位小数并限制在 [0,100]
func (w Weights) Composite(d domain.DimensionScores) float64 {
	s := w.Geographic*d.Geographic +
		w.Capacity*d.Capacity +
		w.Experience*d.Experience +
		w.Performance*d.Performance
	return round2(clamp(s))
}

// ScoreDimensions 计算机构对案件包的四维得分
func ScoreDimensions(org *domain.Organization, pkg *domain.CasePackage) domain.DimensionScores {
	return domain.DimensionScores{
		Geographic:  round2(GeographicScore(org, pkg)),
		Capacity:    round2(CapacityScore(org, pkg)),
		Experience:  round2(ExperienceScore(org, pkg)),
		Performance: round2(PerformanceScore(org, pkg)),
	}
}

// GeographicScore 地理匹配：服务目标地区 100，否则 20；无目标地区 80
func GeographicScore(org *domain.Organization, pkg *domain.CasePackage) float64 {
	targets := pkg.TargetRegions()
	if len(targets) == 0 {
		return noTargetRegionScore
	}
	if servesAny(org, targets) {
		return regionMatchScore
	}
	return regionMismatchScore
}

// CapacityScore 产能得分，随负载单调递减（负载 100% 时为 0）
func CapacityScore(org *domain.Organization, pkg *domain.CasePackage) float64 {
	load := assumedLoad
	if org.CurrentLoadPercentage != nil {
		load = clamp(*org.CurrentLoadPercentage)
	}
	base := 100 - load

	fit := 1.0
	if org.MonthlyCaseCapacity > 0 && pkg.CaseCount > 0 {
		spare := float64(org.MonthlyCaseCapacity) * (100 - load) / 100
		if spare < float64(pkg.CaseCount) {
			fit = math.Max(minCapacityFit, spare/float64(pkg.CaseCount))
		}
	}
	return clamp(base * fit)
}

// ExperienceScore 经验得分：完成量 + 案件类型专长 + 处置方式专长
func ExperienceScore(org *domain.Organization, pkg *domain.CasePackage) float64 {
	completed := org.Performance.CompletedPackages
	if completed > experienceVolumeCap {
		completed = experienceVolumeCap
	}
	if completed < 0 {
		completed = 0
	}
	score := float64(completed) / experienceVolumeCap * experienceVolumePart

	if pkg.CaseType == "" || contains(org.CaseTypes, pkg.CaseType) {
		score += specialtyPart
	}
	if len(pkg.PreferredDisposalMethods) == 0 || intersects(org.DisposalMethods, pkg.PreferredDisposalMethods) {
		score += specialtyPart
	}
	return clamp(score)
}

// PerformanceScore 历史业绩：回款率 + 处置速度；无历史记录给中性分
func PerformanceScore(org *domain.Organization, pkg *domain.CasePackage) float64 {
	perf := org.Performance
	if perf.CompletedPackages <= 0 {
		return noHistoryScore
	}

	recovery := recoveryPart
	if pkg.ExpectedRecoveryRate > 0 {
		recovery = recoveryPart * math.Min(perf.AvgRecoveryRate/pkg.ExpectedRecoveryRate, 1)
	}

	speed := speedPart
	if pkg.ExpectedDisposalDays > 0 && perf.AvgDisposalDays > 0 {
		speed = speedPart * math.Min(float64(pkg.ExpectedDisposalDays)/perf.AvgDisposalDays, 1)
	}
	return clamp(recovery + speed)
}

func servesAny(org *domain.Organization, regions []string) bool {
	for _, r := range regions {
		if org.ServesRegion(r) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, s := range b {
		if contains(a, s) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
