package strategy

import (
	"sort"

	"drmp-assignment/internal/domain"
)

const (
	// DefaultLargeAmountThreshold 总金额达到该值（元）视为大额包
	DefaultLargeAmountThreshold = 10_000_000.0
	// DefaultHighRecoveryRate 预期回款率达到该值优先看业绩
	DefaultHighRecoveryRate = 0.6
)

// ManagerConfig 策略选择参数
type ManagerConfig struct {
	LargeAmountThreshold float64
	HighRecoveryRate     float64
}

// Info 策略元数据
type Info struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weights     Weights `json:"weights"`
}

// Manager 策略注册表（构造后只读）
type Manager struct {
	strategies map[string]Strategy
	cfg        ManagerConfig
}

// NewManager 创建注册表并注册全部内置策略
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.LargeAmountThreshold <= 0 {
		cfg.LargeAmountThreshold = DefaultLargeAmountThreshold
	}
	if cfg.HighRecoveryRate <= 0 {
		cfg.HighRecoveryRate = DefaultHighRecoveryRate
	}

	m := &Manager{strategies: map[string]Strategy{}, cfg: cfg}
	for _, s := range builtins() {
		m.strategies[s.Name()] = s
	}
	return m
}

func builtins() []Strategy {
	return []Strategy{
		&weightedStrategy{
			name:        NameComposite,
			description: "Balanced composite of region, capacity, experience and performance",
			weights:     Weights{Geographic: 0.30, Capacity: 0.25, Experience: 0.20, Performance: 0.25},
		},
		&weightedStrategy{
			name:                NameGeographyFirst,
			description:         "Region first; organizations outside the target regions are excluded",
			weights:             Weights{Geographic: 0.50, Capacity: 0.20, Experience: 0.15, Performance: 0.15},
			requireTargetRegion: true,
		},
		&weightedStrategy{
			name:        NameCapacityBalanced,
			description: "Prefers organizations with spare capacity, for large packages",
			weights:     Weights{Geographic: 0.15, Capacity: 0.50, Experience: 0.15, Performance: 0.20},
		},
		&weightedStrategy{
			name:        NamePerformanceFirst,
			description: "Prefers organizations with the best recovery history",
			weights:     Weights{Geographic: 0.15, Capacity: 0.15, Experience: 0.25, Performance: 0.45},
		},
	}
}

// GetStrategy 按名称获取策略
func (m *Manager) GetStrategy(name string) (Strategy, error) {
	s, ok := m.strategies[NormalizeName(name)]
	if !ok {
		return nil, domain.NewError(domain.KindUnknownStrategy, "unknown strategy: %q", name)
	}
	return s, nil
}

// Has 策略是否存在
func (m *Manager) Has(name string) bool {
	_, ok := m.strategies[NormalizeName(name)]
	return ok
}

// ListStrategies 按名称排序返回全部策略元数据
func (m *Manager) ListStrategies() []Info {
	out := make([]Info, 0, len(m.strategies))
	for _, s := range m.strategies {
		out = append(out, Info{Name: s.Name(), Description: s.Description(), Weights: s.Weights()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetOptimalStrategy 只依赖案件包属性的确定性选择：
// 大额 -> CAPACITY_BALANCED；有地区约束 -> GEOGRAPHY_FIRST；高回款预期 -> PERFORMANCE_FIRST；否则 COMPOSITE
func (m *Manager) GetOptimalStrategy(pkg *domain.CasePackage) Strategy {
	switch {
	case pkg.TotalAmount >= m.cfg.LargeAmountThreshold:
		return m.strategies[NameCapacityBalanced]
	case pkg.HasRegionConstraint():
		return m.strategies[NameGeographyFirst]
	case pkg.ExpectedRecoveryRate >= m.cfg.HighRecoveryRate:
		return m.strategies[NamePerformanceFirst]
	default:
		return m.strategies[NameComposite]
	}
}

// Resolve name 为空时自动选择，否则按名称查找
func (m *Manager) Resolve(name string, pkg *domain.CasePackage) (Strategy, error) {
	if NormalizeName(name) == "" {
		return m.GetOptimalStrategy(pkg), nil
	}
	return m.GetStrategy(name)
}
