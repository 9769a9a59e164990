package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"drmp-assignment/internal/domain"

	"github.com/google/uuid"
)

// MemoryRulesRepo 分配规则内存实现
type MemoryRulesRepo struct {
	mu    sync.RWMutex
	rules map[string]domain.AssignmentRule
}

func NewMemoryRulesRepo(rules ...domain.AssignmentRule) *MemoryRulesRepo {
	r := &MemoryRulesRepo{rules: map[string]domain.AssignmentRule{}}
	for _, rule := range rules {
		r.rules[rule.RuleID] = rule
	}
	return r
}

var _ RulesRepository = (*MemoryRulesRepo)(nil)

func (r *MemoryRulesRepo) GetRule(_ context.Context, ruleID string) (*domain.AssignmentRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[ruleID]
	if !ok {
		return nil, domain.NotFound("assignment rule", ruleID)
	}
	return &rule, nil
}

func (r *MemoryRulesRepo) ListRules(_ context.Context, filter RuleFilter) ([]*domain.AssignmentRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.AssignmentRule{}
	for _, rule := range r.rules {
		if filter.EnabledOnly && !rule.Enabled {
			continue
		}
		if filter.RuleType != "" && rule.RuleType != filter.RuleType {
			continue
		}
		rule := rule
		out = append(out, &rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out, nil
}

func (r *MemoryRulesRepo) CreateRule(_ context.Context, rule *domain.AssignmentRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rule.RuleID == "" {
		rule.RuleID = uuid.New().String()
	}
	if _, ok := r.rules[rule.RuleID]; ok {
		return domain.NewError(domain.KindConflict, "assignment rule already exists: %s", rule.RuleID)
	}
	rule.UsageCount, rule.SuccessCount = 0, 0
	r.rules[rule.RuleID] = *rule
	return nil
}

func (r *MemoryRulesRepo) UpdateRule(_ context.Context, rule *domain.AssignmentRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rules[rule.RuleID]
	if !ok {
		return domain.NotFound("assignment rule", rule.RuleID)
	}
	// 使用统计只由 RecordUsage 修改
	next := *rule
	next.UsageCount = cur.UsageCount
	next.SuccessCount = cur.SuccessCount
	next.LastUsedAt = cur.LastUsedAt
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	r.rules[rule.RuleID] = next
	return nil
}

func (r *MemoryRulesRepo) DeleteRule(_ context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[ruleID]; !ok {
		return domain.NotFound("assignment rule", ruleID)
	}
	delete(r.rules, ruleID)
	return nil
}

func (r *MemoryRulesRepo) RecordUsage(_ context.Context, ruleID string, success bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[ruleID]
	if !ok {
		return domain.NotFound("assignment rule", ruleID)
	}
	rule.UsageCount++
	if success {
		rule.SuccessCount++
	}
	rule.LastUsedAt = &at
	r.rules[ruleID] = rule
	return nil
}
