package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/eligibility"
	"drmp-assignment/internal/repository"
	"drmp-assignment/internal/rules"
	"drmp-assignment/internal/strategy"

	"go.uber.org/zap"
)

// RuleService 分配规则管理（创建时即解析校验条件/动作）
type RuleService struct {
	rules      repository.RulesRepository
	packages   repository.PackagesRepository
	orgs       repository.OrganizationsRepository
	engine     *rules.Engine
	strategies *strategy.Manager
	filter     *eligibility.Filter
	logger     *zap.Logger
	now        func() time.Time
}

// NewRuleService 创建规则服务
func NewRuleService(
	rulesRepo repository.RulesRepository,
	packages repository.PackagesRepository,
	orgs repository.OrganizationsRepository,
	strategies *strategy.Manager,
	filter *eligibility.Filter,
	logger *zap.Logger,
) *RuleService {
	return &RuleService{
		rules:      rulesRepo,
		packages:   packages,
		orgs:       orgs,
		engine:     rules.NewEngine(strategies),
		strategies: strategies,
		filter:     filter,
		logger:     logger,
		now:        time.Now,
	}
}

// RuleRequest 创建 / 更新规则请求；conditions 与 actions 为原始 JSON
type RuleRequest struct {
	RuleName         string          `json:"rule_name"`
	RuleType         domain.RuleType `json:"rule_type"`
	Description      string          `json:"description"`
	Priority         int             `json:"priority"`
	Enabled          *bool           `json:"enabled"`
	MinMatchingScore float64         `json:"min_matching_score"`
	Conditions       json.RawMessage `json:"conditions"`
	Actions          json.RawMessage `json:"actions"`
}

func (s *RuleService) buildRule(req RuleRequest, into *domain.AssignmentRule) error {
	conditions, err := rules.ParseConditions(req.Conditions)
	if err != nil {
		return err
	}
	actions, err := rules.ParseActions(req.Actions)
	if err != nil {
		return err
	}

	into.RuleName = strings.TrimSpace(req.RuleName)
	into.RuleType = domain.RuleType(strings.ToUpper(strings.TrimSpace(string(req.RuleType))))
	into.Description = req.Description
	into.Priority = req.Priority
	into.Enabled = req.Enabled == nil || *req.Enabled
	into.MinMatchingScore = req.MinMatchingScore
	into.Conditions = conditions
	into.Actions = actions
	return s.engine.ValidateRule(into)
}

// CreateRule 创建规则
func (s *RuleService) CreateRule(ctx context.Context, caller domain.Caller, req RuleRequest) (*domain.AssignmentRule, error) {
	rule := &domain.AssignmentRule{}
	if err := s.buildRule(req, rule); err != nil {
		return nil, err
	}
	now := s.now()
	rule.CreatedBy = caller.UserID
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create assignment rule: %w", err)
	}
	s.logger.Info("Assignment rule created",
		zap.String("rule_id", rule.RuleID),
		zap.String("rule_type", string(rule.RuleType)),
		zap.String("caller", caller.UserID),
	)
	return rule, nil
}

// UpdateRule 更新规则定义；使用统计保持不变
func (s *RuleService) UpdateRule(ctx context.Context, caller domain.Caller, ruleID string, req RuleRequest) (*domain.AssignmentRule, error) {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if err := s.buildRule(req, rule); err != nil {
		return nil, err
	}
	rule.UpdatedAt = s.now()

	if err := s.rules.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to update assignment rule: %w", err)
	}
	s.logger.Info("Assignment rule updated", zap.String("rule_id", ruleID), zap.String("caller", caller.UserID))
	return rule, nil
}

// DeleteRule 删除规则
func (s *RuleService) DeleteRule(ctx context.Context, caller domain.Caller, ruleID string) error {
	if err := s.rules.DeleteRule(ctx, ruleID); err != nil {
		return err
	}
	s.logger.Info("Assignment rule deleted", zap.String("rule_id", ruleID), zap.String("caller", caller.UserID))
	return nil
}

// GetRule 获取规则
func (s *RuleService) GetRule(ctx context.Context, ruleID string) (*domain.AssignmentRule, error) {
	return s.rules.GetRule(ctx, ruleID)
}

// ListRules 列出规则
func (s *RuleService) ListRules(ctx context.Context, filter repository.RuleFilter) ([]*domain.AssignmentRule, error) {
	return s.rules.ListRules(ctx, filter)
}

// RuleTestResult 规则试运行结果（不修改任何状态）
type RuleTestResult struct {
	RuleID         string                       `json:"rule_id"`
	PackageID      string                       `json:"package_id"`
	Evaluation     rules.EvaluationResult       `json:"evaluation"`
	Strategy       string                       `json:"strategy,omitempty"`
	Candidates     []domain.AssignmentCandidate `json:"candidates"`
	WouldAssign    bool                         `json:"would_assign"`
	SelectedOrgID  string                       `json:"selected_org_id,omitempty"`
	BlockingReason string                       `json:"blocking_reason,omitempty"`
}

// TestRule 对案件包试运行规则：评估条件并预览候选机构
func (s *RuleService) TestRule(ctx context.Context, caller domain.Caller, ruleID, packageID string, limit int) (*RuleTestResult, error) {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	res := &RuleTestResult{
		RuleID:     ruleID,
		PackageID:  packageID,
		Evaluation: s.engine.Evaluate(rule, pkg),
		Candidates: []domain.AssignmentCandidate{},
	}
	if !res.Evaluation.Matched {
		res.BlockingReason = res.Evaluation.Reason
		return res, nil
	}

	orgs, err := s.orgs.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load organizations: %w", err)
	}
	eligible := s.engine.FilterOrganizations(rule, s.filter.Apply(orgs))

	strat, err := s.strategies.Resolve(s.engine.StrategyFor(rule), pkg)
	if err != nil {
		return nil, err
	}
	res.Strategy = strat.Name()
	candidates := strat.Execute(pkg, eligible)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	res.Candidates = candidates

	switch {
	case len(candidates) == 0:
		res.BlockingReason = "no eligible organization"
	default:
		if err := s.engine.CheckScore(rule, candidates[0]); err != nil {
			res.BlockingReason = domain.Reason(err)
		} else {
			res.WouldAssign = true
			res.SelectedOrgID = candidates[0].OrgID
		}
	}

	s.logger.Debug("Rule tested",
		zap.String("rule_id", ruleID),
		zap.String("package_id", packageID),
		zap.Bool("would_assign", res.WouldAssign),
		zap.String("caller", caller.UserID),
	)
	return res, nil
}
