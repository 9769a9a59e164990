// Package service 分配编排、规则管理与案件包状态服务
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/eligibility"
	"drmp-assignment/internal/events"
	"drmp-assignment/internal/metrics"
	"drmp-assignment/internal/repository"
	"drmp-assignment/internal/rules"
	"drmp-assignment/internal/statemachine"
	"drmp-assignment/internal/store"
	"drmp-assignment/internal/strategy"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AssignmentConfig 分配服务参数
type AssignmentConfig struct {
	BatchWorkers int
	MaxBatchSize int
	DefaultLimit int
	MaxLimit     int
}

func (c *AssignmentConfig) applyDefaults() {
	if c.BatchWorkers <= 0 {
		c.BatchWorkers = 8
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 500
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 50
	}
}

// AssignmentDeps 分配服务依赖
type AssignmentDeps struct {
	Packages      repository.PackagesRepository
	Organizations repository.OrganizationsRepository
	Rules         repository.RulesRepository
	Strategies    *strategy.Manager
	Eligibility   *eligibility.Filter
	Engine        *rules.Engine
	Transitions   *statemachine.Table
	Locker        store.Locker
	Sink          events.Sink
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
}

// AssignmentService 智能分配编排：推荐、自动分配、批量分配、匹配评估
type AssignmentService struct {
	packages    repository.PackagesRepository
	orgs        repository.OrganizationsRepository
	rules       repository.RulesRepository
	strategies  *strategy.Manager
	filter      *eligibility.Filter
	engine      *rules.Engine
	transitions *statemachine.Table
	locker      store.Locker
	flow        flowEmitter
	metrics     *metrics.Metrics
	cfg         AssignmentConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewAssignmentService 创建分配服务
func NewAssignmentService(deps AssignmentDeps, cfg AssignmentConfig) *AssignmentService {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Strategies == nil {
		deps.Strategies = strategy.NewManager(strategy.ManagerConfig{})
	}
	if deps.Eligibility == nil {
		deps.Eligibility = eligibility.NewFilter(eligibility.DefaultCeiling)
	}
	if deps.Engine == nil {
		deps.Engine = rules.NewEngine(deps.Strategies)
	}
	if deps.Transitions == nil {
		deps.Transitions = statemachine.NewTable()
	}
	if deps.Locker == nil {
		deps.Locker = store.NewMemoryLocker()
	}

	return &AssignmentService{
		packages:    deps.Packages,
		orgs:        deps.Organizations,
		rules:       deps.Rules,
		strategies:  deps.Strategies,
		filter:      deps.Eligibility,
		engine:      deps.Engine,
		transitions: deps.Transitions,
		locker:      deps.Locker,
		flow:        flowEmitter{sink: deps.Sink, metrics: deps.Metrics, logger: deps.Logger},
		metrics:     deps.Metrics,
		cfg:         cfg,
		logger:      deps.Logger,
		now:         deps.Now,
	}
}

// Recommendation 推荐结果（候选机构 + 联系方式）
type Recommendation struct {
	domain.AssignmentCandidate
	ServiceRegions        []string `json:"service_regions"`
	CurrentLoadPercentage *float64 `json:"current_load_percentage,omitempty"`
	ContactPerson         string   `json:"contact_person,omitempty"`
	ContactPhone          string   `json:"contact_phone,omitempty"`
	ContactEmail          string   `json:"contact_email,omitempty"`
}

// RecommendationsResponse 推荐列表
type RecommendationsResponse struct {
	PackageID       string           `json:"package_id"`
	Strategy        string           `json:"strategy"`
	EligibleCount   int              `json:"eligible_count"`
	Recommendations []Recommendation `json:"recommendations"`
}

// GetRecommendations 只读：按自动选择的策略为案件包排序候选机构
func (s *AssignmentService) GetRecommendations(ctx context.Context, caller domain.Caller, packageID string, limit int) (*RecommendationsResponse, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	pkg, err := s.packages.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	eligible, err := s.eligibleOrganizations(ctx)
	if err != nil {
		return nil, err
	}

	strat := s.strategies.GetOptimalStrategy(pkg)
	candidates := s.score(strat, pkg, eligible)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	byID := make(map[string]*domain.Organization, len(eligible))
	for i := range eligible {
		byID[eligible[i].OrgID] = &eligible[i]
	}
	out := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		rec := Recommendation{AssignmentCandidate: c}
		if o, ok := byID[c.OrgID]; ok {
			rec.ServiceRegions = o.ServiceRegions
			rec.CurrentLoadPercentage = o.CurrentLoadPercentage
			rec.ContactPerson = o.ContactPerson
			rec.ContactPhone = o.ContactPhone
			rec.ContactEmail = o.ContactEmail
		}
		out = append(out, rec)
	}

	s.logger.Debug("Recommendations computed",
		zap.String("package_id", packageID),
		zap.String("strategy", strat.Name()),
		zap.Int("eligible", len(eligible)),
		zap.Int("returned", len(out)),
		zap.String("caller", caller.UserID),
	)
	return &RecommendationsResponse{
		PackageID:       packageID,
		Strategy:        strat.Name(),
		EligibleCount:   len(eligible),
		Recommendations: out,
	}, nil
}

// ExecuteAutoAssignment 按规则自动分配单个案件包。
// ruleID 为空时选用优先级最高的匹配规则。规则加载后的每次尝试恰好记录一次使用。
func (s *AssignmentService) ExecuteAutoAssignment(ctx context.Context, caller domain.Caller, packageID, ruleID string) (*domain.AssignmentResult, error) {
	result, ruleUsed, err := s.executeAuto(ctx, caller, packageID, ruleID)
	if err != nil {
		s.metrics.ObserveAssignment(metrics.ModeAuto, false, string(domain.KindOf(err)))
		s.logger.Info("Auto assignment failed",
			zap.String("package_id", packageID),
			zap.String("rule_id", ruleUsed),
			zap.String("error_code", string(domain.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.ObserveAssignment(metrics.ModeAuto, true, "")
	return result, nil
}

func (s *AssignmentService) executeAuto(ctx context.Context, caller domain.Caller, packageID, ruleID string) (*domain.AssignmentResult, string, error) {
	if packageID == "" {
		return nil, ruleID, domain.Validation("package_id is required")
	}

	var rule *domain.AssignmentRule
	if strings.TrimSpace(ruleID) != "" {
		r, err := s.rules.GetRule(ctx, ruleID)
		if err != nil {
			return nil, ruleID, err
		}
		rule = r
	}

	success := false
	defer func() {
		if rule != nil {
			s.recordUsage(ctx, rule, success)
		}
	}()

	unlock, err := s.locker.Lock(ctx, packageLockKey(packageID))
	if err != nil {
		return nil, ruleID, fmt.Errorf("failed to lock package %s: %w", packageID, err)
	}
	defer unlock()

	pkg, err := s.packages.GetPackage(ctx, packageID)
	if err != nil {
		return nil, ruleID, err
	}
	if rule == nil {
		if rule, err = s.selectRule(ctx, pkg); err != nil {
			return nil, "", err
		}
	}

	result, err := s.autoAssign(ctx, caller, rule, pkg)
	if err != nil {
		return nil, rule.RuleID, err
	}
	success = true
	return result, rule.RuleID, nil
}

// selectRule 在启用规则中选优先级最高的匹配规则
func (s *AssignmentService) selectRule(ctx context.Context, pkg *domain.CasePackage) (*domain.AssignmentRule, error) {
	enabled, err := s.rules.ListRules(ctx, repository.RuleFilter{EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignment rules: %w", err)
	}
	list := make([]domain.AssignmentRule, 0, len(enabled))
	for _, r := range enabled {
		list = append(list, *r)
	}
	matched := s.engine.SelectRules(list, pkg)
	if len(matched) == 0 {
		return nil, domain.NewError(domain.KindRuleNotMatched, "no enabled rule matches package %s", pkg.PackageID)
	}
	return &matched[0], nil
}

func (s *AssignmentService) autoAssign(ctx context.Context, caller domain.Caller, rule *domain.AssignmentRule, pkg *domain.CasePackage) (*domain.AssignmentResult, error) {
	eval := s.engine.Evaluate(rule, pkg)
	if !eval.Matched {
		return nil, domain.NewError(domain.KindRuleNotMatched, "%s", eval.Reason)
	}
	if _, err := s.transitions.Next(pkg.Status, domain.EventAssign); err != nil {
		return nil, err
	}

	eligible, err := s.eligibleOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	eligible = s.engine.FilterOrganizations(rule, eligible)
	if len(eligible) == 0 {
		return nil, domain.NewError(domain.KindNoEligibleOrganizations,
			"no eligible organization for package %s under rule %s", pkg.PackageID, rule.RuleID)
	}

	strat, err := s.strategies.Resolve(s.engine.StrategyFor(rule), pkg)
	if err != nil {
		return nil, err
	}
	candidates := s.score(strat, pkg, eligible)
	if len(candidates) == 0 {
		return nil, domain.NewError(domain.KindNoEligibleOrganizations,
			"strategy %s excluded every organization for package %s", strat.Name(), pkg.PackageID)
	}
	top := candidates[0]
	if err := s.engine.CheckScore(rule, top); err != nil {
		return nil, err
	}

	at := s.now()
	updated := pkg.Clone()
	from, err := s.transitions.Apply(updated, domain.EventAssign, statemachine.TransitionInput{DisposalOrgID: top.OrgID, At: at})
	if err != nil {
		return nil, err
	}
	if err := s.packages.SavePackageState(ctx, updated); err != nil {
		return nil, persistenceError(err, "failed to persist assignment of package %s", pkg.PackageID)
	}

	ev := newFlowEvent(updated, domain.FlowEventAutoAssigned, from, caller, at)
	ev.Description = assignedDescription(top.OrgName, top.Score, strat.Name())
	ev.Notify = rule.Actions.Notify
	ev.Metadata["rule_id"] = rule.RuleID
	ev.Metadata["org_id"] = top.OrgID
	ev.Metadata["strategy"] = strat.Name()
	ev.Metadata["score"] = fmt.Sprintf("%.2f", top.Score)
	s.flow.emit(ctx, ev)

	s.logger.Info("Package auto assigned",
		zap.String("package_id", pkg.PackageID),
		zap.String("org_id", top.OrgID),
		zap.Float64("score", top.Score),
		zap.String("rule_id", rule.RuleID),
		zap.String("strategy", strat.Name()),
		zap.String("caller", caller.UserID),
	)
	return &domain.AssignmentResult{
		PackageID: pkg.PackageID,
		Success:   true,
		OrgID:     top.OrgID,
		OrgName:   top.OrgName,
		Score:     top.Score,
		Strategy:  strat.Name(),
		Message:   ev.Description,
		At:        &at,
	}, nil
}

// recordUsage 持久化规则使用统计；不受调用方取消影响
func (s *AssignmentService) recordUsage(ctx context.Context, rule *domain.AssignmentRule, success bool) {
	at := s.now()
	s.metrics.ObserveRuleUsage(rule.RuleID, success)
	if err := s.rules.RecordUsage(context.WithoutCancel(ctx), rule.RuleID, success, at); err != nil {
		s.logger.Error("Failed to record rule usage",
			zap.String("rule_id", rule.RuleID),
			zap.Bool("success", success),
			zap.Error(err),
		)
		return
	}
	s.engine.RecordUsage(rule, success, at)
}

// batchScore 并行打分阶段的单项输出
type batchScore struct {
	strategy   string
	candidates []domain.AssignmentCandidate
	err        error
}

// ExecuteBatchAssignment 批量分配：一次加载快照，并行打分，按输入顺序应用状态，单事务组写。
// 组写失败时所有待提交成功项改记为失败。
func (s *AssignmentService) ExecuteBatchAssignment(ctx context.Context, caller domain.Caller, packageIDs []string, strategyName string) (*domain.BatchAssignmentResult, error) {
	if len(packageIDs) == 0 {
		return nil, domain.Validation("package_ids must not be empty")
	}
	if len(packageIDs) > s.cfg.MaxBatchSize {
		return nil, domain.Validation("batch of %d packages exceeds the limit of %d", len(packageIDs), s.cfg.MaxBatchSize)
	}
	if strings.TrimSpace(strategyName) != "" {
		if _, err := s.strategies.GetStrategy(strategyName); err != nil {
			return nil, err
		}
	}
	s.metrics.ObserveBatch(len(packageIDs))

	keys := make([]string, 0, len(packageIDs))
	for _, id := range packageIDs {
		keys = append(keys, packageLockKey(id))
	}
	unlock, err := store.LockAll(ctx, s.locker, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to lock batch packages: %w", err)
	}
	defer unlock()

	snapshot, err := s.packages.GetPackagesByIDs(ctx, packageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch packages: %w", err)
	}
	eligible, err := s.eligibleOrganizations(ctx)
	if err != nil {
		return nil, err
	}

	scores := s.scoreBatch(packageIDs, snapshot, eligible, strategyName)

	at := s.now()
	results := make([]domain.AssignmentResult, len(packageIDs))
	working := map[string]*domain.CasePackage{}
	froms := map[string]domain.PackageStatus{}
	dirty := []*domain.CasePackage{}
	pending := []int{}

	for i, id := range packageIDs {
		results[i] = domain.AssignmentResult{PackageID: id}
		pkg, ok := working[id]
		if !ok {
			orig, found := snapshot[id]
			if !found {
				failItem(&results[i], domain.NotFound("case package", id))
				continue
			}
			pkg = orig.Clone()
			working[id] = pkg
		}
		if _, err := s.transitions.Next(pkg.Status, domain.EventAssign); err != nil {
			failItem(&results[i], err)
			continue
		}

		sc := scores[i]
		if sc.err != nil {
			failItem(&results[i], sc.err)
			continue
		}
		if len(sc.candidates) == 0 {
			failItem(&results[i], domain.NewError(domain.KindNoEligibleOrganizations,
				"no eligible organization for package %s", id))
			continue
		}

		top := sc.candidates[0]
		from, err := s.transitions.Apply(pkg, domain.EventAssign, statemachine.TransitionInput{DisposalOrgID: top.OrgID, At: at})
		if err != nil {
			failItem(&results[i], err)
			continue
		}
		froms[id] = from
		dirty = append(dirty, pkg)
		pending = append(pending, i)

		results[i].Success = true
		results[i].OrgID = top.OrgID
		results[i].OrgName = top.OrgName
		results[i].Score = top.Score
		results[i].Strategy = sc.strategy
		results[i].Message = assignedDescription(top.OrgName, top.Score, sc.strategy)
		results[i].At = &at
	}

	if len(dirty) > 0 {
		if err := s.packages.SaveAssignments(ctx, dirty); err != nil {
			perr := persistenceError(err, "batch write of %d packages failed", len(dirty))
			s.logger.Error("Batch assignment write failed, no package was assigned",
				zap.Int("pending", len(dirty)),
				zap.Error(err),
			)
			for _, i := range pending {
				results[i] = domain.AssignmentResult{PackageID: results[i].PackageID}
				failItem(&results[i], perr)
			}
			pending = nil
		}
	}

	for _, i := range pending {
		pkg := working[results[i].PackageID]
		ev := newFlowEvent(pkg, domain.FlowEventBatchAssigned, froms[pkg.PackageID], caller, at)
		ev.Description = results[i].Message
		ev.Metadata["org_id"] = results[i].OrgID
		ev.Metadata["strategy"] = results[i].Strategy
		ev.Metadata["score"] = fmt.Sprintf("%.2f", results[i].Score)
		s.flow.emit(ctx, ev)
	}

	out := &domain.BatchAssignmentResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Success {
			out.SuccessCount++
		} else {
			out.FailedCount++
		}
		s.metrics.ObserveAssignment(metrics.ModeBatch, r.Success, string(r.ErrorCode))
	}
	out.Summary = fmt.Sprintf("batch assignment finished: %d total, %d succeeded, %d failed",
		out.Total, out.SuccessCount, out.FailedCount)

	s.logger.Info("Batch assignment finished",
		zap.Int("total", out.Total),
		zap.Int("success", out.SuccessCount),
		zap.Int("failed", out.FailedCount),
		zap.String("strategy", strategyName),
		zap.String("caller", caller.UserID),
	)
	return out, nil
}

// scoreBatch 对快照中的案件包并行打分（只读）
func (s *AssignmentService) scoreBatch(ids []string, snapshot map[string]*domain.CasePackage, eligible []domain.Organization, strategyName string) []batchScore {
	scores := make([]batchScore, len(ids))
	if len(eligible) == 0 {
		return scores
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.BatchWorkers)
	for i, id := range ids {
		pkg, ok := snapshot[id]
		if !ok || pkg.Status != domain.PackageStatusPublished {
			continue
		}
		g.Go(func() error {
			strat, err := s.strategies.Resolve(strategyName, pkg)
			if err != nil {
				scores[i] = batchScore{err: err}
				return nil
			}
			scores[i] = batchScore{strategy: strat.Name(), candidates: s.score(strat, pkg, eligible)}
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

// AssessmentResult 单机构与单案件包的匹配评估
type AssessmentResult struct {
	Strategy          string                     `json:"strategy"`
	Qualified         bool                       `json:"qualified"`
	Eligible          bool                       `json:"eligible"`
	EligibilityReason string                     `json:"eligibility_reason,omitempty"`
	Candidate         domain.AssignmentCandidate `json:"candidate"`
}

// AssessMatching 使用案件包适用的策略评估单个机构
func (s *AssignmentService) AssessMatching(ctx context.Context, caller domain.Caller, orgID, packageID string) (*AssessmentResult, error) {
	pkg, err := s.packages.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	strat := s.strategies.GetOptimalStrategy(pkg)
	c, qualified := strat.Assess(org, pkg)
	c.Rank = 1

	s.logger.Debug("Assessed organization",
		zap.String("org_id", orgID),
		zap.String("package_id", packageID),
		zap.Float64("score", c.Score),
		zap.String("caller", caller.UserID),
	)
	return &AssessmentResult{
		Strategy:          strat.Name(),
		Qualified:         qualified,
		Eligible:          s.filter.IsEligible(org),
		EligibilityReason: s.filter.Reason(org),
		Candidate:         c,
	}, nil
}

// ListStrategies 全部策略元数据
func (s *AssignmentService) ListStrategies() []strategy.Info {
	return s.strategies.ListStrategies()
}

func (s *AssignmentService) eligibleOrganizations(ctx context.Context) ([]domain.Organization, error) {
	orgs, err := s.orgs.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load organizations: %w", err)
	}
	return s.filter.Apply(orgs), nil
}

func (s *AssignmentService) score(strat strategy.Strategy, pkg *domain.CasePackage, orgs []domain.Organization) []domain.AssignmentCandidate {
	start := time.Now()
	out := strat.Execute(pkg, orgs)
	s.metrics.ObserveScoring(strat.Name(), time.Since(start))
	return out
}

func failItem(r *domain.AssignmentResult, err error) {
	r.Success = false
	r.ErrorCode = domain.KindOf(err)
	if r.ErrorCode == "" {
		r.ErrorCode = domain.KindPersistence
	}
	r.Message = domain.Reason(err)
}

// persistenceError 保留已分类的错误（如 CONFLICT），其余归为 PERSISTENCE_FAILED
func persistenceError(err error, format string, args ...any) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.WrapError(domain.KindPersistence, err, format, args...)
}
