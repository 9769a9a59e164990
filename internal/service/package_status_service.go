package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/events"
	"drmp-assignment/internal/metrics"
	"drmp-assignment/internal/repository"
	"drmp-assignment/internal/statemachine"
	"drmp-assignment/internal/store"

	"go.uber.org/zap"
)

// PackageStatusService 案件包生命周期：状态查询、协作方驱动的状态变更、流转历史
type PackageStatusService struct {
	packages    repository.PackagesRepository
	orgs        repository.OrganizationsRepository
	history     repository.FlowEventsRepository
	transitions *statemachine.Table
	locker      store.Locker
	flow        flowEmitter
	logger      *zap.Logger
	now         func() time.Time
}

// NewPackageStatusService 创建状态服务；history 可为 nil
func NewPackageStatusService(
	packages repository.PackagesRepository,
	orgs repository.OrganizationsRepository,
	history repository.FlowEventsRepository,
	locker store.Locker,
	sink events.Sink,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PackageStatusService {
	if locker == nil {
		locker = store.NewMemoryLocker()
	}
	return &PackageStatusService{
		packages:    packages,
		orgs:        orgs,
		history:     history,
		transitions: statemachine.NewTable(),
		locker:      locker,
		flow:        flowEmitter{sink: sink, metrics: m, logger: logger},
		logger:      logger,
		now:         time.Now,
	}
}

// ValidateTransition (from, to, event) 是否合法
func (s *PackageStatusService) ValidateTransition(from, to domain.PackageStatus, event domain.PackageEvent) bool {
	return s.transitions.Validate(from, to, event)
}

// PossibleNextStatuses from 可达的下一状态
func (s *PackageStatusService) PossibleNextStatuses(from domain.PackageStatus) []domain.PackageStatus {
	return s.transitions.PossibleNext(from)
}

// RequiredEvent from -> to 需要的事件
func (s *PackageStatusService) RequiredEvent(from, to domain.PackageStatus) (domain.PackageEvent, error) {
	return s.transitions.RequiredEvent(from, to)
}

// GetPackage 获取案件包
func (s *PackageStatusService) GetPackage(ctx context.Context, packageID string) (*domain.CasePackage, error) {
	return s.packages.GetPackage(ctx, packageID)
}

// ListPackages 列出案件包
func (s *PackageStatusService) ListPackages(ctx context.Context, filter repository.PackageFilter) ([]*domain.CasePackage, error) {
	return s.packages.ListPackages(ctx, filter)
}

// CreatePackage 以 DRAFT 状态登记案件包
func (s *PackageStatusService) CreatePackage(ctx context.Context, caller domain.Caller, pkg *domain.CasePackage) (*domain.CasePackage, error) {
	now := s.now()
	pkg.Status = domain.PackageStatusDraft
	pkg.DisposalOrgID = nil
	pkg.PublishedAt, pkg.AssignedAt, pkg.AcceptedAt, pkg.ClosedAt = nil, nil, nil, nil
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	if pkg.SourceOrgID == "" {
		pkg.SourceOrgID = caller.OrgID
	}
	if strings.TrimSpace(pkg.SourceOrgID) == "" {
		return nil, domain.Validation("source_org_id is required")
	}

	if err := s.packages.CreatePackage(ctx, pkg); err != nil {
		return nil, err
	}
	s.logger.Info("Case package created",
		zap.String("package_id", pkg.PackageID),
		zap.String("source_org_id", pkg.SourceOrgID),
		zap.String("caller", caller.UserID),
	)
	return pkg, nil
}

// Transition 执行生命周期事件并持久化；ASSIGN 需要已存在的处置机构
func (s *PackageStatusService) Transition(ctx context.Context, caller domain.Caller, packageID string, event domain.PackageEvent, disposalOrgID string) (*domain.CasePackage, error) {
	event = domain.PackageEvent(strings.ToUpper(strings.TrimSpace(string(event))))
	if event == domain.EventAssign {
		if disposalOrgID == "" {
			return nil, domain.Validation("disposal_org_id is required for %s", event)
		}
		if _, err := s.orgs.GetOrganization(ctx, disposalOrgID); err != nil {
			return nil, err
		}
	}

	unlock, err := s.locker.Lock(ctx, packageLockKey(packageID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock package %s: %w", packageID, err)
	}
	defer unlock()

	pkg, err := s.packages.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	at := s.now()
	updated := pkg.Clone()
	from, err := s.transitions.Apply(updated, event, statemachine.TransitionInput{DisposalOrgID: disposalOrgID, At: at})
	if err != nil {
		return nil, err
	}
	if err := s.packages.SavePackageState(ctx, updated); err != nil {
		return nil, persistenceError(err, "failed to persist %s of package %s", event, packageID)
	}

	ev := newFlowEvent(updated, domain.FlowEventStatusChanged, from, caller, at)
	ev.Description = fmt.Sprintf("%s: %s -> %s", event, from, updated.Status)
	ev.Metadata["event"] = string(event)
	if updated.DisposalOrgID != nil {
		ev.Metadata["org_id"] = *updated.DisposalOrgID
	}
	s.flow.emit(ctx, ev)

	s.logger.Info("Case package transitioned",
		zap.String("package_id", packageID),
		zap.String("event", string(event)),
		zap.String("from", string(from)),
		zap.String("to", string(updated.Status)),
		zap.String("caller", caller.UserID),
	)
	return updated, nil
}

// History 案件包流转事件，最新在前
func (s *PackageStatusService) History(ctx context.Context, packageID string, limit int) ([]domain.CaseFlowEvent, error) {
	if s.history == nil {
		return []domain.CaseFlowEvent{}, nil
	}
	return s.history.ListByPackage(ctx, packageID, limit)
}
