package service

import (
	"context"
	"time"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/events"
	"drmp-assignment/internal/repository"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

var testCaller = domain.Caller{UserID: "u-1", UserName: "operator"}

func floatPtr(v float64) *float64 { return &v }

func publishedPackage(id, region string) *domain.CasePackage {
	published := fixedNow.Add(-time.Hour)
	return &domain.CasePackage{
		PackageID:       id,
		Status:          domain.PackageStatusPublished,
		TotalAmount:     500000,
		RemainingAmount: 500000,
		CaseCount:       120,
		Region:          region,
		SourceOrgID:     "bank-1",
		PublishedAt:     &published,
		CreatedAt:       published,
		UpdatedAt:       published,
	}
}

func scenarioOrgs() []domain.Organization {
	return []domain.Organization{
		{OrgID: "O1", OrgName: "Beijing Law Firm", Status: domain.OrgStatusActive, MembershipPaid: true,
			ServiceRegions: []string{"Beijing"}, MonthlyCaseCapacity: 200, CurrentLoadPercentage: floatPtr(10),
			ContactPerson: "Li", ContactPhone: "010-1000"},
		{OrgID: "O2", OrgName: "Shanghai Mediation", Status: domain.OrgStatusActive, MembershipPaid: true,
			ServiceRegions: []string{"Shanghai"}, MonthlyCaseCapacity: 200, CurrentLoadPercentage: floatPtr(80)},
	}
}

func beijingRule(id string) domain.AssignmentRule {
	return domain.AssignmentRule{
		RuleID:     id,
		RuleName:   "north china " + id,
		RuleType:   domain.RuleTypeRegionBased,
		Enabled:    true,
		Conditions: domain.RuleConditions{Regions: []string{"Beijing"}},
		Actions:    domain.RuleActions{Notify: true},
	}
}

type fixture struct {
	packages *repository.MemoryPackagesRepo
	orgs     *repository.MemoryOrganizationsRepo
	rules    *repository.MemoryRulesRepo
	flow     *repository.MemoryFlowEventsRepo
}

func newFixture(pkgs []*domain.CasePackage, orgs []domain.Organization, rules ...domain.AssignmentRule) *fixture {
	return &fixture{
		packages: repository.NewMemoryPackagesRepo(pkgs...),
		orgs:     repository.NewMemoryOrganizationsRepo(orgs...),
		rules:    repository.NewMemoryRulesRepo(rules...),
		flow:     repository.NewMemoryFlowEventsRepo(),
	}
}

func (f *fixture) assignmentService(packages repository.PackagesRepository) *AssignmentService {
	if packages == nil {
		packages = f.packages
	}
	return NewAssignmentService(AssignmentDeps{
		Packages:      packages,
		Organizations: f.orgs,
		Rules:         f.rules,
		Sink:          events.NewRepositorySink(f.flow),
		Logger:        zap.NewNop(),
		Now:           func() time.Time { return fixedNow },
	}, AssignmentConfig{BatchWorkers: 4, MaxBatchSize: 10, MaxLimit: 5})
}

// mockPackages 用于注入持久化失败
type mockPackages struct {
	mock.Mock
}

var _ repository.PackagesRepository = (*mockPackages)(nil)

func (m *mockPackages) GetPackage(ctx context.Context, packageID string) (*domain.CasePackage, error) {
	args := m.Called(ctx, packageID)
	if p, ok := args.Get(0).(*domain.CasePackage); ok {
		return p.Clone(), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPackages) GetPackagesByIDs(ctx context.Context, packageIDs []string) (map[string]*domain.CasePackage, error) {
	args := m.Called(ctx, packageIDs)
	src, _ := args.Get(0).(map[string]*domain.CasePackage)
	out := make(map[string]*domain.CasePackage, len(src))
	for k, v := range src {
		out[k] = v.Clone()
	}
	return out, args.Error(1)
}

func (m *mockPackages) ListPackages(ctx context.Context, filter repository.PackageFilter) ([]*domain.CasePackage, error) {
	args := m.Called(ctx, filter)
	out, _ := args.Get(0).([]*domain.CasePackage)
	return out, args.Error(1)
}

func (m *mockPackages) CreatePackage(ctx context.Context, pkg *domain.CasePackage) error {
	return m.Called(ctx, pkg).Error(0)
}

func (m *mockPackages) SavePackageState(ctx context.Context, pkg *domain.CasePackage) error {
	return m.Called(ctx, pkg).Error(0)
}

func (m *mockPackages) SaveAssignments(ctx context.Context, pkgs []*domain.CasePackage) error {
	return m.Called(ctx, pkgs).Error(0)
}
