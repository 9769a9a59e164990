package service

import (
	"context"
	"errors"
	"testing"

	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/metrics"
	"drmp-assignment/internal/strategy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGetRecommendations_ScenarioRanking(t *testing.T) {
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs())
	svc := f.assignmentService(nil)

	resp, err := svc.GetRecommendations(context.Background(), testCaller, "P1", 0)

	require.NoError(t, err)
	assert.Equal(t, strategy.NameComposite, resp.Strategy)
	assert.Equal(t, 2, resp.EligibleCount)
	require.Len(t, resp.Recommendations, 2)
	assert.Equal(t, "O1", resp.Recommendations[0].OrgID)
	assert.Equal(t, "O2", resp.Recommendations[1].OrgID)
	assert.Greater(t, resp.Recommendations[0].Score, resp.Recommendations[1].Score)
	assert.Equal(t, "Li", resp.Recommendations[0].ContactPerson)
	assert.Equal(t, []string{"Beijing"}, resp.Recommendations[0].ServiceRegions)

	pkg, _ := f.packages.GetPackage(context.Background(), "P1")
	assert.Equal(t, domain.PackageStatusPublished, pkg.Status, "recommendations are read-only")
}

func TestGetRecommendations_Limit(t *testing.T) {
	orgs := scenarioOrgs()
	for _, id := range []string{"O3", "O4", "O5", "O6", "O7"} {
		orgs = append(orgs, domain.Organization{OrgID: id, OrgName: id, Status: domain.OrgStatusActive,
			MembershipPaid: true, ServiceRegions: []string{"Beijing"}})
	}
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, orgs)
	svc := f.assignmentService(nil)

	resp, err := svc.GetRecommendations(context.Background(), testCaller, "P1", 1)
	require.NoError(t, err)
	assert.Len(t, resp.Recommendations, 1)

	resp, err = svc.GetRecommendations(context.Background(), testCaller, "P1", 100)
	require.NoError(t, err)
	assert.Len(t, resp.Recommendations, 5, "capped at MaxLimit")
}

func TestGetRecommendations_PackageNotFound(t *testing.T) {
	svc := newFixture(nil, scenarioOrgs()).assignmentService(nil)

	_, err := svc.GetRecommendations(context.Background(), testCaller, "P404", 5)

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestExecuteAutoAssignment_Success(t *testing.T) {
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs(), beijingRule("R1"))
	svc := f.assignmentService(nil)

	res, err := svc.ExecuteAutoAssignment(context.Background(), testCaller, "P1", "R1")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "O1", res.OrgID)
	assert.Equal(t, strategy.NameGeographyFirst, res.Strategy)

	pkg, _ := f.packages.GetPackage(context.Background(), "P1")
	assert.Equal(t, domain.PackageStatusAssigned, pkg.Status)
	require.NotNil(t, pkg.DisposalOrgID)
	assert.Equal(t, "O1", *pkg.DisposalOrgID)
	assert.Equal(t, fixedNow, *pkg.AssignedAt)
	assert.Equal(t, int64(1), pkg.Version)

	rule, _ := f.rules.GetRule(context.Background(), "R1")
	assert.Equal(t, int64(1), rule.UsageCount)
	assert.Equal(t, int64(1), rule.SuccessCount)

	evs := f.flow.All()
	require.Len(t, evs, 1)
	assert.Equal(t, domain.FlowEventAutoAssigned, evs[0].EventType)
	assert.Equal(t, domain.PackageStatusPublished, evs[0].FromStatus)
	assert.Equal(t, domain.PackageStatusAssigned, evs[0].ToStatus)
	assert.True(t, evs[0].Notify)
	assert.Equal(t, "R1", evs[0].Metadata["rule_id"])
	assert.Equal(t, "u-1", evs[0].OperatorID)
}

func TestExecuteAutoAssignment_RuleNotMatchedLeavesPackageUntouched(t *testing.T) {
	rule := beijingRule("R1")
	rule.Conditions.Regions = []string{"Shanghai"}
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs(), rule)
	svc := f.assignmentService(nil)

	_, err := svc.ExecuteAutoAssignment(context.Background(), testCaller, "P1", "R1")

	require.Error(t, err)
	assert.Equal(t, domain.KindRuleNotMatched, domain.KindOf(err))
	assert.Contains(t, err.Error(), "regions")

	pkg, _ := f.packages.GetPackage(context.Background(), "P1")
	assert.Equal(t, domain.PackageStatusPublished, pkg.Status)
	assert.Nil(t, pkg.DisposalOrgID)
	assert.Equal(t, int64(0), pkg.Version)

	stored, _ := f.rules.GetRule(context.Background(), "R1")
	assert.Equal(t, int64(1), stored.UsageCount)
	assert.Equal(t, int64(0), stored.SuccessCount)
	assert.Empty(t, f.flow.All())
}

func TestExecuteAutoAssignment_ScoreBelowThreshold(t *testing.T) {
	rule := beijingRule("R1")
	rule.MinMatchingScore = 99
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs(), rule)
	svc := f.assignmentService(nil)

	_, err := svc.ExecuteAutoAssignment(context.Background(), testCaller, "P1", "R1")

	assert.True(t, errors.Is(err, domain.ErrScoreBelowThreshold))
	pkg, _ := f.packages.GetPackage(context.Background(), "P1")
	assert.Equal(t, domain.PackageStatusPublished, pkg.Status)
	stored, _ := f.rules.GetRule(context.Background(), "R1")
	assert.Equal(t, int64(1), stored.UsageCount)
	assert.Equal(t, int64(0), stored.SuccessCount)
}

func TestExecuteAutoAssignment_ExcludeListAndNoEligible(t *testing.T) {
	rule := beijingRule("R1")
	rule.Actions.ExcludeOrgIDs = []string{"O1"}
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs(), rule)
	svc := f.assignmentService(nil)

	// GEOGRAPHY_FIRST 排除了上海机构，O1 又被规则排除
	_, err := svc.ExecuteAutoAssignment(context.Background(), testCaller, "P1", "R1")

	assert.Equal(t, domain.KindNoEligibleOrganizations, domain.KindOf(err))
}

func TestExecuteAutoAssignment_PersistenceFailureCountsUsageOnly(t *testing.T) {
	f := newFixture(nil, scenarioOrgs(), beijingRule("R1"))
	pkgs := &mockPackages{}
	pkgs.On("GetPackage", mock.Anything, "P1").Return(publishedPackage("P1", "Beijing"), nil)
	pkgs.On("SavePackageState", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	svc := f.assignmentService(pkgs)

	_, err := svc.ExecuteAutoAssignment(context.Background(), testCaller, "P1", "R1")

	assert.Equal(t, domain.KindPersistence, domain.KindOf(err))
	stored, _ := f.rules.GetRule(context.Background(), "R1")
	assert.Equal(t, int64(1), stored.UsageCount)
	assert.Equal(t, int64(0), stored.SuccessCount)
	assert.Empty(t, f.flow.All(), "no event before a durable commit")
	pkgs.AssertExpectations(t)
}

func TestExecuteAutoAssignment_NotPublished(t *testing.T) {
	draft := publishedPackage("P1", "Beijing")
	draft.Status = domain.PackageStatusDraft
	draft.PublishedAt = nil
	f := newFixture([]*domain.CasePackage{draft}, scenarioOrgs(), beijingRule("R1"))

	_, err := f.assignmentService(nil).ExecuteAutoAssignment(context.Background(), testCaller, "P1", "R1")

	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	stored, _ := f.rules.GetRule(context.Background(), "R1")
	assert.Equal(t, int64(1), stored.UsageCount)
}

func TestExecuteAutoAssignment_UnknownRule(t *testing.T) {
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs())

	_, err := f.assignmentService(nil).ExecuteAutoAssignment(context.Background(), testCaller, "P1", "R404")

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestExecuteAutoAssignment_SelectsHighestPriorityRule(t *testing.T) {
	low, high := beijingRule("R-low"), beijingRule("R-high")
	low.Priority, high.Priority = 1, 10
	disabled := beijingRule("R-off")
	disabled.Priority, disabled.Enabled = 99, false
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs(), low, high, disabled)

	res, err := f.assignmentService(nil).ExecuteAutoAssignment(context.Background(), testCaller, "P1", "")

	require.NoError(t, err)
	assert.Equal(t, "O1", res.OrgID)
	h, _ := f.rules.GetRule(context.Background(), "R-high")
	l, _ := f.rules.GetRule(context.Background(), "R-low")
	assert.Equal(t, int64(1), h.SuccessCount)
	assert.Equal(t, int64(0), l.UsageCount)
}

func TestExecuteAutoAssignment_NoMatchingRuleWithoutID(t *testing.T) {
	rule := beijingRule("R1")
	rule.Conditions.Regions = []string{"Shanghai"}
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs(), rule)

	_, err := f.assignmentService(nil).ExecuteAutoAssignment(context.Background(), testCaller, "P1", "")

	assert.Equal(t, domain.KindRuleNotMatched, domain.KindOf(err))
	stored, _ := f.rules.GetRule(context.Background(), "R1")
	assert.Equal(t, int64(0), stored.UsageCount)
}

func TestExecuteBatchAssignment_PartialFailuresInInputOrder(t *testing.T) {
	f := newFixture([]*domain.CasePackage{
		publishedPackage("P1", "Beijing"),
		publishedPackage("P2", "Shanghai"),
	}, scenarioOrgs())
	svc := f.assignmentService(nil)

	out, err := svc.ExecuteBatchAssignment(context.Background(), testCaller, []string{"P1", "P404", "P2", "P1"}, "")

	require.NoError(t, err)
	assert.Equal(t, 4, out.Total)
	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, 2, out.FailedCount)
	require.Len(t, out.Results, 4)

	assert.True(t, out.Results[0].Success)
	assert.Equal(t, "O1", out.Results[0].OrgID)
	assert.Equal(t, domain.KindNotFound, out.Results[1].ErrorCode)
	assert.True(t, out.Results[2].Success)
	assert.Equal(t, "O2", out.Results[2].OrgID)
	assert.Equal(t, domain.KindInvalidTransition, out.Results[3].ErrorCode, "duplicate sees the in-batch state")
	assert.NotEmpty(t, out.Results[3].Message)

	p1, _ := f.packages.GetPackage(context.Background(), "P1")
	p2, _ := f.packages.GetPackage(context.Background(), "P2")
	assert.Equal(t, domain.PackageStatusAssigned, p1.Status)
	assert.Equal(t, "O2", *p2.DisposalOrgID)

	evs := f.flow.All()
	require.Len(t, evs, 2)
	for _, ev := range evs {
		assert.Equal(t, domain.FlowEventBatchAssigned, ev.EventType)
	}
}

func TestExecuteBatchAssignment_NoEligibleOrganizations(t *testing.T) {
	orgs := scenarioOrgs()
	for i := range orgs {
		orgs[i].MembershipPaid = false
	}
	f := newFixture(nil, orgs)
	snapshot := map[string]*domain.CasePackage{
		"P1": publishedPackage("P1", "Beijing"),
		"P2": publishedPackage("P2", "Beijing"),
		"P3": publishedPackage("P3", "Shanghai"),
	}
	pkgs := &mockPackages{}
	pkgs.On("GetPackagesByIDs", mock.Anything, []string{"P1", "P2", "P3"}).Return(snapshot, nil)
	svc := f.assignmentService(pkgs)

	out, err := svc.ExecuteBatchAssignment(context.Background(), testCaller, []string{"P1", "P2", "P3"}, "")

	require.NoError(t, err)
	assert.Equal(t, 0, out.SuccessCount)
	assert.Equal(t, 3, out.FailedCount)
	for _, r := range out.Results {
		assert.Equal(t, domain.KindNoEligibleOrganizations, r.ErrorCode)
	}
	pkgs.AssertNotCalled(t, "SaveAssignments", mock.Anything, mock.Anything)
	pkgs.AssertNotCalled(t, "SavePackageState", mock.Anything, mock.Anything)
	assert.Empty(t, f.flow.All())
}

func TestExecuteBatchAssignment_GroupWriteFailureFailsAllPending(t *testing.T) {
	f := newFixture(nil, scenarioOrgs())
	snapshot := map[string]*domain.CasePackage{
		"P1": publishedPackage("P1", "Beijing"),
		"P2": publishedPackage("P2", "Shanghai"),
	}
	pkgs := &mockPackages{}
	pkgs.On("GetPackagesByIDs", mock.Anything, mock.Anything).Return(snapshot, nil)
	pkgs.On("SaveAssignments", mock.Anything, mock.MatchedBy(func(p []*domain.CasePackage) bool { return len(p) == 2 })).
		Return(errors.New("deadlock detected")).Once()
	svc := f.assignmentService(pkgs)

	out, err := svc.ExecuteBatchAssignment(context.Background(), testCaller, []string{"P1", "P2"}, "composite")

	require.NoError(t, err)
	assert.Equal(t, 0, out.SuccessCount)
	assert.Equal(t, 2, out.FailedCount)
	for _, r := range out.Results {
		assert.False(t, r.Success)
		assert.Equal(t, domain.KindPersistence, r.ErrorCode)
		assert.Contains(t, r.Message, "deadlock detected")
		assert.Empty(t, r.OrgID)
	}
	assert.Empty(t, f.flow.All())
	pkgs.AssertExpectations(t)
}

func TestExecuteBatchAssignment_ExplicitStrategy(t *testing.T) {
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs())

	out, err := f.assignmentService(nil).ExecuteBatchAssignment(context.Background(), testCaller, []string{"P1"}, "capacity_balanced")

	require.NoError(t, err)
	require.True(t, out.Results[0].Success)
	assert.Equal(t, strategy.NameCapacityBalanced, out.Results[0].Strategy)
	assert.Contains(t, out.Summary, "1 succeeded")
}

func TestExecuteBatchAssignment_RejectsBadInput(t *testing.T) {
	svc := newFixture(nil, scenarioOrgs()).assignmentService(nil)

	_, err := svc.ExecuteBatchAssignment(context.Background(), testCaller, nil, "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = svc.ExecuteBatchAssignment(context.Background(), testCaller, make([]string, 11), "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = svc.ExecuteBatchAssignment(context.Background(), testCaller, []string{"P1"}, "LOWEST_PRICE")
	assert.True(t, errors.Is(err, domain.ErrUnknownStrategy))
}

func TestAssessMatching_ConsistentWithRecommendations(t *testing.T) {
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs())
	svc := f.assignmentService(nil)

	rec, err := svc.GetRecommendations(context.Background(), testCaller, "P1", 10)
	require.NoError(t, err)

	for _, r := range rec.Recommendations {
		a, err := svc.AssessMatching(context.Background(), testCaller, r.OrgID, "P1")
		require.NoError(t, err)
		assert.Equal(t, r.Score, a.Candidate.Score)
		assert.True(t, a.Qualified)
		assert.True(t, a.Eligible)
		assert.Equal(t, rec.Strategy, a.Strategy)
	}

	_, err = svc.AssessMatching(context.Background(), testCaller, "O404", "P1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListStrategies(t *testing.T) {
	svc := newFixture(nil, nil).assignmentService(nil)

	infos := svc.ListStrategies()

	require.Len(t, infos, 4)
	assert.Equal(t, strategy.NameCapacityBalanced, infos[0].Name)
}

func TestAssignmentService_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture([]*domain.CasePackage{publishedPackage("P1", "Beijing")}, scenarioOrgs(), beijingRule("R1"))
	svc := NewAssignmentService(AssignmentDeps{
		Packages:      f.packages,
		Organizations: f.orgs,
		Rules:         f.rules,
		Metrics:       metrics.New(reg, "t"),
	}, AssignmentConfig{})

	_, err := svc.ExecuteAutoAssignment(context.Background(), testCaller, "P1", "R1")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "t_assignment_results_total", "t_rule_usage_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
