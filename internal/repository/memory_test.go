package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"drmp-assignment/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPackages_ReadsAreCopies(t *testing.T) {
	repo := NewMemoryPackagesRepo(publishedPackage("P1", 0))
	ctx := context.Background()

	p, err := repo.GetPackage(ctx, "P1")
	require.NoError(t, err)
	p.Status = domain.PackageStatusWithdrawn

	again, _ := repo.GetPackage(ctx, "P1")
	assert.Equal(t, domain.PackageStatusPublished, again.Status)
}

func TestMemoryPackages_SaveAssignmentsAllOrNothing(t *testing.T) {
	repo := NewMemoryPackagesRepo(publishedPackage("P1", 0), publishedPackage("P2", 0))
	ctx := context.Background()

	stale := assigned(publishedPackage("P2", 5), "O2")
	err := repo.SaveAssignments(ctx, []*domain.CasePackage{assigned(publishedPackage("P1", 0), "O1"), stale})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	p1, _ := repo.GetPackage(ctx, "P1")
	assert.Equal(t, domain.PackageStatusPublished, p1.Status, "no partial write")

	ok := []*domain.CasePackage{assigned(publishedPackage("P1", 0), "O1"), assigned(publishedPackage("P2", 0), "O2")}
	require.NoError(t, repo.SaveAssignments(ctx, ok))
	assert.Equal(t, int64(1), ok[0].Version)

	p2, _ := repo.GetPackage(ctx, "P2")
	assert.Equal(t, "O2", *p2.DisposalOrgID)
	assert.Equal(t, int64(1), p2.Version)
}

func TestMemoryPackages_SaveStateConflict(t *testing.T) {
	repo := NewMemoryPackagesRepo(publishedPackage("P1", 0))
	ctx := context.Background()

	a, _ := repo.GetPackage(ctx, "P1")
	b, _ := repo.GetPackage(ctx, "P1")

	require.NoError(t, repo.SavePackageState(ctx, assigned(a, "O1")))
	err := repo.SavePackageState(ctx, assigned(b, "O2"))
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestMemoryRules_RecordUsageAndUpdateKeepsCounters(t *testing.T) {
	repo := NewMemoryRulesRepo()
	ctx := context.Background()

	rule := &domain.AssignmentRule{RuleName: "r", RuleType: domain.RuleTypeComprehensive, Enabled: true}
	require.NoError(t, repo.CreateRule(ctx, rule))
	require.NotEmpty(t, rule.RuleID)

	now := time.Now()
	require.NoError(t, repo.RecordUsage(ctx, rule.RuleID, true, now))
	require.NoError(t, repo.RecordUsage(ctx, rule.RuleID, false, now))

	rule.Priority = 5
	rule.UsageCount = 0
	require.NoError(t, repo.UpdateRule(ctx, rule))

	got, err := repo.GetRule(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Priority)
	assert.Equal(t, int64(2), got.UsageCount)
	assert.Equal(t, int64(1), got.SuccessCount)

	require.NoError(t, repo.DeleteRule(ctx, rule.RuleID))
	assert.True(t, errors.Is(repo.RecordUsage(ctx, rule.RuleID, false, now), domain.ErrNotFound))
}

func TestMemoryRules_ListOrder(t *testing.T) {
	repo := NewMemoryRulesRepo(
		domain.AssignmentRule{RuleID: "b", Priority: 1, Enabled: true},
		domain.AssignmentRule{RuleID: "a", Priority: 1, Enabled: false},
		domain.AssignmentRule{RuleID: "c", Priority: 9, Enabled: true},
	)

	all, _ := repo.ListRules(context.Background(), RuleFilter{})
	enabled, _ := repo.ListRules(context.Background(), RuleFilter{EnabledOnly: true})

	assert.Equal(t, "c", all[0].RuleID)
	assert.Equal(t, "a", all[1].RuleID)
	assert.Len(t, enabled, 2)
}

func TestMemoryFlowEvents(t *testing.T) {
	repo := NewMemoryFlowEventsRepo()
	ctx := context.Background()
	t0 := time.Now()

	require.NoError(t, repo.InsertEvent(ctx, &domain.CaseFlowEvent{PackageID: "P1", OccurredAt: t0}))
	require.NoError(t, repo.InsertEvent(ctx, &domain.CaseFlowEvent{PackageID: "P2", OccurredAt: t0}))
	require.NoError(t, repo.InsertEvent(ctx, &domain.CaseFlowEvent{PackageID: "P1", OccurredAt: t0.Add(time.Second)}))

	out, err := repo.ListByPackage(ctx, "P1", 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].OccurredAt.After(out[1].OccurredAt))
	assert.Len(t, repo.All(), 3)
}
