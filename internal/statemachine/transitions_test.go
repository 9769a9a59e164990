package statemachine

import (
	"errors"
	"testing"
	"time"

	"drmp-assignment/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPossibleNext(t *testing.T) {
	table := NewTable()

	assert.Equal(t, []domain.PackageStatus{domain.PackageStatusPublished}, table.PossibleNext(domain.PackageStatusDraft))
	assert.Equal(t,
		[]domain.PackageStatus{domain.PackageStatusWithdrawn, domain.PackageStatusAssigned},
		table.PossibleNext(domain.PackageStatusPublished),
	)
	assert.Equal(t,
		[]domain.PackageStatus{domain.PackageStatusPublished, domain.PackageStatusInProgress},
		table.PossibleNext(domain.PackageStatusAssigned),
	)
	assert.Empty(t, table.PossibleNext(domain.PackageStatusCompleted))
	assert.Empty(t, table.PossibleNext(domain.PackageStatusWithdrawn))
}

func TestValidate(t *testing.T) {
	table := NewTable()

	assert.False(t, table.Validate(domain.PackageStatusDraft, domain.PackageStatusAssigned, domain.EventAssign))
	assert.True(t, table.Validate(domain.PackageStatusPublished, domain.PackageStatusAssigned, domain.EventAssign))
	assert.True(t, table.Validate(domain.PackageStatusAssigned, domain.PackageStatusInProgress, domain.EventAccept))
	assert.False(t, table.Validate(domain.PackageStatusAssigned, domain.PackageStatusInProgress, domain.EventAssign))
	assert.False(t, table.Validate(domain.PackageStatusCompleted, domain.PackageStatusPublished, domain.EventReject))
}

func TestRequiredEvent(t *testing.T) {
	table := NewTable()

	ev, err := table.RequiredEvent(domain.PackageStatusAssigned, domain.PackageStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.EventAccept, ev)

	ev, err = table.RequiredEvent(domain.PackageStatusAssigned, domain.PackageStatusPublished)
	require.NoError(t, err)
	assert.Equal(t, domain.EventReject, ev)

	_, err = table.RequiredEvent(domain.PackageStatusDraft, domain.PackageStatusCompleted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestApply_PublishRequiresCases(t *testing.T) {
	table := NewTable()
	pkg := &domain.CasePackage{PackageID: "pkg-1", Status: domain.PackageStatusDraft, CaseCount: 0}

	_, err := table.Apply(pkg, domain.EventPublish, TransitionInput{})

	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, domain.PackageStatusDraft, pkg.Status)
	assert.Nil(t, pkg.PublishedAt)
}

func TestApply_FullLifecycle(t *testing.T) {
	table := NewTable()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pkg := &domain.CasePackage{PackageID: "pkg-1", Status: domain.PackageStatusDraft, CaseCount: 12, TotalAmount: 1000, RemainingAmount: 1000}

	from, err := table.Apply(pkg, domain.EventPublish, TransitionInput{At: at})
	require.NoError(t, err)
	assert.Equal(t, domain.PackageStatusDraft, from)
	assert.Equal(t, domain.PackageStatusPublished, pkg.Status)
	require.NoError(t, pkg.Validate())

	_, err = table.Apply(pkg, domain.EventAssign, TransitionInput{At: at})
	require.Error(t, err, "assign without organization must fail")
	assert.Equal(t, domain.PackageStatusPublished, pkg.Status)

	_, err = table.Apply(pkg, domain.EventAssign, TransitionInput{DisposalOrgID: "org-1", At: at})
	require.NoError(t, err)
	require.NotNil(t, pkg.DisposalOrgID)
	assert.Equal(t, "org-1", *pkg.DisposalOrgID)
	require.NoError(t, pkg.Validate())

	_, err = table.Apply(pkg, domain.EventReject, TransitionInput{At: at})
	require.NoError(t, err)
	assert.Equal(t, domain.PackageStatusPublished, pkg.Status)
	assert.Nil(t, pkg.DisposalOrgID)
	require.NoError(t, pkg.Validate())

	_, err = table.Apply(pkg, domain.EventAssign, TransitionInput{DisposalOrgID: "org-2", At: at})
	require.NoError(t, err)
	_, err = table.Apply(pkg, domain.EventAccept, TransitionInput{At: at})
	require.NoError(t, err)
	_, err = table.Apply(pkg, domain.EventComplete, TransitionInput{At: at})
	require.NoError(t, err)
	assert.Equal(t, domain.PackageStatusCompleted, pkg.Status)
	assert.Equal(t, "org-2", *pkg.DisposalOrgID)
	require.NoError(t, pkg.Validate())

	_, err = table.Apply(pkg, domain.EventReject, TransitionInput{At: at})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestApply_WithdrawOnlyFromPublished(t *testing.T) {
	table := NewTable()
	pkg := &domain.CasePackage{PackageID: "pkg-2", Status: domain.PackageStatusDraft, CaseCount: 3}

	_, err := table.Apply(pkg, domain.EventWithdraw, TransitionInput{})
	require.Error(t, err)
	assert.Equal(t, domain.PackageStatusDraft, pkg.Status)

	_, err = table.Apply(pkg, domain.EventPublish, TransitionInput{})
	require.NoError(t, err)
	_, err = table.Apply(pkg, domain.EventWithdraw, TransitionInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.PackageStatusWithdrawn, pkg.Status)
	assert.NotNil(t, pkg.ClosedAt)
	assert.Empty(t, NewTable().PossibleNext(pkg.Status))
}
