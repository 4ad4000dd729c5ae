package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-finance/internal/reconciliation"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

type fakeReconciler struct {
	view *reconciliation.View
	err  error
}

func (f fakeReconciler) Run(context.Context) (*reconciliation.View, error) {
	return f.view, f.err
}

func newReconciliationJobForTest(t *testing.T, r reconciler) Job {
	t.Helper()
	job, err := NewReconciliationJob(ReconciliationJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Reconciler: r,
	})
	require.NoError(t, err)
	return job
}

func TestReconciliationJobSucceedsWithUnmatchedRefunds(t *testing.T) {
	view := &reconciliation.View{Result: reconciliation.Result{MatchedCount: 3, UnmatchedCount: 1, UnmatchedExposureCents: 5000}}
	job := newReconciliationJobForTest(t, fakeReconciler{view: view})
	require.Equal(t, "reconciliation-sweep", job.Name())
	require.NoError(t, job.Run(context.Background()))
}

func TestReconciliationJobFailsOnStaleView(t *testing.T) {
	view := &reconciliation.View{Stale: true, SourceError: "settlements unavailable"}
	job := newReconciliationJobForTest(t, fakeReconciler{view: view})
	err := job.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "settlements unavailable")
}

func TestReconciliationJobPropagatesError(t *testing.T) {
	job := newReconciliationJobForTest(t, fakeReconciler{err: errors.New("boom")})
	require.Error(t, job.Run(context.Background()))
}

func TestNewReconciliationJobValidation(t *testing.T) {
	_, err := NewReconciliationJob(ReconciliationJobParams{Reconciler: fakeReconciler{}})
	require.Error(t, err)
	_, err = NewReconciliationJob(ReconciliationJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})})
	require.Error(t, err)
}
