package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/packfinderz-finance/internal/reconciliation"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

type reconciler interface {
	Run(ctx context.Context) (*reconciliation.View, error)
}

// ReconciliationJobParams configure the reconciliation sweep.
type ReconciliationJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
}

// NewReconciliationJob runs the matching engine on schedule so the exposure gauges stay current
// even when nobody opens the panel.
func NewReconciliationJob(params ReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconciliationJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type reconciliationJob struct {
	logg       *logger.Logger
	reconciler reconciler
}

func (j *reconciliationJob) Name() string { return "reconciliation-sweep" }

func (j *reconciliationJob) Run(ctx context.Context) error {
	view, err := j.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if view.Stale {
		return errors.New("reconcile: sources unavailable, served last good view: " + view.SourceError)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"matched":                  view.MatchedCount,
		"unmatched":                view.UnmatchedCount,
		"unmatched_exposure_cents": view.UnmatchedExposureCents,
	})
	if view.UnmatchedCount > 0 {
		j.logg.Warn(logCtx, "refunds without a matching settlement")
		return nil
	}
	j.logg.Info(logCtx, "reconciliation sweep complete")
	return nil
}
