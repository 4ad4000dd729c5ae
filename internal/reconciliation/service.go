package reconciliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

const defaultRetryAfter = 30 * time.Second

type refundSource interface {
	ListOpen(ctx context.Context) ([]models.RefundRequest, error)
}

type settlementSource interface {
	ListForMatching(ctx context.Context) ([]models.SettlementRecord, error)
}

type gaugeRecorder interface {
	SetReconciliation(matched, unmatched int, exposureCents int64)
}

// Service runs the matching engine over the current open refunds and settlements.
type Service interface {
	Run(ctx context.Context) (*View, error)
}

// View is the reconciliation panel payload. A stale view is the last successful
// run, served because a source failed on this attempt.
type View struct {
	Result
	GeneratedAt       time.Time `json:"generated_at"`
	Stale             bool      `json:"stale"`
	SourceError       string    `json:"source_error,omitempty"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}

// ServiceParams groups the reconciliation service dependencies.
type ServiceParams struct {
	Refunds        refundSource
	Settlements    settlementSource
	ToleranceCents int64
	Logger         *logger.Logger
	Metrics        gaugeRecorder
	RetryAfter     time.Duration
	Now            func() time.Time
}

type service struct {
	refunds     refundSource
	settlements settlementSource
	tolerance   int64
	logg        *logger.Logger
	metrics     gaugeRecorder
	retryAfter  time.Duration
	now         func() time.Time

	mu       sync.RWMutex
	lastGood *View
}

// NewService builds the reconciliation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund source required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement source required")
	}
	tolerance := params.ToleranceCents
	if tolerance <= 0 {
		tolerance = DefaultToleranceCents
	}
	retryAfter := params.RetryAfter
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		refunds:     params.Refunds,
		settlements: params.Settlements,
		tolerance:   tolerance,
		logg:        params.Logger,
		metrics:     params.Metrics,
		retryAfter:  retryAfter,
		now:         now,
	}, nil
}

// Run loads both sources concurrently and matches them. When a source fails the
// previous successful view is returned marked stale; with no previous view the
// failure is returned as a retryable dependency error.
func (s *service) Run(ctx context.Context) (*View, error) {
	var (
		refunds     []models.RefundRequest
		settlements []models.SettlementRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.refunds.ListOpen(gctx)
		if err != nil {
			return fmt.Errorf("open refunds: %w", err)
		}
		refunds = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.settlements.ListForMatching(gctx)
		if err != nil {
			return fmt.Errorf("settlements: %w", err)
		}
		settlements = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return s.fallback(ctx, err)
	}

	view := &View{
		Result:      Match(refunds, settlements, s.tolerance),
		GeneratedAt: s.now(),
	}
	s.mu.Lock()
	s.lastGood = view
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetReconciliation(view.MatchedCount, view.UnmatchedCount, view.UnmatchedExposureCents)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"matched":        view.MatchedCount,
			"unmatched":      view.UnmatchedCount,
			"exposure_cents": view.UnmatchedExposureCents,
		}), "reconciliation run complete")
	}
	return cloneView(view), nil
}

func (s *service) fallback(ctx context.Context, cause error) (*View, error) {
	retrySeconds := int(s.retryAfter / time.Second)
	if s.logg != nil {
		s.logg.WarnErr(ctx, "reconciliation source unavailable", cause)
	}

	s.mu.RLock()
	last := s.lastGood
	s.mu.RUnlock()
	if last == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "reconciliation sources unavailable").
			WithRetryAfter(s.retryAfter)
	}

	view := cloneView(last)
	view.Stale = true
	view.SourceError = cause.Error()
	view.RetryAfterSeconds = retrySeconds
	return view, nil
}

func cloneView(v *View) *View {
	out := *v
	out.Matched = make([]Record, len(v.Matched))
	copy(out.Matched, v.Matched)
	out.Unmatched = make([]Record, len(v.Unmatched))
	copy(out.Unmatched, v.Unmatched)
	return &out
}
