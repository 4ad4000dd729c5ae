package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

type stubRefunds struct {
	rows []models.RefundRequest
	err  error
}

func (s *stubRefunds) ListOpen(ctx context.Context) ([]models.RefundRequest, error) {
	return s.rows, s.err
}

type stubSettlements struct {
	rows []models.SettlementRecord
	err  error
}

func (s *stubSettlements) ListForMatching(ctx context.Context) ([]models.SettlementRecord, error) {
	return s.rows, s.err
}

type gaugeSpy struct {
	matched, unmatched int
	exposure           int64
	calls              int
}

func (g *gaugeSpy) SetReconciliation(matched, unmatched int, exposureCents int64) {
	g.matched, g.unmatched, g.exposure = matched, unmatched, exposureCents
	g.calls++
}

func TestRunWithoutPriorViewReportsDependencyError(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Refunds:     &stubRefunds{err: errors.New("dispute source timeout")},
		Settlements: &stubSettlements{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	view, err := svc.Run(context.Background())
	if view != nil {
		t.Fatalf("expected no view")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestRunServesLastGoodViewOnFailure(t *testing.T) {
	o := uuid.New()
	refunds := &stubRefunds{rows: []models.RefundRequest{refund(o, 50_000, 0), refund(uuid.New(), 50_000, time.Minute)}}
	settlements := &stubSettlements{rows: []models.SettlementRecord{settlement(o, 50_000, 0)}}
	gauges := &gaugeSpy{}
	svc, err := NewService(ServiceParams{
		Refunds:     refunds,
		Settlements: settlements,
		Metrics:     gauges,
		RetryAfter:  15 * time.Second,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	fresh, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if fresh.Stale || fresh.MatchedCount != 1 || fresh.UnmatchedCount != 1 {
		t.Fatalf("unexpected fresh view %+v", fresh)
	}
	if gauges.calls != 1 || gauges.exposure != 50_000 {
		t.Fatalf("gauges not published: %+v", gauges)
	}

	settlements.err = errors.New("processor feed down")
	stale, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("stale run should not fail: %v", err)
	}
	if !stale.Stale || stale.RetryAfterSeconds != 15 || stale.SourceError == "" {
		t.Fatalf("expected stale view with retry hint, got %+v", stale)
	}
	if stale.MatchedCount != 1 || stale.UnmatchedCount != 1 {
		t.Fatalf("stale view must keep the last good result")
	}
	if gauges.calls != 1 {
		t.Fatalf("a failed run must not overwrite gauges")
	}
}

func TestNewServiceRequiresSources(t *testing.T) {
	if _, err := NewService(ServiceParams{Settlements: &stubSettlements{}}); err == nil {
		t.Fatalf("expected error without refund source")
	}
	if _, err := NewService(ServiceParams{Refunds: &stubRefunds{}}); err == nil {
		t.Fatalf("expected error without settlement source")
	}
}
