package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsRecordsOutcomesAndLag(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	now := time.Now()

	m.Event("payout_completed", OutboxPublished, now.Add(-3*time.Second), now)
	m.Event("payout_completed", OutboxRetried, now.Add(-time.Second), now)
	m.Batch(20*time.Millisecond, nil)
	m.Batch(time.Second, errors.New("db gone"))

	mfs := gather(t, reg)
	published := sample(mfs, "finance_outbox_events_total", "event_type", "payout_completed", "outcome", OutboxPublished)
	if published == nil || published.GetCounter().GetValue() != 1 {
		t.Fatalf("expected one published event, got %v", published)
	}
	lag := sample(mfs, "finance_outbox_publish_lag_seconds")
	if lag == nil || lag.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("only published events feed the lag histogram, got %v", lag)
	}
	if got := lag.GetHistogram().GetSampleSum(); got < 2.9 || got > 3.1 {
		t.Fatalf("unexpected lag sum %v", got)
	}
	if failed := sample(mfs, "finance_outbox_batch_duration_seconds", "result", "error"); failed == nil {
		t.Fatal("expected failed batch series")
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.Event("payout_completed", OutboxPublished, time.Now(), time.Now())
	m.Batch(time.Second, nil)
	if NewOutboxMetrics(nil) != nil {
		t.Fatal("nil registerer should yield a nil recorder")
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewOutboxMetrics(reg).Event("refund_resolved", OutboxDuplicate, time.Time{}, time.Now())

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `finance_outbox_events_total{event_type="refund_resolved",outcome="duplicate"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", rec.Body.String())
	}
}
