package controllers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-finance/internal/reconciliation"
	"github.com/angelmondragon/packfinderz-finance/internal/settlements"
	"github.com/angelmondragon/packfinderz-finance/internal/summary"
	"github.com/angelmondragon/packfinderz-finance/pkg/config"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := serve(HealthReady(cfg, testLogger(), map[string]Pinger{"db": ok, "redis": ok}), newRequest(http.MethodGet, "/health/ready", reqOpts{}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Finance-Env"))

	rec = serve(HealthReady(cfg, testLogger(), map[string]Pinger{"db": ok, "redis": down}), newRequest(http.MethodGet, "/health/ready", reqOpts{}))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeDependency), decodeError(t, rec).Code)
}

type summaryFunc func(context.Context) (*summary.Summary, error)

func (f summaryFunc) Get(ctx context.Context) (*summary.Summary, error) { return f(ctx) }

func TestFinanceSummary(t *testing.T) {
	svc := summaryFunc(func(context.Context) (*summary.Summary, error) {
		return &summary.Summary{TotalPendingCents: 4200, DisputeCount: 3}, nil
	})

	rec := serve(FinanceSummary(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/finance/summary", reqOpts{operator: uuid.NewString()}))

	require.Equal(t, http.StatusOK, rec.Code)
	var got summary.Summary
	decodeData(t, rec, &got)
	assert.Equal(t, int64(4200), got.TotalPendingCents)
	assert.Equal(t, int64(3), got.DisputeCount)
}

type reconcileFunc func(context.Context) (*reconciliation.View, error)

func (f reconcileFunc) Run(ctx context.Context) (*reconciliation.View, error) { return f(ctx) }

func TestReconciliationPanelStaleView(t *testing.T) {
	svc := reconcileFunc(func(context.Context) (*reconciliation.View, error) {
		return &reconciliation.View{GeneratedAt: time.Now(), Stale: true, SourceError: "settlements unavailable", RetryAfterSeconds: 30}, nil
	})

	rec := serve(ReconciliationPanel(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/reconciliation", reqOpts{operator: uuid.NewString()}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	var got reconciliation.View
	decodeData(t, rec, &got)
	assert.True(t, got.Stale)
}

func TestReconciliationPanelNoPriorView(t *testing.T) {
	svc := reconcileFunc(func(context.Context) (*reconciliation.View, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement source unavailable").
			WithRetryAfter(time.Minute)
	})

	rec := serve(ReconciliationPanel(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/reconciliation", reqOpts{operator: uuid.NewString()}))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.True(t, decodeError(t, rec).Retryable)
}

type fakeSettlements struct {
	duplicate bool
	limit     int
}

func (f *fakeSettlements) Ingest(_ context.Context, input settlements.IngestInput) (*settlements.IngestResult, error) {
	return &settlements.IngestResult{
		Record:    &models.SettlementRecord{OrderID: input.OrderID, AmountCents: input.AmountCents},
		Duplicate: f.duplicate,
	}, nil
}

func (f *fakeSettlements) ListInFlight(_ context.Context, limit int) ([]models.SettlementRecord, error) {
	f.limit = limit
	return nil, nil
}

func TestSettlementIngestStatus(t *testing.T) {
	body := `{"order_id":"` + uuid.NewString() + `","amount_cents":1500,"method":"card","processor_status":"succeeded","transaction_id":"pi_123"}`

	rec := serve(SettlementIngest(&fakeSettlements{}, testLogger()), newRequest(http.MethodPost, "/api/v1/settlements", reqOpts{operator: uuid.NewString(), body: body}))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(SettlementIngest(&fakeSettlements{duplicate: true}, testLogger()), newRequest(http.MethodPost, "/api/v1/settlements", reqOpts{operator: uuid.NewString(), body: body}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettlementIngestRequiresTransactionID(t *testing.T) {
	body := `{"order_id":"` + uuid.NewString() + `","amount_cents":1500,"method":"card","processor_status":"succeeded"}`

	rec := serve(SettlementIngest(&fakeSettlements{}, testLogger()), newRequest(http.MethodPost, "/api/v1/settlements", reqOpts{operator: uuid.NewString(), body: body}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettlementsInFlightLimit(t *testing.T) {
	svc := &fakeSettlements{}

	rec := serve(SettlementsInFlight(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/settlements/in-flight", reqOpts{operator: uuid.NewString()}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, svc.limit)
	assert.JSONEq(t, `{"data":{"items":[],"count":0}}`, rec.Body.String())

	rec = serve(SettlementsInFlight(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/settlements/in-flight?limit=900", reqOpts{operator: uuid.NewString()}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettlementIngestStripeObject(t *testing.T) {
	body := `{"id":"ch_1","object":"charge","amount":900,"currency":"usd","status":"succeeded","metadata":{"order_id":"` + uuid.NewString() + `"}}`

	rec := serve(SettlementIngestStripe(&fakeSettlements{}, testLogger()), newRequest(http.MethodPost, "/api/v1/settlements/stripe", reqOpts{operator: uuid.NewString(), body: body}))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(SettlementIngestStripe(&fakeSettlements{}, testLogger()), newRequest(http.MethodPost, "/api/v1/settlements/stripe", reqOpts{operator: uuid.NewString(), body: `{"object":"invoice"}`}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
