package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	"github.com/angelmondragon/packfinderz-finance/api/validators"
	"github.com/angelmondragon/packfinderz-finance/internal/settlements"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

const (
	defaultInFlightLimit = 100
	maxInFlightLimit     = 500
	maxProcessorBody     = 1 << 20
)

type settlementService interface {
	Ingest(ctx context.Context, input settlements.IngestInput) (*settlements.IngestResult, error)
	ListInFlight(ctx context.Context, limit int) ([]models.SettlementRecord, error)
}

// SettlementIngest stores a processor confirmation. A replayed transaction id answers
// 200 with the stored record; a new one answers 201.
func SettlementIngest(svc settlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var input settlements.IngestInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Ingest(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// SettlementIngestStripe accepts a raw processor refund, charge or payout object.
func SettlementIngestStripe(svc settlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProcessorBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}
		input, err := settlements.FromStripeObject(raw)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Ingest(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// SettlementsInFlight feeds the payment status tracker.
func SettlementsInFlight(svc settlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.QueryInt(r, "limit", defaultInFlightLimit, 1, maxInFlightLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rows, err := svc.ListInFlight(ctx, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if rows == nil {
			rows = []models.SettlementRecord{}
		}
		responses.WriteSuccess(w, map[string]any{"items": rows, "count": len(rows)})
	}
}
