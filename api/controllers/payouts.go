package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	"github.com/angelmondragon/packfinderz-finance/api/validators"
	"github.com/angelmondragon/packfinderz-finance/internal/payouts"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

type payoutService interface {
	RequestPayout(ctx context.Context, input payouts.RequestInput) (*models.PayoutRequest, error)
	CancelPayout(ctx context.Context, payoutID, vendorID uuid.UUID) (*models.PayoutRequest, error)
	MarkProcessing(ctx context.Context, payoutID, operatorID uuid.UUID) (*models.PayoutRequest, error)
	MarkCompleted(ctx context.Context, payoutID, operatorID uuid.UUID) (*models.PayoutRequest, error)
	MarkFailed(ctx context.Context, payoutID, operatorID uuid.UUID, reason string) (*models.PayoutRequest, error)
	History(ctx context.Context, params payouts.HistoryParams) (*payouts.HistoryResult, error)
}

type failPayoutRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

// PayoutHistory serves the operator payout table across vendors.
func PayoutHistory(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		params, err := historyParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if params.VendorID, err = validators.QueryUUID(r, "vendor_id"); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.History(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func PayoutMarkProcessing(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutOperatorAction(logg, func(ctx context.Context, payoutID, operator uuid.UUID, _ *http.Request) (*models.PayoutRequest, error) {
		return svc.MarkProcessing(ctx, payoutID, operator)
	})
}

// PayoutMarkCompleted records the withdrawal on the vendor's ledger.
func PayoutMarkCompleted(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutOperatorAction(logg, func(ctx context.Context, payoutID, operator uuid.UUID, _ *http.Request) (*models.PayoutRequest, error) {
		return svc.MarkCompleted(ctx, payoutID, operator)
	})
}

// PayoutMarkFailed releases the reservation; the reason is shown to the vendor.
func PayoutMarkFailed(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return payoutOperatorAction(logg, func(ctx context.Context, payoutID, operator uuid.UUID, r *http.Request) (*models.PayoutRequest, error) {
		var body failPayoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.MarkFailed(ctx, payoutID, operator, validators.SanitizeString(body.Reason, 500))
	})
}

func payoutOperatorAction(logg *logger.Logger, act func(ctx context.Context, payoutID, operator uuid.UUID, r *http.Request) (*models.PayoutRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		operator, err := operatorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payoutID, err := validators.PathUUID(r, "payoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payout, err := act(ctx, payoutID, operator, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

func historyParams(r *http.Request) (payouts.HistoryParams, error) {
	page, err := pageParams(r)
	if err != nil {
		return payouts.HistoryParams{}, err
	}
	methodType, err := validators.QueryEnum(r, "method_type", enums.ParsePayoutMethodType)
	if err != nil {
		return payouts.HistoryParams{}, err
	}
	statuses, err := validators.QueryEnumList(r, "status", enums.ParsePayoutStatus)
	if err != nil {
		return payouts.HistoryParams{}, err
	}
	from, err := validators.QueryTime(r, "from", false)
	if err != nil {
		return payouts.HistoryParams{}, err
	}
	to, err := validators.QueryTime(r, "to", true)
	if err != nil {
		return payouts.HistoryParams{}, err
	}
	return payouts.HistoryParams{
		Params:     page,
		MethodType: methodType,
		Statuses:   statuses,
		From:       from,
		To:         to,
	}, nil
}
