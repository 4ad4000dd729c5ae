package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	"github.com/angelmondragon/packfinderz-finance/api/validators"
	"github.com/angelmondragon/packfinderz-finance/internal/ledger"
	"github.com/angelmondragon/packfinderz-finance/internal/payouts"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/money"
)

type balanceReader interface {
	Balance(ctx context.Context, vendorID uuid.UUID) (*ledger.Snapshot, error)
}

type methodService interface {
	List(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutMethod, error)
	Add(ctx context.Context, vendorID uuid.UUID, input payouts.AddMethodInput) (*models.PayoutMethod, error)
	Remove(ctx context.Context, vendorID, methodID uuid.UUID) error
	SetDefault(ctx context.Context, vendorID, methodID uuid.UUID) (*models.PayoutMethod, error)
}

// payoutRequestBody takes the amount either in cents or as a decimal string such
// as "45.00"; exactly one must be set.
type payoutRequestBody struct {
	AmountCents int64     `json:"amount_cents" validate:"gte=0"`
	Amount      string    `json:"amount" validate:"max=32"`
	MethodID    uuid.UUID `json:"method_id" validate:"required"`
	Notes       string    `json:"notes" validate:"max=500"`
}

func (b payoutRequestBody) cents() (int64, error) {
	amount := strings.TrimSpace(b.Amount)
	switch {
	case amount != "" && b.AmountCents != 0:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "send amount_cents or amount, not both")
	case amount == "" && b.AmountCents == 0:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"amount_cents": "is required"})
	case amount == "":
		return b.AmountCents, nil
	}
	cents, err := money.ParseCents(amount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{"amount": err.Error()})
	}
	if cents <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"amount": "must be greater than 0"})
	}
	return cents, nil
}

type balanceResponse struct {
	*ledger.Snapshot
	AvailableDisplay string `json:"available_display"`
	PendingDisplay   string `json:"pending_display"`
}

// VendorBalance serves the acting vendor's snapshot. A negative available balance is
// returned as is with the anomaly flag set.
func VendorBalance(svc balanceReader, currency string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendor, err := vendorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		snap, err := svc.Balance(ctx, vendor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{
			Snapshot:         snap,
			AvailableDisplay: money.Format(snap.AvailableCents, currency),
			PendingDisplay:   money.Format(snap.PendingCents, currency),
		})
	}
}

func VendorPayoutMethods(svc methodService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendor, err := vendorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		methods, err := svc.List(ctx, vendor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if methods == nil {
			methods = []models.PayoutMethod{}
		}
		responses.WriteSuccess(w, map[string]any{"items": methods})
	}
}

func VendorAddPayoutMethod(svc methodService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendor, err := vendorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var input payouts.AddMethodInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input.Label = validators.SanitizeString(input.Label, 80)
		method, err := svc.Add(ctx, vendor, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, method)
	}
}

func VendorRemovePayoutMethod(svc methodService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendor, err := vendorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		methodID, err := validators.PathUUID(r, "methodId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.Remove(ctx, vendor, methodID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"id": methodID.String(), "status": "removed"})
	}
}

func VendorSetDefaultPayoutMethod(svc methodService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendor, err := vendorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		methodID, err := validators.PathUUID(r, "methodId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		method, err := svc.SetDefault(ctx, vendor, methodID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, method)
	}
}

// VendorRequestPayout reserves funds from the acting vendor's available balance.
func VendorRequestPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendor, err := vendorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body payoutRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cents, err := body.cents()
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payout, err := svc.RequestPayout(ctx, payouts.RequestInput{
			VendorID:    vendor,
			AmountCents: cents,
			MethodID:    body.MethodID,
			Notes:       strings.TrimSpace(body.Notes),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payout)
	}
}

func VendorCancelPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendor, err := vendorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payoutID, err := validators.PathUUID(r, "payoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payout, err := svc.CancelPayout(ctx, payoutID, vendor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// VendorPayoutHistory is the operator history pinned to the acting vendor.
func VendorPayoutHistory(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendor, err := vendorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := historyParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params.VendorID = &vendor
		result, err := svc.History(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
