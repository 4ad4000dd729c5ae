package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	"github.com/angelmondragon/packfinderz-finance/api/validators"
	"github.com/angelmondragon/packfinderz-finance/internal/refunds"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

type refundService interface {
	List(ctx context.Context, params refunds.ListParams) (*refunds.ListResult, error)
	StartReview(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error)
	MarkApproved(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error)
	ApproveOne(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error)
	ApproveBulk(ctx context.Context, refundIDs []uuid.UUID, operatorID uuid.UUID) (*refunds.BulkResult, error)
	Reject(ctx context.Context, refundID, operatorID uuid.UUID, reason string) (*models.RefundRequest, error)
}

type bulkApproveRequest struct {
	RefundIDs []uuid.UUID `json:"refund_ids" validate:"required,min=1,max=500"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

// RefundsList serves the operator refund table.
func RefundsList(svc refundService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		statuses, err := validators.QueryEnumList(r, "status", enums.ParseRefundStatus)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		refundType, err := validators.QueryEnum(r, "type", enums.ParseRefundType)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		vendor, err := validators.QueryUUID(r, "vendor_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := validators.QueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.List(ctx, refunds.ListParams{
			Params:   page,
			Statuses: statuses,
			Type:     refundType,
			VendorID: vendor,
			OrderID:  order,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RefundApprove resolves one refund and reverses it against the vendor's balance.
func RefundApprove(svc refundService, logg *logger.Logger) http.HandlerFunc {
	return refundAction(logg, func(ctx context.Context, refundID, operator uuid.UUID, _ *http.Request) (*models.RefundRequest, error) {
		return svc.ApproveOne(ctx, refundID, operator)
	})
}

// RefundReview moves a pending refund under review.
func RefundReview(svc refundService, logg *logger.Logger) http.HandlerFunc {
	return refundAction(logg, func(ctx context.Context, refundID, operator uuid.UUID, _ *http.Request) (*models.RefundRequest, error) {
		return svc.StartReview(ctx, refundID, operator)
	})
}

// RefundMarkApproved records the operator's approval without paying the refund out yet.
func RefundMarkApproved(svc refundService, logg *logger.Logger) http.HandlerFunc {
	return refundAction(logg, func(ctx context.Context, refundID, operator uuid.UUID, _ *http.Request) (*models.RefundRequest, error) {
		return svc.MarkApproved(ctx, refundID, operator)
	})
}

// RefundReject closes a refund without moving money.
func RefundReject(svc refundService, logg *logger.Logger) http.HandlerFunc {
	return refundAction(logg, func(ctx context.Context, refundID, operator uuid.UUID, r *http.Request) (*models.RefundRequest, error) {
		var body rejectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Reject(ctx, refundID, operator, validators.SanitizeString(body.Reason, 500))
	})
}

// RefundApproveBulk approves each id independently. The response is 200 even when
// some items fail; per-item errors are in the body.
func RefundApproveBulk(svc refundService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		operator, err := operatorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body bulkApproveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.ApproveBulk(ctx, body.RefundIDs, operator)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func refundAction(logg *logger.Logger, act func(ctx context.Context, refundID, operator uuid.UUID, r *http.Request) (*models.RefundRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		operator, err := operatorID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		refundID, err := validators.PathUUID(r, "refundId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		refund, err := act(ctx, refundID, operator, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, refund)
	}
}
