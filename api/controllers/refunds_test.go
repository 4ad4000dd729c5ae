package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-finance/internal/refunds"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

type fakeRefunds struct {
	listParams refunds.ListParams
	bulkIDs    []uuid.UUID
	rejectWhy  string
	approveErr error
}

func (f *fakeRefunds) List(_ context.Context, params refunds.ListParams) (*refunds.ListResult, error) {
	f.listParams = params
	return &refunds.ListResult{Items: []models.RefundRequest{}}, nil
}

func (f *fakeRefunds) StartReview(_ context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error) {
	return &models.RefundRequest{ID: refundID, Status: enums.RefundStatusUnderReview, ReviewedBy: &operatorID}, nil
}

func (f *fakeRefunds) MarkApproved(_ context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error) {
	return &models.RefundRequest{ID: refundID, Status: enums.RefundStatusApproved, ReviewedBy: &operatorID}, nil
}

func (f *fakeRefunds) ApproveOne(_ context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error) {
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return &models.RefundRequest{ID: refundID, Status: enums.RefundStatusResolved, ResolvedBy: &operatorID}, nil
}

func (f *fakeRefunds) ApproveBulk(_ context.Context, refundIDs []uuid.UUID, _ uuid.UUID) (*refunds.BulkResult, error) {
	f.bulkIDs = refundIDs
	out := &refunds.BulkResult{}
	for _, id := range refundIDs {
		out.Items = append(out.Items, refunds.ItemResult{RefundID: id, Success: true, Status: enums.RefundStatusResolved})
		out.Succeeded++
	}
	return out, nil
}

func (f *fakeRefunds) Reject(_ context.Context, refundID, _ uuid.UUID, reason string) (*models.RefundRequest, error) {
	f.rejectWhy = reason
	return &models.RefundRequest{ID: refundID, Status: enums.RefundStatusRejected, RejectionReason: &reason}, nil
}

func TestRefundsListParsesFilters(t *testing.T) {
	svc := &fakeRefunds{}
	vendor := uuid.New()
	req := newRequest(http.MethodGet, "/api/v1/refunds?status=pending,under_review&type=dispute&vendor_id="+vendor.String()+"&limit=10", reqOpts{operator: uuid.NewString()})

	rec := serve(RefundsList(svc, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []enums.RefundStatus{enums.RefundStatusPending, enums.RefundStatusUnderReview}, svc.listParams.Statuses)
	require.NotNil(t, svc.listParams.Type)
	assert.Equal(t, enums.RefundType("dispute"), *svc.listParams.Type)
	require.NotNil(t, svc.listParams.VendorID)
	assert.Equal(t, vendor, *svc.listParams.VendorID)
	assert.Equal(t, 10, svc.listParams.Limit)
}

func TestRefundsListRejectsUnknownStatus(t *testing.T) {
	req := newRequest(http.MethodGet, "/api/v1/refunds?status=settled", reqOpts{operator: uuid.NewString()})

	rec := serve(RefundsList(&fakeRefunds{}, testLogger()), req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, rec).Code)
}

func TestRefundApproveRequiresOperator(t *testing.T) {
	req := newRequest(http.MethodPost, "/api/v1/refunds/x/approve", reqOpts{params: map[string]string{"refundId": uuid.NewString()}})

	rec := serve(RefundApprove(&fakeRefunds{}, testLogger()), req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefundApproveMapsInvalidTransition(t *testing.T) {
	svc := &fakeRefunds{approveErr: pkgerrors.New(pkgerrors.CodeInvalidTransition, "refund is already resolved")}
	req := newRequest(http.MethodPost, "/api/v1/refunds/x/approve", reqOpts{
		operator: uuid.NewString(),
		params:   map[string]string{"refundId": uuid.NewString()},
	})

	rec := serve(RefundApprove(svc, testLogger()), req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "refund is already resolved", apiErr.Message)
}

func TestRefundApproveReturnsResolvedRefund(t *testing.T) {
	id := uuid.New()
	req := newRequest(http.MethodPost, "/api/v1/refunds/x/approve", reqOpts{
		operator: uuid.NewString(),
		params:   map[string]string{"refundId": id.String()},
	})

	rec := serve(RefundApprove(&fakeRefunds{}, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.RefundRequest
	decodeData(t, rec, &got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, enums.RefundStatusResolved, got.Status)
}

func TestRefundMarkApproved(t *testing.T) {
	id := uuid.New()
	req := newRequest(http.MethodPost, "/api/v1/refunds/x/mark-approved", reqOpts{
		operator: uuid.NewString(),
		params:   map[string]string{"refundId": id.String()},
	})

	rec := serve(RefundMarkApproved(&fakeRefunds{}, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.RefundRequest
	decodeData(t, rec, &got)
	assert.Equal(t, enums.RefundStatusApproved, got.Status)
}

func TestRefundRejectRejectsBlankReason(t *testing.T) {
	req := newRequest(http.MethodPost, "/api/v1/refunds/x/reject", reqOpts{
		operator: uuid.NewString(),
		params:   map[string]string{"refundId": uuid.NewString()},
		body:     `{"reason":"   "}`,
	})

	rec := serve(RefundReject(&fakeRefunds{}, testLogger()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundApproveRejectsBadPathID(t *testing.T) {
	req := newRequest(http.MethodPost, "/api/v1/refunds/x/approve", reqOpts{
		operator: uuid.NewString(),
		params:   map[string]string{"refundId": "not-a-uuid"},
	})

	rec := serve(RefundApprove(&fakeRefunds{}, testLogger()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundRejectRequiresReason(t *testing.T) {
	req := newRequest(http.MethodPost, "/api/v1/refunds/x/reject", reqOpts{
		operator: uuid.NewString(),
		params:   map[string]string{"refundId": uuid.NewString()},
		body:     `{"reason":""}`,
	})

	rec := serve(RefundReject(&fakeRefunds{}, testLogger()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundRejectPassesReason(t *testing.T) {
	svc := &fakeRefunds{}
	req := newRequest(http.MethodPost, "/api/v1/refunds/x/reject", reqOpts{
		operator: uuid.NewString(),
		params:   map[string]string{"refundId": uuid.NewString()},
		body:     `{"reason":"  duplicate claim "}`,
	})

	rec := serve(RefundReject(svc, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate claim", svc.rejectWhy)
}

func TestRefundApproveBulk(t *testing.T) {
	svc := &fakeRefunds{}
	a, b := uuid.New(), uuid.New()
	req := newRequest(http.MethodPost, "/api/v1/refunds/approve-bulk", reqOpts{
		operator: uuid.NewString(),
		body:     `{"refund_ids":["` + a.String() + `","` + b.String() + `"]}`,
	})

	rec := serve(RefundApproveBulk(svc, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{a, b}, svc.bulkIDs)
	var got refunds.BulkResult
	decodeData(t, rec, &got)
	assert.Equal(t, 2, got.Succeeded)
	assert.Len(t, got.Items, 2)
}

func TestRefundApproveBulkRejectsEmptyList(t *testing.T) {
	req := newRequest(http.MethodPost, "/api/v1/refunds/approve-bulk", reqOpts{
		operator: uuid.NewString(),
		body:     `{"refund_ids":[]}`,
	})

	rec := serve(RefundApproveBulk(&fakeRefunds{}, testLogger()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
