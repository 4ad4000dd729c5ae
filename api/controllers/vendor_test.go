package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-finance/internal/ledger"
	"github.com/angelmondragon/packfinderz-finance/internal/payouts"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

type fakeBalances struct {
	snap *ledger.Snapshot
}

func (f *fakeBalances) Balance(_ context.Context, vendorID uuid.UUID) (*ledger.Snapshot, error) {
	out := *f.snap
	out.VendorID = vendorID
	return &out, nil
}

type fakeMethods struct {
	added     payouts.AddMethodInput
	removed   uuid.UUID
	removeErr error
}

func (f *fakeMethods) List(context.Context, uuid.UUID) ([]models.PayoutMethod, error) {
	return nil, nil
}

func (f *fakeMethods) Add(_ context.Context, vendorID uuid.UUID, input payouts.AddMethodInput) (*models.PayoutMethod, error) {
	f.added = input
	return &models.PayoutMethod{ID: uuid.New(), VendorID: vendorID, Type: input.Type, IsDefault: true}, nil
}

func (f *fakeMethods) Remove(_ context.Context, _ uuid.UUID, methodID uuid.UUID) error {
	f.removed = methodID
	return f.removeErr
}

func (f *fakeMethods) SetDefault(_ context.Context, vendorID, methodID uuid.UUID) (*models.PayoutMethod, error) {
	return &models.PayoutMethod{ID: methodID, VendorID: vendorID, IsDefault: true}, nil
}

func TestVendorBalanceFormatsAmounts(t *testing.T) {
	vendor := uuid.New()
	svc := &fakeBalances{snap: &ledger.Snapshot{AvailableCents: 125050, PendingCents: 2500, TotalEarnedCents: 127550, AsOf: time.Now()}}
	req := newRequest(http.MethodGet, "/api/v1/vendor/balance", reqOpts{vendor: vendor.String()})

	rec := serve(VendorBalance(svc, "USD", testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	decodeData(t, rec, &got)
	assert.Equal(t, vendor.String(), got["vendor_id"])
	assert.EqualValues(t, 125050, got["available_cents"])
	assert.Equal(t, "USD 1250.50", got["available_display"])
	assert.Equal(t, "USD 25.00", got["pending_display"])
}

func TestVendorBalanceRequiresVendor(t *testing.T) {
	req := newRequest(http.MethodGet, "/api/v1/vendor/balance", reqOpts{operator: uuid.NewString()})

	rec := serve(VendorBalance(&fakeBalances{snap: &ledger.Snapshot{}}, "USD", testLogger()), req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVendorRequestPayoutUsesActingVendor(t *testing.T) {
	svc := &fakePayouts{}
	vendor, method := uuid.New(), uuid.New()
	body, _ := json.Marshal(map[string]any{"amount_cents": 5000, "method_id": method, "notes": " weekly "})
	req := newRequest(http.MethodPost, "/api/v1/vendor/payouts", reqOpts{vendor: vendor.String(), body: string(body)})

	rec := serve(VendorRequestPayout(svc, testLogger()), req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, vendor, svc.requested.VendorID)
	assert.Equal(t, method, svc.requested.MethodID)
	assert.Equal(t, int64(5000), svc.requested.AmountCents)
	assert.Equal(t, "weekly", svc.requested.Notes)
}

func TestVendorRequestPayoutRejectsBodyVendor(t *testing.T) {
	svc := &fakePayouts{}
	vendor := uuid.New()
	body := `{"amount_cents":100,"method_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `"}`
	req := newRequest(http.MethodPost, "/api/v1/vendor/payouts", reqOpts{vendor: vendor.String(), body: body})

	rec := serve(VendorRequestPayout(svc, testLogger()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.requested.VendorID)
}

func TestVendorRequestPayoutRejectsNonPositiveAmount(t *testing.T) {
	body := `{"amount_cents":0,"method_id":"` + uuid.NewString() + `"}`
	req := newRequest(http.MethodPost, "/api/v1/vendor/payouts", reqOpts{vendor: uuid.NewString(), body: body})

	rec := serve(VendorRequestPayout(&fakePayouts{}, testLogger()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVendorRequestPayoutAcceptsDecimalAmount(t *testing.T) {
	svc := &fakePayouts{}
	body := `{"amount":"45.10","method_id":"` + uuid.NewString() + `"}`
	req := newRequest(http.MethodPost, "/api/v1/vendor/payouts", reqOpts{vendor: uuid.NewString(), body: body})

	rec := serve(VendorRequestPayout(svc, testLogger()), req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(4510), svc.requested.AmountCents)
}

func TestVendorRequestPayoutRejectsBadDecimalAmounts(t *testing.T) {
	method := uuid.NewString()
	for name, body := range map[string]string{
		"sub cent":  `{"amount":"1.005","method_id":"` + method + `"}`,
		"garbage":   `{"amount":"ten","method_id":"` + method + `"}`,
		"zero":      `{"amount":"0.00","method_id":"` + method + `"}`,
		"both":      `{"amount":"1.00","amount_cents":100,"method_id":"` + method + `"}`,
		"negative":  `{"amount_cents":-5,"method_id":"` + method + `"}`,
		"no amount": `{"method_id":"` + method + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := &fakePayouts{}
			req := newRequest(http.MethodPost, "/api/v1/vendor/payouts", reqOpts{vendor: uuid.NewString(), body: body})

			rec := serve(VendorRequestPayout(svc, testLogger()), req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, uuid.Nil, svc.requested.VendorID)
		})
	}
}

func TestVendorRequestPayoutInsufficientBalance(t *testing.T) {
	svc := &fakePayouts{requestErr: pkgerrors.New(pkgerrors.CodeInsufficientBalance, "amount exceeds available balance")}
	body := `{"amount_cents":900000,"method_id":"` + uuid.NewString() + `"}`
	req := newRequest(http.MethodPost, "/api/v1/vendor/payouts", reqOpts{vendor: uuid.NewString(), body: body})

	rec := serve(VendorRequestPayout(svc, testLogger()), req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeInsufficientBalance), decodeError(t, rec).Code)
}

func TestVendorCancelPayout(t *testing.T) {
	svc := &fakePayouts{}
	vendor := uuid.New()
	req := newRequest(http.MethodPost, "/api/v1/vendor/payouts/x/cancel", reqOpts{
		vendor: vendor.String(),
		params: map[string]string{"payoutId": uuid.NewString()},
	})

	rec := serve(VendorCancelPayout(svc, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, vendor, svc.cancelVendor)
}

func TestVendorPayoutHistoryPinsVendor(t *testing.T) {
	svc := &fakePayouts{}
	vendor := uuid.New()
	req := newRequest(http.MethodGet, "/api/v1/vendor/payouts?vendor_id="+uuid.NewString(), reqOpts{vendor: vendor.String()})

	rec := serve(VendorPayoutHistory(svc, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.history.VendorID)
	assert.Equal(t, vendor, *svc.history.VendorID)
}

func TestVendorPayoutMethodsEmptyList(t *testing.T) {
	req := newRequest(http.MethodGet, "/api/v1/vendor/payout-methods", reqOpts{vendor: uuid.NewString()})

	rec := serve(VendorPayoutMethods(&fakeMethods{}, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"items":[]}}`, rec.Body.String())
}

func TestVendorAddPayoutMethod(t *testing.T) {
	svc := &fakeMethods{}
	req := newRequest(http.MethodPost, "/api/v1/vendor/payout-methods", reqOpts{
		vendor: uuid.NewString(),
		body:   `{"type":"debit_card","label":" Main card ","last4":"4242"}`,
	})

	rec := serve(VendorAddPayoutMethod(svc, testLogger()), req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, enums.PayoutMethodTypeDebitCard, svc.added.Type)
	assert.Equal(t, "Main card", svc.added.Label)
}

func TestVendorAddPayoutMethodRejectsBadLast4(t *testing.T) {
	req := newRequest(http.MethodPost, "/api/v1/vendor/payout-methods", reqOpts{
		vendor: uuid.NewString(),
		body:   `{"type":"debit_card","last4":"42a"}`,
	})

	rec := serve(VendorAddPayoutMethod(&fakeMethods{}, testLogger()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVendorRemovePayoutMethodNotFound(t *testing.T) {
	svc := &fakeMethods{removeErr: pkgerrors.New(pkgerrors.CodeNotFound, "payout method not found")}
	methodID := uuid.New()
	req := newRequest(http.MethodDelete, "/api/v1/vendor/payout-methods/x", reqOpts{
		vendor: uuid.NewString(),
		params: map[string]string{"methodId": methodID.String()},
	})

	rec := serve(VendorRemovePayoutMethod(svc, testLogger()), req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, methodID, svc.removed)
}

func TestVendorSetDefaultPayoutMethod(t *testing.T) {
	methodID := uuid.New()
	req := newRequest(http.MethodPost, "/api/v1/vendor/payout-methods/x/default", reqOpts{
		vendor: uuid.NewString(),
		params: map[string]string{"methodId": methodID.String()},
	})

	rec := serve(VendorSetDefaultPayoutMethod(&fakeMethods{}, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.PayoutMethod
	decodeData(t, rec, &got)
	assert.Equal(t, methodID, got.ID)
	assert.True(t, got.IsDefault)
}
