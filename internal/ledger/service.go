package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	dbpkg "github.com/angelmondragon/packfinderz-finance/pkg/db"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records ledger events and derives vendor balances from them.
type Service interface {
	RecordEarning(ctx context.Context, input EarningInput) (*models.LedgerEvent, error)
	RecordReversal(ctx context.Context, tx *gorm.DB, input ReversalInput) (*models.LedgerEvent, error)
	RecordWithdrawal(ctx context.Context, tx *gorm.DB, input WithdrawalInput) (*models.LedgerEvent, error)
	Balance(ctx context.Context, vendorID uuid.UUID) (*Snapshot, error)
	BalanceTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*Snapshot, error)
	VendorsWithActivity(ctx context.Context) ([]uuid.UUID, error)
	UnrecordedWithdrawals(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutRequest, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// EarningInput captures a completed order's payout-eligible amount.
type EarningInput struct {
	VendorID    uuid.UUID       `json:"vendor_id"`
	OrderID     uuid.UUID       `json:"order_id"`
	AmountCents int64           `json:"amount_cents"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// ReversalInput captures the balance effect of a resolved refund.
type ReversalInput struct {
	VendorID    uuid.UUID
	RefundID    uuid.UUID
	OrderID     uuid.UUID
	AmountCents int64
	OperatorID  uuid.UUID
}

// WithdrawalInput captures the balance effect of a completed payout.
type WithdrawalInput struct {
	VendorID    uuid.UUID
	PayoutID    uuid.UUID
	AmountCents int64
	ActorID     *uuid.UUID
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// RecordEarning is idempotent per order: a repeated call returns the existing event.
func (s *service) RecordEarning(ctx context.Context, input EarningInput) (*models.LedgerEvent, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	orderID := input.OrderID
	event := &models.LedgerEvent{
		VendorID:    input.VendorID,
		Type:        enums.LedgerEventTypeEarning,
		AmountCents: input.AmountCents,
		OrderID:     &orderID,
		Metadata:    input.Metadata,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		if !dbpkg.IsUniqueViolation(err, "ux_ledger_events_order_id") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record earning")
		}
		existing, findErr := s.repo.FindByOrderID(ctx, orderID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load existing earning")
		}
		if existing.VendorID != input.VendorID || existing.AmountCents != input.AmountCents {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "earning already recorded for order with different values")
		}
		return existing, nil
	}
	return event, nil
}

func (s *service) RecordReversal(ctx context.Context, tx *gorm.DB, input ReversalInput) (*models.LedgerEvent, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.VendorID == uuid.Nil || input.RefundID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id and refund id are required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	refundID := input.RefundID
	operatorID := input.OperatorID
	metadata, err := json.Marshal(map[string]string{"order_id": input.OrderID.String()})
	if err != nil {
		return nil, err
	}
	event := &models.LedgerEvent{
		VendorID:    input.VendorID,
		Type:        enums.LedgerEventTypeRefundReversal,
		AmountCents: input.AmountCents,
		RefundID:    &refundID,
		ActorID:     &operatorID,
		Metadata:    metadata,
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_ledger_events_refund_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "refund already reversed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record reversal")
	}
	return event, nil
}

func (s *service) RecordWithdrawal(ctx context.Context, tx *gorm.DB, input WithdrawalInput) (*models.LedgerEvent, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.VendorID == uuid.Nil || input.PayoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id and payout id are required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	payoutID := input.PayoutID
	event := &models.LedgerEvent{
		VendorID:    input.VendorID,
		Type:        enums.LedgerEventTypeVendorPayout,
		AmountCents: input.AmountCents,
		PayoutID:    &payoutID,
		ActorID:     input.ActorID,
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_ledger_events_payout_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payout already withdrawn")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record withdrawal")
	}
	return event, nil
}

func (s *service) Balance(ctx context.Context, vendorID uuid.UUID) (*Snapshot, error) {
	return s.balance(ctx, s.repo, vendorID)
}

// BalanceTx reads inside tx so the check and the write that follows see the same rows.
func (s *service) BalanceTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*Snapshot, error) {
	return s.balance(ctx, s.repo.WithTx(tx), vendorID)
}

func (s *service) balance(ctx context.Context, repo Repository, vendorID uuid.UUID) (*Snapshot, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	events, err := repo.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger events")
	}
	reservations, err := repo.ListReservations(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout reservations")
	}
	snap := Compute(vendorID, EntriesFromHistory(events, reservations), s.now())
	return &snap, nil
}

func (s *service) VendorsWithActivity(ctx context.Context) ([]uuid.UUID, error) {
	vendors, err := s.repo.VendorsWithActivity(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list vendors")
	}
	return vendors, nil
}

// UnrecordedWithdrawals returns completed payouts that have no matching withdrawal event.
func (s *service) UnrecordedWithdrawals(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutRequest, error) {
	completed, err := s.repo.ListCompletedPayouts(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load completed payouts")
	}
	if len(completed) == 0 {
		return nil, nil
	}
	events, err := s.repo.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger events")
	}
	recorded := make(map[uuid.UUID]struct{}, len(events))
	for _, event := range events {
		if event.Type == enums.LedgerEventTypeVendorPayout && event.PayoutID != nil {
			recorded[*event.PayoutID] = struct{}{}
		}
	}
	var missing []models.PayoutRequest
	for _, payout := range completed {
		if _, ok := recorded[payout.ID]; !ok {
			missing = append(missing, payout)
		}
	}
	return missing, nil
}
