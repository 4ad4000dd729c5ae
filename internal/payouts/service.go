package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/internal/ledger"
	"github.com/angelmondragon/packfinderz-finance/internal/vendorlock"
	dbpkg "github.com/angelmondragon/packfinderz-finance/pkg/db"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/money"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-finance/pkg/pagination"
)

// DefaultMinPayoutCents is used when no minimum is configured.
const DefaultMinPayoutCents int64 = 1000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type balanceLedger interface {
	BalanceTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*ledger.Snapshot, error)
	RecordWithdrawal(ctx context.Context, tx *gorm.DB, input ledger.WithdrawalInput) (*models.LedgerEvent, error)
}

type transitionRecorder interface {
	IncPayoutTransition(status string)
}

// Service drives vendor payouts from request to a terminal status.
type Service interface {
	RequestPayout(ctx context.Context, input RequestInput) (*models.PayoutRequest, error)
	CancelPayout(ctx context.Context, payoutID, vendorID uuid.UUID) (*models.PayoutRequest, error)
	MarkProcessing(ctx context.Context, payoutID, operatorID uuid.UUID) (*models.PayoutRequest, error)
	MarkCompleted(ctx context.Context, payoutID, operatorID uuid.UUID) (*models.PayoutRequest, error)
	MarkFailed(ctx context.Context, payoutID, operatorID uuid.UUID, reason string) (*models.PayoutRequest, error)
	History(ctx context.Context, params HistoryParams) (*HistoryResult, error)
}

// RequestInput is a vendor's withdrawal request.
type RequestInput struct {
	VendorID    uuid.UUID `json:"-"`
	AmountCents int64     `json:"amount_cents" validate:"required,gt=0"`
	MethodID    uuid.UUID `json:"method_id" validate:"required"`
	Notes       string    `json:"notes" validate:"max=500"`
}

// HistoryParams filters the payout history table.
type HistoryParams struct {
	pagination.Params
	VendorID   *uuid.UUID
	MethodType *enums.PayoutMethodType
	Statuses   []enums.PayoutStatus
	From       *time.Time
	To         *time.Time
}

// Totals summarizes every payout matching a history filter.
type Totals struct {
	Count            int64  `json:"count"`
	CompletedCount   int64  `json:"completed_count"`
	CompletedCents   int64  `json:"completed_cents"`
	CompletedDisplay string `json:"completed_display"`
}

// HistoryResult is one page of payout history plus filter-wide totals.
type HistoryResult struct {
	Items      []models.PayoutRequest `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
	Totals     Totals                 `json:"totals"`
}

// ServiceParams groups the payout service dependencies.
type ServiceParams struct {
	Repository     Repository
	TxRunner       txRunner
	Ledger         balanceLedger
	Outbox         outboxPublisher
	Locker         vendorlock.Locker
	Logger         *logger.Logger
	Metrics        transitionRecorder
	MinPayoutCents int64
	Currency       string
	Now            func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   balanceLedger
	outbox   outboxPublisher
	locker   vendorlock.Locker
	logg     *logger.Logger
	metrics  transitionRecorder
	minimum  int64
	currency string
	now      func() time.Time
}

// NewService builds the payout request service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("vendor locker required")
	}
	minimum := params.MinPayoutCents
	if minimum <= 0 {
		minimum = DefaultMinPayoutCents
	}
	currency := strings.TrimSpace(params.Currency)
	if currency == "" {
		currency = "usd"
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TxRunner,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		locker:   params.Locker,
		logg:     params.Logger,
		metrics:  params.Metrics,
		minimum:  minimum,
		currency: currency,
		now:      now,
	}, nil
}

// RequestPayout checks the amount against the available balance and reserves it by
// creating a pending payout. The balance read and the insert share the vendor lock
// and one transaction.
func (s *service) RequestPayout(ctx context.Context, input RequestInput) (*models.PayoutRequest, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	if input.AmountCents < s.minimum {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payout must be at least %s", money.Format(s.minimum, s.currency)).
			WithDetails(map[string]any{"minimum_cents": s.minimum, "requested_cents": input.AmountCents})
	}
	if input.MethodID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout method is required")
	}

	var created *models.PayoutRequest
	err := s.locker.WithVendorLock(ctx, input.VendorID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			method, err := repo.FindMethod(ctx, input.MethodID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout method")
			}
			if method == nil || method.VendorID != input.VendorID {
				return pkgerrors.New(pkgerrors.CodeValidation, "payout method does not belong to vendor").
					WithDetails(map[string]any{"method_id": input.MethodID})
			}

			snap, err := s.ledger.BalanceTx(ctx, tx, input.VendorID)
			if err != nil {
				return err
			}
			if input.AmountCents > snap.AvailableCents {
				return pkgerrors.Newf(pkgerrors.CodeInsufficientBalance, "requested %s exceeds available %s",
					money.Format(input.AmountCents, s.currency), money.Format(snap.AvailableCents, s.currency)).
					WithDetails(map[string]any{
						"available_cents": snap.AvailableCents,
						"requested_cents": input.AmountCents,
					})
			}

			payout := &models.PayoutRequest{
				ID:          uuid.New(),
				VendorID:    input.VendorID,
				AmountCents: input.AmountCents,
				MethodID:    method.ID,
				Status:      enums.PayoutStatusPending,
			}
			payout.Reference = newReference(s.now(), payout.ID)
			if notes := strings.TrimSpace(input.Notes); notes != "" {
				payout.Notes = &notes
			}
			if err := repo.CreatePayout(ctx, payout); err != nil {
				if dbpkg.IsUniqueViolation(err, referenceConstraint) {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payout reference collision")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payout")
			}
			if err := s.emit(ctx, tx, enums.EventPayoutRequested, payout, outbox.VendorActor(input.VendorID)); err != nil {
				return err
			}
			created = payout
			return nil
		})
	})
	if err != nil {
		s.logFailure(ctx, input.VendorID, uuid.Nil, "payout request rejected", err)
		return nil, err
	}

	s.recordTransition(enums.PayoutStatusPending)
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(s.logg.WithVendorID(ctx, input.VendorID.String()), map[string]any{
			"payout_id":    created.ID.String(),
			"amount_cents": created.AmountCents,
			"reference":    created.Reference,
		}), "payout requested")
	}
	return created, nil
}

// CancelPayout releases a pending payout's reservation. Only the owning vendor may cancel.
func (s *service) CancelPayout(ctx context.Context, payoutID, vendorID uuid.UUID) (*models.PayoutRequest, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	return s.advance(ctx, payoutID, enums.PayoutStatusCancelled, outbox.VendorActor(vendorID), func(p *models.PayoutRequest) error {
		if p.VendorID != vendorID {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "payout %s not found", payoutID)
		}
		return nil
	}, nil, nil)
}

func (s *service) MarkProcessing(ctx context.Context, payoutID, operatorID uuid.UUID) (*models.PayoutRequest, error) {
	if operatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}
	return s.advance(ctx, payoutID, enums.PayoutStatusProcessing, outbox.OperatorActor(operatorID), nil, nil, nil)
}

// MarkCompleted finalizes the payout and records the withdrawal ledger event in
// the same transaction, moving the amount from pending to withdrawn.
func (s *service) MarkCompleted(ctx context.Context, payoutID, operatorID uuid.UUID) (*models.PayoutRequest, error) {
	if operatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}
	return s.advance(ctx, payoutID, enums.PayoutStatusCompleted, outbox.OperatorActor(operatorID), nil,
		func(u *payoutUpdate) {
			at := u.UpdatedAt
			u.ProcessedAt = &at
		},
		func(ctx context.Context, tx *gorm.DB, p *models.PayoutRequest) error {
			_, err := s.ledger.RecordWithdrawal(ctx, tx, ledger.WithdrawalInput{
				VendorID:    p.VendorID,
				PayoutID:    p.ID,
				AmountCents: p.AmountCents,
				ActorID:     &operatorID,
			})
			return err
		})
}

// MarkFailed releases the reservation of a processing payout.
func (s *service) MarkFailed(ctx context.Context, payoutID, operatorID uuid.UUID, reason string) (*models.PayoutRequest, error) {
	if operatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	return s.advance(ctx, payoutID, enums.PayoutStatusFailed, outbox.OperatorActor(operatorID), nil,
		func(u *payoutUpdate) {
			at := u.UpdatedAt
			u.FailureReason = &reason
			u.ProcessedAt = &at
		}, nil)
}

// advance applies one guarded status move under the vendor lock. check runs on the
// loaded payout before the transition; effect runs inside the transaction after it.
func (s *service) advance(
	ctx context.Context,
	payoutID uuid.UUID,
	to enums.PayoutStatus,
	actor *outbox.ActorRef,
	check func(*models.PayoutRequest) error,
	mutate func(*payoutUpdate),
	effect func(ctx context.Context, tx *gorm.DB, p *models.PayoutRequest) error,
) (*models.PayoutRequest, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	current, err := s.load(ctx, s.repo, payoutID)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(current); err != nil {
			return nil, err
		}
	}
	if !CanTransition(current.Status, to) {
		return nil, transitionError(current.Status, to)
	}

	var updated *models.PayoutRequest
	err = s.locker.WithVendorLock(ctx, current.VendorID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			payout, err := s.load(ctx, repo, payoutID)
			if err != nil {
				return err
			}
			from := payout.Status
			if !CanTransition(from, to) {
				return transitionError(from, to)
			}
			update := payoutUpdate{Status: to, UpdatedAt: s.now()}
			if mutate != nil {
				mutate(&update)
			}
			ok, err := repo.UpdatePayoutStatus(ctx, payoutID, from, update)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payout status")
			}
			if !ok {
				return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "payout %s changed concurrently", payoutID)
			}
			payout, err = s.load(ctx, repo, payoutID)
			if err != nil {
				return err
			}
			if effect != nil {
				if err := effect(ctx, tx, payout); err != nil {
					return err
				}
			}
			if err := s.emit(ctx, tx, eventFor(to), payout, actor); err != nil {
				return err
			}
			updated = payout
			return nil
		})
	})
	if err != nil {
		s.logFailure(ctx, current.VendorID, payoutID, "payout transition failed", err)
		return nil, err
	}

	s.recordTransition(to)
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(s.logg.WithVendorID(ctx, updated.VendorID.String()), map[string]any{
			"payout_id": updated.ID.String(),
			"status":    string(updated.Status),
		}), "payout status changed")
	}
	return updated, nil
}

func (s *service) History(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	if params.MethodType != nil && !params.MethodType.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payout method type %q", *params.MethodType)
	}
	for _, status := range params.Statuses {
		if !status.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payout status %q", status)
		}
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	query := historyQuery{
		Limit:      params.Limit,
		VendorID:   params.VendorID,
		MethodType: params.MethodType,
		Statuses:   params.Statuses,
		From:       params.From,
		To:         params.To,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, err
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListPayouts(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	totals, err := s.repo.Totals(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payouts")
	}
	totals.CompletedDisplay = money.Format(totals.CompletedCents, s.currency)

	result := &HistoryResult{Items: rows, Totals: *totals}
	if result.Items == nil {
		result.Items = []models.PayoutRequest{}
	}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, p *models.PayoutRequest, actor *outbox.ActorRef) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayoutRequest,
		AggregateID:   p.ID,
		Actor:         actor,
		Data: payloads.PayoutStatusEvent{
			PayoutID:      p.ID,
			VendorID:      p.VendorID,
			MethodID:      p.MethodID,
			AmountCents:   p.AmountCents,
			Reference:     p.Reference,
			Status:        p.Status,
			FailureReason: p.FailureReason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payout event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, payoutID uuid.UUID) (*models.PayoutRequest, error) {
	payout, err := repo.FindPayout(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "payout %s not found", payoutID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout")
	}
	return payout, nil
}

func (s *service) recordTransition(status enums.PayoutStatus) {
	if s.metrics != nil {
		s.metrics.IncPayoutTransition(string(status))
	}
}

func (s *service) logFailure(ctx context.Context, vendorID, payoutID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	fields := map[string]any{"vendor_id": vendorID.String(), "error": err.Error()}
	if payoutID != uuid.Nil {
		fields["payout_id"] = payoutID.String()
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func eventFor(status enums.PayoutStatus) enums.OutboxEventType {
	switch status {
	case enums.PayoutStatusProcessing:
		return enums.EventPayoutProcessing
	case enums.PayoutStatusCompleted:
		return enums.EventPayoutCompleted
	case enums.PayoutStatusFailed:
		return enums.EventPayoutFailed
	case enums.PayoutStatusCancelled:
		return enums.EventPayoutCancelled
	default:
		return enums.EventPayoutRequested
	}
}

// newReference builds the human-facing payout reference, e.g. PO-20260301-1A2B3C4D.
func newReference(at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("PO-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8]))
}
