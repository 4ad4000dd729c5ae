package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/internal/ledger"
	"github.com/angelmondragon/packfinderz-finance/internal/vendorlock"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-finance/pkg/pagination"
)

const (
	defaultBulkConcurrency = 8
	maxBulkSize            = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reversalRecorder interface {
	RecordReversal(ctx context.Context, tx *gorm.DB, input ledger.ReversalInput) (*models.LedgerEvent, error)
}

type outcomeRecorder interface {
	IncRefundOutcome(outcome string)
}

// Service drives refund requests through review to a terminal state.
type Service interface {
	Get(ctx context.Context, refundID uuid.UUID) (*models.RefundRequest, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	ListOpen(ctx context.Context) ([]models.RefundRequest, error)
	StartReview(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error)
	MarkApproved(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error)
	ApproveOne(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error)
	ApproveBulk(ctx context.Context, refundIDs []uuid.UUID, operatorID uuid.UUID) (*BulkResult, error)
	Reject(ctx context.Context, refundID, operatorID uuid.UUID, reason string) (*models.RefundRequest, error)
}

// ServiceParams groups the refund service dependencies.
type ServiceParams struct {
	Repository      Repository
	TxRunner        txRunner
	Ledger          reversalRecorder
	Outbox          outboxPublisher
	Locker          vendorlock.Locker
	Logger          *logger.Logger
	Metrics         outcomeRecorder
	BulkConcurrency int
	Now             func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	ledger      reversalRecorder
	outbox      outboxPublisher
	locker      vendorlock.Locker
	logg        *logger.Logger
	metrics     outcomeRecorder
	concurrency int
	now         func() time.Time
}

// ListParams filters the operator refund table.
type ListParams struct {
	pagination.Params
	Statuses []enums.RefundStatus
	Type     *enums.RefundType
	VendorID *uuid.UUID
	OrderID  *uuid.UUID
}

// ListResult is one page of refunds.
type ListResult struct {
	Items      []models.RefundRequest `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// ItemError is the typed failure of one bulk item.
type ItemError struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
}

// ItemResult is the outcome for one refund in a bulk approval.
type ItemResult struct {
	RefundID uuid.UUID          `json:"refund_id"`
	Success  bool               `json:"success"`
	Status   enums.RefundStatus `json:"status,omitempty"`
	Error    *ItemError         `json:"error,omitempty"`
}

// BulkResult carries one ItemResult per requested id, in request order.
type BulkResult struct {
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// NewService builds the refund approval service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("refund repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("vendor locker required")
	}
	concurrency := params.BulkConcurrency
	if concurrency <= 0 {
		concurrency = defaultBulkConcurrency
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repository,
		tx:          params.TxRunner,
		ledger:      params.Ledger,
		outbox:      params.Outbox,
		locker:      params.Locker,
		logg:        params.Logger,
		metrics:     params.Metrics,
		concurrency: concurrency,
		now:         now,
	}, nil
}

func (s *service) Get(ctx context.Context, refundID uuid.UUID) (*models.RefundRequest, error) {
	if refundID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id is required")
	}
	return s.load(ctx, s.repo, refundID)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listParams{
		Limit:    params.Limit,
		Statuses: params.Statuses,
		Type:     params.Type,
		VendorID: params.VendorID,
		OrderID:  params.OrderID,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, err
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// ListOpen returns every refund still awaiting a terminal decision.
// A failed query surfaces as a dependency error, never as an empty list.
func (s *service) ListOpen(ctx context.Context) ([]models.RefundRequest, error) {
	rows, err := s.repo.ListOpen(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open refunds")
	}
	return rows, nil
}

func (s *service) StartReview(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error) {
	if err := validateIDs(refundID, operatorID); err != nil {
		return nil, err
	}
	var updated *models.RefundRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		refund, err := s.transition(ctx, tx, refundID, enums.RefundStatusUnderReview, func(u *statusUpdate) {
			u.ReviewedBy = &operatorID
		})
		updated = refund
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) MarkApproved(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error) {
	if err := validateIDs(refundID, operatorID); err != nil {
		return nil, err
	}
	var updated *models.RefundRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		refund, err := s.transition(ctx, tx, refundID, enums.RefundStatusApproved, func(u *statusUpdate) {
			u.ReviewedBy = &operatorID
		})
		updated = refund
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApproveOne resolves the refund and records its reversal in one transaction,
// under the vendor's lock.
func (s *service) ApproveOne(ctx context.Context, refundID, operatorID uuid.UUID) (*models.RefundRequest, error) {
	if err := validateIDs(refundID, operatorID); err != nil {
		return nil, err
	}
	refund, err := s.load(ctx, s.repo, refundID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(refund.Status, enums.RefundStatusResolved) {
		s.recordOutcome("invalid_transition")
		return nil, transitionError(refund.Status, enums.RefundStatusResolved)
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"refund_id":   refundID.String(),
			"vendor_id":   refund.VendorID.String(),
			"operator_id": operatorID.String(),
		})
	}

	var resolved *models.RefundRequest
	err = s.locker.WithVendorLock(ctx, refund.VendorID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			now := s.now()
			updated, err := s.transition(ctx, tx, refundID, enums.RefundStatusResolved, func(u *statusUpdate) {
				u.ResolvedBy = &operatorID
				u.ResolvedAt = &now
			})
			if err != nil {
				return err
			}
			if _, err := s.ledger.RecordReversal(ctx, tx, ledger.ReversalInput{
				VendorID:    updated.VendorID,
				RefundID:    updated.ID,
				OrderID:     updated.OrderID,
				AmountCents: updated.AmountCents,
				OperatorID:  operatorID,
			}); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRefundResolved,
				AggregateType: enums.AggregateRefundRequest,
				AggregateID:   updated.ID,
				Actor:         outbox.OperatorActor(operatorID),
				Data: payloads.RefundResolvedEvent{
					RefundID:    updated.ID,
					OrderID:     updated.OrderID,
					VendorID:    updated.VendorID,
					AmountCents: updated.AmountCents,
					ResolvedBy:  operatorID,
					ResolvedAt:  now,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund resolved event")
			}
			resolved = updated
			return nil
		})
	})
	if err != nil {
		s.recordOutcome(outcomeLabel(err))
		if s.logg != nil {
			s.logg.WarnErr(logCtx, "refund approval failed", err)
		}
		return nil, err
	}

	s.recordOutcome("resolved")
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(logCtx, "amount_cents", resolved.AmountCents), "refund resolved")
	}
	return resolved, nil
}

// ApproveBulk approves each refund independently. Failures are reported per item
// and never abort the rest of the batch.
func (s *service) ApproveBulk(ctx context.Context, refundIDs []uuid.UUID, operatorID uuid.UUID) (*BulkResult, error) {
	if operatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}
	if len(refundIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one refund id is required")
	}
	if len(refundIDs) > maxBulkSize {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d refunds per batch", maxBulkSize)
	}

	items := make([]ItemResult, len(refundIDs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, refundID := range refundIDs {
		g.Go(func() error {
			items[i] = s.approveItem(ctx, refundID, operatorID)
			return nil
		})
	}
	_ = g.Wait()

	result := &BulkResult{Items: items}
	for _, item := range items {
		if item.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"operator_id": operatorID.String(),
			"requested":   len(refundIDs),
			"succeeded":   result.Succeeded,
			"failed":      result.Failed,
		}), "bulk refund approval finished")
	}
	return result, nil
}

func (s *service) approveItem(ctx context.Context, refundID, operatorID uuid.UUID) (item ItemResult) {
	item.RefundID = refundID
	defer func() {
		if r := recover(); r != nil {
			item.Success = false
			item.Status = ""
			item.Error = &ItemError{Code: pkgerrors.CodeInternal, Message: fmt.Sprintf("unexpected failure: %v", r)}
		}
	}()
	refund, err := s.ApproveOne(ctx, refundID, operatorID)
	if err != nil {
		item.Error = toItemError(err)
		return item
	}
	item.Success = true
	item.Status = refund.Status
	return item
}

func (s *service) Reject(ctx context.Context, refundID, operatorID uuid.UUID, reason string) (*models.RefundRequest, error) {
	if err := validateIDs(refundID, operatorID); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}

	var rejected *models.RefundRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		updated, err := s.transition(ctx, tx, refundID, enums.RefundStatusRejected, func(u *statusUpdate) {
			u.ResolvedBy = &operatorID
			u.ResolvedAt = &now
			u.RejectionReason = &reason
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundRejected,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   updated.ID,
			Actor:         outbox.OperatorActor(operatorID),
			Data: payloads.RefundRejectedEvent{
				RefundID: updated.ID,
				OrderID:  updated.OrderID,
				VendorID: updated.VendorID,
				Reason:   reason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund rejected event")
		}
		rejected = updated
		return nil
	})
	if err != nil {
		s.recordOutcome(outcomeLabel(err))
		return nil, err
	}
	s.recordOutcome("rejected")
	return rejected, nil
}

// transition reloads the refund inside tx, checks the move and applies it with a
// status guard so a concurrent writer cannot be overwritten.
func (s *service) transition(ctx context.Context, tx *gorm.DB, refundID uuid.UUID, to enums.RefundStatus, mutate func(*statusUpdate)) (*models.RefundRequest, error) {
	repo := s.repo.WithTx(tx)
	refund, err := s.load(ctx, repo, refundID)
	if err != nil {
		return nil, err
	}
	from := refund.Status
	if !CanTransition(from, to) {
		return nil, transitionError(from, to)
	}

	update := statusUpdate{Status: to, UpdatedAt: s.now()}
	if mutate != nil {
		mutate(&update)
	}
	ok, err := repo.UpdateStatus(ctx, refundID, from, update)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update refund status")
	}
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "refund %s changed concurrently", refundID)
	}
	return s.load(ctx, repo, refundID)
}

func (s *service) load(ctx context.Context, repo Repository, refundID uuid.UUID) (*models.RefundRequest, error) {
	refund, err := repo.FindByID(ctx, refundID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "refund %s not found", refundID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refund")
	}
	return refund, nil
}

func (s *service) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.IncRefundOutcome(outcome)
	}
}

func validateIDs(refundID, operatorID uuid.UUID) error {
	if operatorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}
	if refundID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund id is required")
	}
	return nil
}

func toItemError(err error) *ItemError {
	if typed := pkgerrors.As(err); typed != nil {
		return &ItemError{Code: typed.Code(), Message: typed.Message()}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ItemError{Code: pkgerrors.CodeDependency, Message: err.Error()}
	}
	return &ItemError{Code: pkgerrors.CodeInternal, Message: err.Error()}
}

func outcomeLabel(err error) string {
	return strings.ToLower(string(pkgerrors.CodeOf(err)))
}
