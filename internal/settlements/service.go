package settlements

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	dbpkg "github.com/angelmondragon/packfinderz-finance/pkg/db"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

const defaultInFlightLimit = 100

type ingestRecorder interface {
	IncSettlementIngested(duplicate bool)
}

// Service ingests processor confirmations and serves them to the matching engine
// and the payment status tracker.
type Service interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
	ListForMatching(ctx context.Context) ([]models.SettlementRecord, error)
	ListInFlight(ctx context.Context, limit int) ([]models.SettlementRecord, error)
}

// IngestInput is a processor record in the shape this service stores.
type IngestInput struct {
	OrderID         uuid.UUID              `json:"order_id" validate:"required"`
	Kind            models.SettlementKind  `json:"kind"`
	AmountCents     int64                  `json:"amount_cents" validate:"required,gt=0"`
	Currency        string                 `json:"currency"`
	Method          enums.SettlementMethod `json:"method" validate:"required"`
	ProcessorStatus enums.SettlementStatus `json:"processor_status" validate:"required"`
	TransactionID   string                 `json:"transaction_id" validate:"required"`
}

// IngestResult reports the stored row and whether the transaction id was already known.
type IngestResult struct {
	Record    *models.SettlementRecord `json:"record"`
	Duplicate bool                     `json:"duplicate"`
}

// ServiceParams groups the settlement service dependencies.
type ServiceParams struct {
	Repository Repository
	Logger     *logger.Logger
	Metrics    ingestRecorder
}

type service struct {
	repo    Repository
	logg    *logger.Logger
	metrics ingestRecorder
}

// NewService builds the settlement ingestion service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	return &service{repo: params.Repository, logg: params.Logger, metrics: params.Metrics}, nil
}

// Ingest stores a settlement once per transaction id. A replay returns the stored
// row, advancing its processor status when the replay carries a later one.
func (s *service) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	record, err := normalize(input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if !dbpkg.IsUniqueViolation(err, transactionIDConstraint) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store settlement record")
		}
		existing, err := s.replay(ctx, record)
		if err != nil {
			return nil, err
		}
		s.recordIngest(true)
		return &IngestResult{Record: existing, Duplicate: true}, nil
	}

	s.recordIngest(false)
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"transaction_id": record.TransactionID,
			"order_id":       record.OrderID.String(),
			"kind":           string(record.Kind),
			"status":         string(record.ProcessorStatus),
		}), "settlement ingested")
	}
	return &IngestResult{Record: record}, nil
}

func (s *service) replay(ctx context.Context, incoming *models.SettlementRecord) (*models.SettlementRecord, error) {
	existing, err := s.repo.FindByTransactionID(ctx, incoming.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load existing settlement")
	}
	if existing.OrderID != incoming.OrderID || existing.AmountCents != incoming.AmountCents || existing.Kind != incoming.Kind {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "transaction %s already recorded with different values", incoming.TransactionID).
			WithDetails(map[string]any{"transaction_id": incoming.TransactionID})
	}
	if !CanAdvance(existing.ProcessorStatus, incoming.ProcessorStatus) {
		return existing, nil
	}
	ok, err := s.repo.AdvanceStatus(ctx, existing.TransactionID, existing.ProcessorStatus, incoming.ProcessorStatus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advance settlement status")
	}
	if ok {
		existing.ProcessorStatus = incoming.ProcessorStatus
	}
	return existing, nil
}

func (s *service) ListForMatching(ctx context.Context) ([]models.SettlementRecord, error) {
	rows, err := s.repo.ListForMatching(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement records")
	}
	return rows, nil
}

func (s *service) ListInFlight(ctx context.Context, limit int) ([]models.SettlementRecord, error) {
	if limit <= 0 {
		limit = defaultInFlightLimit
	}
	rows, err := s.repo.ListInFlight(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load in-flight settlements")
	}
	return rows, nil
}

func (s *service) recordIngest(duplicate bool) {
	if s.metrics != nil {
		s.metrics.IncSettlementIngested(duplicate)
	}
}

// CanAdvance reports whether a processor status may move from one value to the next.
// Terminal statuses never change.
func CanAdvance(from, to enums.SettlementStatus) bool {
	switch from {
	case enums.SettlementStatusPending:
		return to == enums.SettlementStatusProcessing || to == enums.SettlementStatusSucceeded ||
			to == enums.SettlementStatusFailed || to == enums.SettlementStatusCanceled
	case enums.SettlementStatusProcessing:
		return to == enums.SettlementStatusSucceeded || to == enums.SettlementStatusFailed ||
			to == enums.SettlementStatusCanceled
	case enums.SettlementStatusSucceeded, enums.SettlementStatusFailed, enums.SettlementStatusCanceled:
		return false
	default:
		return false
	}
}

func normalize(input IngestInput) (*models.SettlementRecord, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	txID := strings.TrimSpace(input.TransactionID)
	if txID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown settlement method %q", input.Method)
	}
	if !input.ProcessorStatus.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown processor status %q", input.ProcessorStatus)
	}
	kind := input.Kind
	if kind == "" {
		kind = models.SettlementKindRefund
	}
	switch kind {
	case models.SettlementKindCharge, models.SettlementKindRefund, models.SettlementKindPayout:
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown settlement kind %q", kind)
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &models.SettlementRecord{
		OrderID:         input.OrderID,
		Kind:            kind,
		AmountCents:     input.AmountCents,
		Currency:        currency,
		Method:          input.Method,
		ProcessorStatus: input.ProcessorStatus,
		TransactionID:   txID,
	}, nil
}
