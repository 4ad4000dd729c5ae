package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/internal/vendorlock"
	dbpkg "github.com/angelmondragon/packfinderz-finance/pkg/db"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox/payloads"
)

// MethodService manages a vendor's payout method registry. Once a vendor has any
// method, exactly one of them is the default.
type MethodService interface {
	List(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutMethod, error)
	Add(ctx context.Context, vendorID uuid.UUID, input AddMethodInput) (*models.PayoutMethod, error)
	Remove(ctx context.Context, vendorID, methodID uuid.UUID) error
	SetDefault(ctx context.Context, vendorID, methodID uuid.UUID) (*models.PayoutMethod, error)
}

// AddMethodInput describes a new withdrawal destination.
type AddMethodInput struct {
	Type      enums.PayoutMethodType `json:"type" validate:"required"`
	Label     string                 `json:"label" validate:"max=80"`
	Last4     string                 `json:"last4" validate:"omitempty,len=4,numeric"`
	Details   json.RawMessage        `json:"details,omitempty"`
	IsDefault bool                   `json:"is_default"`
}

// MethodServiceParams groups the registry dependencies.
type MethodServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Outbox     outboxPublisher
	Locker     vendorlock.Locker
	Logger     *logger.Logger
}

type methodService struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	locker vendorlock.Locker
	logg   *logger.Logger
}

// NewMethodService builds the payout method registry.
func NewMethodService(params MethodServiceParams) (MethodService, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("vendor locker required")
	}
	return &methodService{
		repo:   params.Repository,
		tx:     params.TxRunner,
		outbox: params.Outbox,
		locker: params.Locker,
		logg:   params.Logger,
	}, nil
}

func (s *methodService) List(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutMethod, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	methods, err := s.repo.ListMethods(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payout methods")
	}
	return methods, nil
}

// Add registers a method. The vendor's first method, or one added with IsDefault,
// becomes the default.
func (s *methodService) Add(ctx context.Context, vendorID uuid.UUID, input AddMethodInput) (*models.PayoutMethod, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payout method type %q", input.Type)
	}
	if len(input.Details) > 0 && !json.Valid(input.Details) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "details must be valid json")
	}

	method := &models.PayoutMethod{
		VendorID: vendorID,
		Type:     input.Type,
		Label:    strings.TrimSpace(input.Label),
		Details:  input.Details,
	}
	if last4 := strings.TrimSpace(input.Last4); last4 != "" {
		method.Last4 = &last4
	}

	err := s.locker.WithVendorLock(ctx, vendorID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			existing, err := repo.ListMethods(ctx, vendorID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payout methods")
			}
			previous := currentDefault(existing)
			method.IsDefault = previous == nil || input.IsDefault
			if method.IsDefault && previous != nil {
				if err := repo.ClearDefault(ctx, vendorID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear default payout method")
				}
			}
			if err := repo.CreateMethod(ctx, method); err != nil {
				if dbpkg.IsUniqueViolation(err, defaultMethodConstraint) {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "default payout method changed concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payout method")
			}
			if !method.IsDefault {
				return nil
			}
			return s.emitDefaultChanged(ctx, tx, vendorID, method.ID, previous)
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithVendorID(ctx, vendorID.String()), "payout method added")
	}
	return method, nil
}

// Remove deletes a method that no pending or processing payout references. Removing
// the default promotes the oldest remaining method.
func (s *methodService) Remove(ctx context.Context, vendorID, methodID uuid.UUID) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	return s.locker.WithVendorLock(ctx, vendorID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			method, err := ownedMethod(ctx, repo, vendorID, methodID)
			if err != nil {
				return err
			}
			inFlight, err := repo.CountReservingForMethod(ctx, methodID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count in-flight payouts")
			}
			if inFlight > 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "payout method has payouts in flight").
					WithDetails(map[string]any{"in_flight": inFlight})
			}
			if method.IsDefault {
				if err := repo.ClearDefault(ctx, vendorID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear default payout method")
				}
			}
			if err := repo.DeleteMethod(ctx, methodID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete payout method")
			}
			if !method.IsDefault {
				return nil
			}
			remaining, err := repo.ListMethods(ctx, vendorID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payout methods")
			}
			if len(remaining) == 0 {
				return nil
			}
			promoted := remaining[0]
			if err := repo.MarkDefault(ctx, promoted.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promote payout method")
			}
			return s.emitDefaultChanged(ctx, tx, vendorID, promoted.ID, method)
		})
	})
}

// SetDefault moves the default flag in one transaction so the vendor never has
// zero or two defaults.
func (s *methodService) SetDefault(ctx context.Context, vendorID, methodID uuid.UUID) (*models.PayoutMethod, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	var updated *models.PayoutMethod
	err := s.locker.WithVendorLock(ctx, vendorID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			method, err := ownedMethod(ctx, repo, vendorID, methodID)
			if err != nil {
				return err
			}
			if method.IsDefault {
				updated = method
				return nil
			}
			existing, err := repo.ListMethods(ctx, vendorID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payout methods")
			}
			previous := currentDefault(existing)
			if err := repo.ClearDefault(ctx, vendorID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear default payout method")
			}
			if err := repo.MarkDefault(ctx, methodID); err != nil {
				if dbpkg.IsUniqueViolation(err, defaultMethodConstraint) {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "default payout method changed concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set default payout method")
			}
			method.IsDefault = true
			updated = method
			return s.emitDefaultChanged(ctx, tx, vendorID, methodID, previous)
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *methodService) emitDefaultChanged(ctx context.Context, tx *gorm.DB, vendorID, methodID uuid.UUID, previous *models.PayoutMethod) error {
	event := payloads.PayoutDefaultChangedEvent{VendorID: vendorID, MethodID: methodID}
	if previous != nil {
		prevID := previous.ID
		event.PreviousMethodID = &prevID
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutDefaultChanged,
		AggregateType: enums.AggregatePayoutMethod,
		AggregateID:   methodID,
		Actor:         outbox.VendorActor(vendorID),
		Data:          event,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit default changed event")
	}
	return nil
}

// ownedMethod loads a method and hides other vendors' methods behind NotFound.
func ownedMethod(ctx context.Context, repo Repository, vendorID, methodID uuid.UUID) (*models.PayoutMethod, error) {
	if methodID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout method id is required")
	}
	method, err := repo.FindMethod(ctx, methodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "payout method %s not found", methodID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout method")
	}
	if method.VendorID != vendorID {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "payout method %s not found", methodID)
	}
	return method, nil
}

func currentDefault(methods []models.PayoutMethod) *models.PayoutMethod {
	for i := range methods {
		if methods[i].IsDefault {
			return &methods[i]
		}
	}
	return nil
}
