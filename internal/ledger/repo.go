package ledger

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for ledger events and reads the payout
// reservations that feed the balance.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.LedgerEvent) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.LedgerEvent, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.LedgerEvent, error)
	ListReservations(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutRequest, error)
	ListCompletedPayouts(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutRequest, error)
	VendorsWithActivity(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create appends event. Rows are never updated or deleted afterwards.
func (r *repository) Create(ctx context.Context, event *models.LedgerEvent) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("unknown ledger event type %q", event.Type)
	}
	if event.AmountCents <= 0 {
		return fmt.Errorf("ledger amount must be positive, got %d", event.AmountCents)
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.LedgerEvent, error) {
	var event models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListReservations(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutRequest, error) {
	return r.listPayouts(ctx, vendorID, enums.ReservingPayoutStatuses)
}

func (r *repository) ListCompletedPayouts(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutRequest, error) {
	return r.listPayouts(ctx, vendorID, []enums.PayoutStatus{enums.PayoutStatusCompleted})
}

func (r *repository) listPayouts(ctx context.Context, vendorID uuid.UUID, statuses []enums.PayoutStatus) ([]models.PayoutRequest, error) {
	var rows []models.PayoutRequest
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// VendorsWithActivity lists every vendor that has a ledger event or a payout request.
func (r *repository) VendorsWithActivity(ctx context.Context) ([]uuid.UUID, error) {
	var fromLedger []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Distinct("vendor_id").
		Pluck("vendor_id", &fromLedger).Error; err != nil {
		return nil, err
	}
	var fromPayouts []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Distinct("vendor_id").
		Pluck("vendor_id", &fromPayouts).Error; err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(fromLedger)+len(fromPayouts))
	vendors := make([]uuid.UUID, 0, len(fromLedger)+len(fromPayouts))
	for _, id := range append(fromLedger, fromPayouts...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		vendors = append(vendors, id)
	}
	return vendors, nil
}
