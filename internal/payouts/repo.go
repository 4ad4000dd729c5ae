package payouts

import (
	"context"
	"time"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/angelmondragon/packfinderz-finance/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultMethodConstraint = "ux_payout_methods_vendor_default"
	referenceConstraint     = "ux_payout_requests_reference"
)

// Repository persists payout methods and payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateMethod(ctx context.Context, method *models.PayoutMethod) error
	FindMethod(ctx context.Context, id uuid.UUID) (*models.PayoutMethod, error)
	ListMethods(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutMethod, error)
	ClearDefault(ctx context.Context, vendorID uuid.UUID) error
	MarkDefault(ctx context.Context, methodID uuid.UUID) error
	DeleteMethod(ctx context.Context, methodID uuid.UUID) error
	CountReservingForMethod(ctx context.Context, methodID uuid.UUID) (int64, error)

	CreatePayout(ctx context.Context, payout *models.PayoutRequest) error
	FindPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	UpdatePayoutStatus(ctx context.Context, id uuid.UUID, from enums.PayoutStatus, update payoutUpdate) (bool, error)
	ListPayouts(ctx context.Context, query historyQuery) ([]models.PayoutRequest, *pagination.Cursor, error)
	Totals(ctx context.Context, query historyQuery) (*Totals, error)
}

type payoutUpdate struct {
	Status        enums.PayoutStatus
	FailureReason *string
	ProcessedAt   *time.Time
	UpdatedAt     time.Time
}

type historyQuery struct {
	Limit      int
	Cursor     *pagination.Cursor
	VendorID   *uuid.UUID
	MethodType *enums.PayoutMethodType
	Statuses   []enums.PayoutStatus
	From       *time.Time
	To         *time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateMethod(ctx context.Context, method *models.PayoutMethod) error {
	return r.db.WithContext(ctx).Create(method).Error
}

func (r *repository) FindMethod(ctx context.Context, id uuid.UUID) (*models.PayoutMethod, error) {
	var method models.PayoutMethod
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&method).Error; err != nil {
		return nil, err
	}
	return &method, nil
}

// ListMethods returns the vendor's active methods, oldest first.
func (r *repository) ListMethods(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutMethod, error) {
	var methods []models.PayoutMethod
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&methods).Error; err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repository) ClearDefault(ctx context.Context, vendorID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutMethod{}).
		Where("vendor_id = ? AND is_default = ?", vendorID, true).
		Update("is_default", false).Error
}

func (r *repository) MarkDefault(ctx context.Context, methodID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutMethod{}).
		Where("id = ?", methodID).
		Update("is_default", true).Error
}

func (r *repository) DeleteMethod(ctx context.Context, methodID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", methodID).Delete(&models.PayoutMethod{}).Error
}

func (r *repository) CountReservingForMethod(ctx context.Context, methodID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Where("method_id = ? AND status IN ?", methodID, enums.ReservingPayoutStatuses).
		Count(&count).Error
	return count, err
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.PayoutRequest) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var payout models.PayoutRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) UpdatePayoutStatus(ctx context.Context, id uuid.UUID, from enums.PayoutStatus, update payoutUpdate) (bool, error) {
	values := map[string]any{
		"status":     update.Status,
		"updated_at": update.UpdatedAt,
	}
	if update.FailureReason != nil {
		values["failure_reason"] = *update.FailureReason
	}
	if update.ProcessedAt != nil {
		values["processed_at"] = *update.ProcessedAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) filtered(ctx context.Context, query historyQuery) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&models.PayoutRequest{})
	if query.MethodType != nil {
		db = db.Joins("JOIN payout_methods ON payout_methods.id = payout_requests.method_id").
			Where("payout_methods.type = ?", *query.MethodType)
	}
	if query.VendorID != nil {
		db = db.Where("payout_requests.vendor_id = ?", *query.VendorID)
	}
	if len(query.Statuses) > 0 {
		db = db.Where("payout_requests.status IN ?", query.Statuses)
	}
	if query.From != nil {
		db = db.Where("payout_requests.created_at >= ?", *query.From)
	}
	if query.To != nil {
		db = db.Where("payout_requests.created_at < ?", *query.To)
	}
	return db
}

// ListPayouts returns one page, newest first. The cursor points at the last row returned.
func (r *repository) ListPayouts(ctx context.Context, query historyQuery) ([]models.PayoutRequest, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(query.Limit)
	db := pagination.After(r.filtered(ctx, query), "payout_requests", query.Cursor)
	var rows []models.PayoutRequest
	if err := pagination.Newest(db.Select("payout_requests.*"), "payout_requests", limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Trim(rows, limit, func(p models.PayoutRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return rows, next, nil
}

// Totals aggregates across every row matching the filters, ignoring pagination.
func (r *repository) Totals(ctx context.Context, query historyQuery) (*Totals, error) {
	var row struct {
		Count          int64
		CompletedCount int64
		CompletedCents int64
	}
	err := r.filtered(ctx, query).
		Select(`COUNT(*) AS count,
			COALESCE(SUM(CASE WHEN payout_requests.status = ? THEN 1 ELSE 0 END), 0) AS completed_count,
			COALESCE(SUM(CASE WHEN payout_requests.status = ? THEN payout_requests.amount_cents ELSE 0 END), 0) AS completed_cents`,
			enums.PayoutStatusCompleted, enums.PayoutStatusCompleted).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &Totals{Count: row.Count, CompletedCount: row.CompletedCount, CompletedCents: row.CompletedCents}, nil
}
