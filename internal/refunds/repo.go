package refunds

import (
	"context"
	"time"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/angelmondragon/packfinderz-finance/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads refund requests and applies guarded status updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	ListOpen(ctx context.Context) ([]models.RefundRequest, error)
	List(ctx context.Context, params listParams) ([]models.RefundRequest, *pagination.Cursor, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.RefundStatus, update statusUpdate) (bool, error)
}

type listParams struct {
	Limit    int
	Cursor   *pagination.Cursor
	Statuses []enums.RefundStatus
	Type     *enums.RefundType
	VendorID *uuid.UUID
	OrderID  *uuid.UUID
}

type statusUpdate struct {
	Status          enums.RefundStatus
	ReviewedBy      *uuid.UUID
	ResolvedBy      *uuid.UUID
	RejectionReason *string
	ResolvedAt      *time.Time
	UpdatedAt       time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a refund repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	var refund models.RefundRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) ListOpen(ctx context.Context) ([]models.RefundRequest, error) {
	var rows []models.RefundRequest
	if err := r.db.WithContext(ctx).
		Where("status IN ?", enums.OpenRefundStatuses).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.RefundRequest, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.RefundRequest{})
	if len(params.Statuses) > 0 {
		query = query.Where("status IN ?", params.Statuses)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.VendorID != nil {
		query = query.Where("vendor_id = ?", *params.VendorID)
	}
	if params.OrderID != nil {
		query = query.Where("order_id = ?", *params.OrderID)
	}
	query = pagination.After(query, "", params.Cursor)

	var rows []models.RefundRequest
	if err := pagination.Newest(query, "", limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Trim(rows, limit, func(r models.RefundRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return rows, next, nil
}

// UpdateStatus applies update only while the row is still in status from.
// It returns false when another writer moved the refund first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.RefundStatus, update statusUpdate) (bool, error) {
	values := map[string]any{
		"status":     update.Status,
		"updated_at": update.UpdatedAt,
	}
	if update.ReviewedBy != nil {
		values["reviewed_by"] = *update.ReviewedBy
	}
	if update.ResolvedBy != nil {
		values["resolved_by"] = *update.ResolvedBy
	}
	if update.RejectionReason != nil {
		values["rejection_reason"] = *update.RejectionReason
	}
	if update.ResolvedAt != nil {
		values["resolved_at"] = *update.ResolvedAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
