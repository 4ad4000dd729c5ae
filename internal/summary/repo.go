package summary

import (
	"context"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"gorm.io/gorm"
)

// Totals are the raw rollups read from the ledger tables.
type Totals struct {
	PendingRefundCents   int64
	CompletedPayoutCents int64
	DisputeCount         int64
	ReturnCount          int64
}

// Repository reads dashboard rollups.
type Repository interface {
	Totals(ctx context.Context) (*Totals, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a summary repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Totals(ctx context.Context) (*Totals, error) {
	var refunds struct {
		PendingCents int64
		DisputeCount int64
		ReturnCount  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Select(`COALESCE(SUM(CASE WHEN status IN ? THEN amount_cents ELSE 0 END), 0) AS pending_cents,
			COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0) AS dispute_count,
			COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0) AS return_count`,
			enums.OpenRefundStatuses, enums.RefundTypeDispute, enums.RefundTypeReturn).
		Scan(&refunds).Error; err != nil {
		return nil, err
	}

	var processed int64
	if err := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Where("status = ?", enums.PayoutStatusCompleted).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&processed).Error; err != nil {
		return nil, err
	}

	return &Totals{
		PendingRefundCents:   refunds.PendingCents,
		CompletedPayoutCents: processed,
		DisputeCount:         refunds.DisputeCount,
		ReturnCount:          refunds.ReturnCount,
	}, nil
}
