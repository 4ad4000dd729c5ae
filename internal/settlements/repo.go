package settlements

import (
	"context"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"gorm.io/gorm"
)

const transactionIDConstraint = "ux_settlement_records_transaction_id"

// Repository persists processor settlement records. Rows are only ever inserted,
// apart from forward processor status moves.
type Repository interface {
	Create(ctx context.Context, record *models.SettlementRecord) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.SettlementRecord, error)
	ListForMatching(ctx context.Context) ([]models.SettlementRecord, error)
	ListInFlight(ctx context.Context, limit int) ([]models.SettlementRecord, error)
	AdvanceStatus(ctx context.Context, transactionID string, from, to enums.SettlementStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, record *models.SettlementRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.SettlementRecord, error) {
	var record models.SettlementRecord
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListForMatching returns refund settlements the processor has not failed or canceled.
func (r *repository) ListForMatching(ctx context.Context) ([]models.SettlementRecord, error) {
	var rows []models.SettlementRecord
	if err := r.db.WithContext(ctx).
		Where("kind = ?", models.SettlementKindRefund).
		Where("processor_status NOT IN ?", []enums.SettlementStatus{enums.SettlementStatusFailed, enums.SettlementStatusCanceled}).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListInFlight(ctx context.Context, limit int) ([]models.SettlementRecord, error) {
	var rows []models.SettlementRecord
	query := r.db.WithContext(ctx).
		Where("processor_status IN ?", []enums.SettlementStatus{enums.SettlementStatusPending, enums.SettlementStatusProcessing}).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) AdvanceStatus(ctx context.Context, transactionID string, from, to enums.SettlementStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SettlementRecord{}).
		Where("transaction_id = ? AND processor_status = ?", transactionID, from).
		Update("processor_status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
