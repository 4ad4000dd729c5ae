package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
)

// PayoutRequest is a vendor withdrawal. Its amount is reserved while the status is pending or processing.
type PayoutRequest struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID      uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	AmountCents   int64              `gorm:"column:amount_cents;not null" json:"amount_cents"`
	MethodID      uuid.UUID          `gorm:"column:method_id;type:uuid;not null;index" json:"method_id"`
	Status        enums.PayoutStatus `gorm:"column:status;type:text;not null;index" json:"status"`
	Reference     string             `gorm:"column:reference;type:text;not null;uniqueIndex:ux_payout_requests_reference" json:"reference"`
	Notes         *string            `gorm:"column:notes;type:text" json:"notes,omitempty"`
	FailureReason *string            `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	ProcessedAt   *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }

func (p *PayoutRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
