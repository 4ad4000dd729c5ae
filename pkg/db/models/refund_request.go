package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
)

// RefundRequest is a buyer-owed repayment raised by the dispute/return subsystem.
// Rows are consumed here and only their status fields are ever updated.
type RefundRequest struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	OrderNumber     int64              `gorm:"column:order_number;not null;default:0" json:"order_number"`
	VendorID        uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	BuyerID         uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	Type            enums.RefundType   `gorm:"column:type;type:text;not null" json:"type"`
	AmountCents     int64              `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Status          enums.RefundStatus `gorm:"column:status;type:text;not null;index" json:"status"`
	Reason          string             `gorm:"column:reason;type:text;not null;default:''" json:"reason"`
	ReviewedBy      *uuid.UUID         `gorm:"column:reviewed_by;type:uuid" json:"reviewed_by,omitempty"`
	ResolvedBy      *uuid.UUID         `gorm:"column:resolved_by;type:uuid" json:"resolved_by,omitempty"`
	RejectionReason *string            `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	ResolvedAt      *time.Time         `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (RefundRequest) TableName() string { return "refund_requests" }

func (r *RefundRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
