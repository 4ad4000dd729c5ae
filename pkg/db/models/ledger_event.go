package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
)

// LedgerEvent records an immutable money movement for a vendor.
// Earnings reference the order, reversals the refund and payouts the payout request;
// each source can appear at most once.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	VendorID    uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null;index"`
	Type        enums.LedgerEventType `gorm:"column:type;type:text;not null"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	OrderID     *uuid.UUID            `gorm:"column:order_id;type:uuid;uniqueIndex:ux_ledger_events_order_id"`
	RefundID    *uuid.UUID            `gorm:"column:refund_id;type:uuid;uniqueIndex:ux_ledger_events_refund_id"`
	PayoutID    *uuid.UUID            `gorm:"column:payout_id;type:uuid;uniqueIndex:ux_ledger_events_payout_id"`
	ActorID     *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }

func (e *LedgerEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
