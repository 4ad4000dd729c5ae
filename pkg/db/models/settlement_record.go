package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
)

// SettlementKind distinguishes what the processor moved.
type SettlementKind string

const (
	SettlementKindCharge SettlementKind = "charge"
	SettlementKindRefund SettlementKind = "refund"
	SettlementKindPayout SettlementKind = "payout"
)

// SettlementRecord is a processor confirmation that money moved. Rows are append-only.
type SettlementRecord struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID         uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	Kind            SettlementKind         `gorm:"column:kind;type:text;not null;default:'refund'" json:"kind"`
	AmountCents     int64                  `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency        string                 `gorm:"column:currency;type:text;not null;default:'usd'" json:"currency"`
	Method          enums.SettlementMethod `gorm:"column:method;type:text;not null" json:"method"`
	ProcessorStatus enums.SettlementStatus `gorm:"column:processor_status;type:text;not null;index" json:"processor_status"`
	TransactionID   string                 `gorm:"column:transaction_id;type:text;not null;uniqueIndex:ux_settlement_records_transaction_id" json:"transaction_id"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (SettlementRecord) TableName() string { return "settlement_records" }

func (s *SettlementRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
