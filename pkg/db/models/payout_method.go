package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
)

// PayoutMethod is a vendor's registered withdrawal destination. Removal is a soft
// delete so payout history keeps its method reference.
type PayoutMethod struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID  uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	Type      enums.PayoutMethodType `gorm:"column:type;type:text;not null" json:"type"`
	Label     string                 `gorm:"column:label;type:text;not null;default:''" json:"label"`
	Last4     *string                `gorm:"column:last4;type:text" json:"last4,omitempty"`
	Details   json.RawMessage        `gorm:"column:details;type:jsonb" json:"details,omitempty"`
	IsDefault bool                   `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt         `gorm:"column:deleted_at;index" json:"-"`
}

func (PayoutMethod) TableName() string { return "payout_methods" }

func (m *PayoutMethod) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
