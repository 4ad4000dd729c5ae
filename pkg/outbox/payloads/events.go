package payloads

import (
	"time"

	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/google/uuid"
)

// RefundResolvedEvent is emitted when an approved refund is paid back to the buyer.
type RefundResolvedEvent struct {
	RefundID    uuid.UUID `json:"refund_id"`
	OrderID     uuid.UUID `json:"order_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	AmountCents int64     `json:"amount_cents"`
	ResolvedBy  uuid.UUID `json:"resolved_by"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// RefundRejectedEvent is emitted when an operator declines a refund.
type RefundRejectedEvent struct {
	RefundID uuid.UUID `json:"refund_id"`
	OrderID  uuid.UUID `json:"order_id"`
	VendorID uuid.UUID `json:"vendor_id"`
	Reason   string    `json:"reason"`
}

// PayoutStatusEvent covers every payout lifecycle transition.
type PayoutStatusEvent struct {
	PayoutID      uuid.UUID          `json:"payout_id"`
	VendorID      uuid.UUID          `json:"vendor_id"`
	MethodID      uuid.UUID          `json:"method_id"`
	AmountCents   int64              `json:"amount_cents"`
	Reference     string             `json:"reference"`
	Status        enums.PayoutStatus `json:"status"`
	FailureReason *string            `json:"failure_reason,omitempty"`
}

// PayoutDefaultChangedEvent is emitted when the vendor's default method moves.
type PayoutDefaultChangedEvent struct {
	VendorID         uuid.UUID  `json:"vendor_id"`
	MethodID         uuid.UUID  `json:"method_id"`
	PreviousMethodID *uuid.UUID `json:"previous_method_id,omitempty"`
}
