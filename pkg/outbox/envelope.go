package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. Operators act on refunds and
// payout processing; vendors act on their own payouts and methods.
type ActorRef struct {
	OperatorID *uuid.UUID `json:"operatorId,omitempty"`
	VendorID   *uuid.UUID `json:"vendorId,omitempty"`
	Role       string     `json:"role,omitempty"`
}

// OperatorActor builds an ActorRef for a back-office operator.
func OperatorActor(id uuid.UUID) *ActorRef {
	return &ActorRef{OperatorID: &id, Role: "operator"}
}

// VendorActor builds an ActorRef for a vendor acting on their own account.
func VendorActor(id uuid.UUID) *ActorRef {
	return &ActorRef{VendorID: &id, Role: "vendor"}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
