package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateRefundRequest OutboxAggregateType = "refund_request"
	AggregatePayoutRequest OutboxAggregateType = "payout_request"
	AggregatePayoutMethod  OutboxAggregateType = "payout_method"
)

// IsValid reports whether a is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateRefundRequest, AggregatePayoutRequest, AggregatePayoutMethod:
		return true
	}
	return false
}

// OutboxEventType names a finance state change published through the outbox.
type OutboxEventType string

const (
	EventRefundResolved       OutboxEventType = "refund_resolved"
	EventRefundRejected       OutboxEventType = "refund_rejected"
	EventPayoutRequested      OutboxEventType = "payout_requested"
	EventPayoutCancelled      OutboxEventType = "payout_cancelled"
	EventPayoutProcessing     OutboxEventType = "payout_processing"
	EventPayoutCompleted      OutboxEventType = "payout_completed"
	EventPayoutFailed         OutboxEventType = "payout_failed"
	EventPayoutDefaultChanged OutboxEventType = "payout_default_changed"
)

// eventAggregates pins every event type to the only aggregate it may describe.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventRefundResolved:       AggregateRefundRequest,
	EventRefundRejected:       AggregateRefundRequest,
	EventPayoutRequested:      AggregatePayoutRequest,
	EventPayoutCancelled:      AggregatePayoutRequest,
	EventPayoutProcessing:     AggregatePayoutRequest,
	EventPayoutCompleted:      AggregatePayoutRequest,
	EventPayoutFailed:         AggregatePayoutRequest,
	EventPayoutDefaultChanged: AggregatePayoutMethod,
}

// IsValid reports whether e is a known event type.
func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: the broker kept failing until the retry budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the event itself is unpublishable, e.g. an
	// unknown type or a payload that does not decode.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
