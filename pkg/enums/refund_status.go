package enums

import "fmt"

// RefundStatus tracks a refund request through review to a terminal state.
type RefundStatus string

const (
	RefundStatusPending     RefundStatus = "pending"
	RefundStatusUnderReview RefundStatus = "under_review"
	RefundStatusApproved    RefundStatus = "approved"
	RefundStatusResolved    RefundStatus = "resolved"
	RefundStatusRejected    RefundStatus = "rejected"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusPending,
	RefundStatusUnderReview,
	RefundStatusApproved,
	RefundStatusResolved,
	RefundStatusRejected,
}

// OpenRefundStatuses are the statuses that still represent an outstanding obligation.
var OpenRefundStatuses = []RefundStatus{
	RefundStatusPending,
	RefundStatusUnderReview,
	RefundStatusApproved,
}

// String implements fmt.Stringer.
func (r RefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundStatus.
func (r RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsOpen reports whether the refund still awaits a terminal decision.
func (r RefundStatus) IsOpen() bool {
	switch r {
	case RefundStatusPending, RefundStatusUnderReview, RefundStatusApproved:
		return true
	case RefundStatusResolved, RefundStatusRejected:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (r RefundStatus) IsTerminal() bool {
	switch r {
	case RefundStatusResolved, RefundStatusRejected:
		return true
	default:
		return false
	}
}

// ParseRefundStatus converts raw input into a RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	for _, candidate := range validRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}
