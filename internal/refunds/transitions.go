package refunds

import (
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

// CanTransition reports whether a refund may move from one status to another.
// Status only moves forward; resolved and rejected are terminal.
func CanTransition(from, to enums.RefundStatus) bool {
	switch from {
	case enums.RefundStatusPending:
		switch to {
		case enums.RefundStatusUnderReview, enums.RefundStatusApproved, enums.RefundStatusResolved, enums.RefundStatusRejected:
			return true
		}
	case enums.RefundStatusUnderReview:
		switch to {
		case enums.RefundStatusApproved, enums.RefundStatusResolved, enums.RefundStatusRejected:
			return true
		}
	case enums.RefundStatusApproved:
		switch to {
		case enums.RefundStatusResolved, enums.RefundStatusRejected:
			return true
		}
	case enums.RefundStatusResolved, enums.RefundStatusRejected:
		return false
	}
	return false
}

func transitionError(from, to enums.RefundStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "refund cannot move from %s to %s", from, to).
		WithDetails(map[string]any{"from": from, "to": to})
}
