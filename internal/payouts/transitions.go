package payouts

import (
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

// CanTransition reports whether a payout may move between the two statuses.
// Cancellation is only possible before processing starts.
func CanTransition(from, to enums.PayoutStatus) bool {
	switch from {
	case enums.PayoutStatusPending:
		return to == enums.PayoutStatusProcessing || to == enums.PayoutStatusCancelled
	case enums.PayoutStatusProcessing:
		return to == enums.PayoutStatusCompleted || to == enums.PayoutStatusFailed
	case enums.PayoutStatusCompleted, enums.PayoutStatusFailed, enums.PayoutStatusCancelled:
		return false
	default:
		return false
	}
}

func transitionError(from, to enums.PayoutStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "payout cannot move from %s to %s", from, to).
		WithDetails(map[string]any{"from": from, "to": to})
}
