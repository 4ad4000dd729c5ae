package payouts

import (
	"testing"

	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to enums.PayoutStatus
		want     bool
	}{
		{enums.PayoutStatusPending, enums.PayoutStatusProcessing, true},
		{enums.PayoutStatusPending, enums.PayoutStatusCancelled, true},
		{enums.PayoutStatusPending, enums.PayoutStatusCompleted, false},
		{enums.PayoutStatusPending, enums.PayoutStatusFailed, false},
		{enums.PayoutStatusProcessing, enums.PayoutStatusCompleted, true},
		{enums.PayoutStatusProcessing, enums.PayoutStatusFailed, true},
		{enums.PayoutStatusProcessing, enums.PayoutStatusCancelled, false},
		{enums.PayoutStatusProcessing, enums.PayoutStatusPending, false},
		{enums.PayoutStatusCompleted, enums.PayoutStatusFailed, false},
		{enums.PayoutStatusFailed, enums.PayoutStatusProcessing, false},
		{enums.PayoutStatusCancelled, enums.PayoutStatusPending, false},
		{enums.PayoutStatus("paid"), enums.PayoutStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestNewReferenceFormat(t *testing.T) {
	ref := newReference(fixedNow(), mustUUID("1a2b3c4d-0000-0000-0000-000000000000"))
	if ref != "PO-20260301-1A2B3C4D" {
		t.Fatalf("unexpected reference %q", ref)
	}
}
