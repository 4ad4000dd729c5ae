package ledger

import (
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/google/uuid"
)

// EntryKind classifies one line of a vendor's balance history.
type EntryKind string

const (
	EntryEarning     EntryKind = "earning"
	EntryReversal    EntryKind = "reversal"
	EntryWithdrawal  EntryKind = "withdrawal"
	EntryReservation EntryKind = "reservation"
)

// Entry is one amount-bearing fact in a vendor's history. Amounts are positive;
// the kind decides the direction.
type Entry struct {
	Kind        EntryKind
	AmountCents int64
	SourceID    uuid.UUID
	At          time.Time
}

// Snapshot is the derived balance for a vendor. It is never stored.
type Snapshot struct {
	VendorID            uuid.UUID `json:"vendor_id"`
	AvailableCents      int64     `json:"available_cents"`
	PendingCents        int64     `json:"pending_cents"`
	TotalEarnedCents    int64     `json:"total_earned_cents"`
	TotalWithdrawnCents int64     `json:"total_withdrawn_cents"`
	AsOf                time.Time `json:"as_of"`
	Anomaly             bool      `json:"anomaly"`
	AnomalyReason       string    `json:"anomaly_reason,omitempty"`
}

// Conserved reports whether available + pending + withdrawn == earned.
func (s Snapshot) Conserved() bool {
	return s.AvailableCents+s.PendingCents+s.TotalWithdrawnCents == s.TotalEarnedCents
}

// Compute folds entries into a Snapshot. A negative available balance is
// reported as an anomaly and left as is.
func Compute(vendorID uuid.UUID, entries []Entry, asOf time.Time) Snapshot {
	var earned, reversed, withdrawn, pending int64
	for _, entry := range entries {
		switch entry.Kind {
		case EntryEarning:
			earned += entry.AmountCents
		case EntryReversal:
			reversed += entry.AmountCents
		case EntryWithdrawal:
			withdrawn += entry.AmountCents
		case EntryReservation:
			pending += entry.AmountCents
		}
	}

	snap := Snapshot{
		VendorID:            vendorID,
		TotalEarnedCents:    earned - reversed,
		TotalWithdrawnCents: withdrawn,
		PendingCents:        pending,
		AsOf:                asOf,
	}
	snap.AvailableCents = snap.TotalEarnedCents - snap.TotalWithdrawnCents - snap.PendingCents
	if snap.AvailableCents < 0 {
		snap.Anomaly = true
		snap.AnomalyReason = fmt.Sprintf("available balance is negative (%d cents)", snap.AvailableCents)
	}
	return snap
}

// EntriesFromHistory converts persisted ledger events and reserving payouts into entries.
// Payouts that are not pending or processing are ignored; completed payouts are
// represented by their vendor_payout ledger event.
func EntriesFromHistory(events []models.LedgerEvent, reservations []models.PayoutRequest) []Entry {
	entries := make([]Entry, 0, len(events)+len(reservations))
	for _, event := range events {
		entry := Entry{AmountCents: event.AmountCents, SourceID: event.ID, At: event.CreatedAt}
		switch event.Type {
		case enums.LedgerEventTypeEarning:
			entry.Kind = EntryEarning
		case enums.LedgerEventTypeRefundReversal:
			entry.Kind = EntryReversal
		case enums.LedgerEventTypeVendorPayout:
			entry.Kind = EntryWithdrawal
		default:
			continue
		}
		entries = append(entries, entry)
	}
	for _, payout := range reservations {
		if !payout.Status.Reserves() {
			continue
		}
		entries = append(entries, Entry{
			Kind:        EntryReservation,
			AmountCents: payout.AmountCents,
			SourceID:    payout.ID,
			At:          payout.CreatedAt,
		})
	}
	return entries
}
