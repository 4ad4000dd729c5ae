package reconciliation

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
)

// ReasonNoMatchingPayment is reported for every refund without a settlement.
const ReasonNoMatchingPayment = "No matching payment found"

// DefaultToleranceCents is the amount difference below which a settlement is a candidate.
const DefaultToleranceCents int64 = 1

// Record is the reconciliation outcome for one refund.
type Record struct {
	RefundID              uuid.UUID                  `json:"refund_id"`
	OrderID               uuid.UUID                  `json:"order_id"`
	OrderNumber           int64                      `json:"order_number"`
	VendorID              uuid.UUID                  `json:"vendor_id"`
	RefundType            enums.RefundType           `json:"refund_type"`
	RefundStatus          enums.RefundStatus         `json:"refund_status"`
	AmountCents           int64                      `json:"amount_cents"`
	RefundCreatedAt       time.Time                  `json:"refund_created_at"`
	Status                enums.ReconciliationStatus `json:"status"`
	SettlementID          *uuid.UUID                 `json:"settlement_id,omitempty"`
	TransactionID         string                     `json:"transaction_id,omitempty"`
	SettlementAmountCents int64                      `json:"settlement_amount_cents,omitempty"`
	SettlementMethod      enums.SettlementMethod     `json:"settlement_method,omitempty"`
	Reason                string                     `json:"reason,omitempty"`
}

// Result splits the records into matched and discrepancy lists.
type Result struct {
	Matched                []Record `json:"matched"`
	Unmatched              []Record `json:"unmatched"`
	MatchedCount           int      `json:"matched_count"`
	UnmatchedCount         int      `json:"unmatched_count"`
	UnmatchedExposureCents int64    `json:"unmatched_exposure_cents"`
}

// Match pairs each refund with at most one settlement for the same order whose
// amount differs by less than toleranceCents. Refunds are considered oldest
// first and each takes the earliest-created unclaimed candidate, so a settlement
// is never matched twice. Inputs are not modified.
func Match(refunds []models.RefundRequest, settlements []models.SettlementRecord, toleranceCents int64) Result {
	if toleranceCents <= 0 {
		toleranceCents = DefaultToleranceCents
	}

	byOrder := make(map[uuid.UUID][]*models.SettlementRecord, len(settlements))
	for i := range settlements {
		s := &settlements[i]
		byOrder[s.OrderID] = append(byOrder[s.OrderID], s)
	}
	for _, bucket := range byOrder {
		sort.SliceStable(bucket, func(i, j int) bool {
			return earlier(bucket[i].CreatedAt, bucket[i].ID, bucket[j].CreatedAt, bucket[j].ID)
		})
	}

	ordered := make([]*models.RefundRequest, len(refunds))
	for i := range refunds {
		ordered[i] = &refunds[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return earlier(ordered[i].CreatedAt, ordered[i].ID, ordered[j].CreatedAt, ordered[j].ID)
	})

	consumed := make(map[uuid.UUID]struct{})
	result := Result{Matched: []Record{}, Unmatched: []Record{}}
	for _, refund := range ordered {
		record := Record{
			RefundID:        refund.ID,
			OrderID:         refund.OrderID,
			OrderNumber:     refund.OrderNumber,
			VendorID:        refund.VendorID,
			RefundType:      refund.Type,
			RefundStatus:    refund.Status,
			AmountCents:     refund.AmountCents,
			RefundCreatedAt: refund.CreatedAt,
		}
		if settlement := firstCandidate(byOrder[refund.OrderID], refund.AmountCents, toleranceCents, consumed); settlement != nil {
			consumed[settlement.ID] = struct{}{}
			id := settlement.ID
			record.Status = enums.ReconciliationStatusMatched
			record.SettlementID = &id
			record.TransactionID = settlement.TransactionID
			record.SettlementAmountCents = settlement.AmountCents
			record.SettlementMethod = settlement.Method
			result.Matched = append(result.Matched, record)
			continue
		}
		record.Status = enums.ReconciliationStatusUnmatched
		record.Reason = ReasonNoMatchingPayment
		result.Unmatched = append(result.Unmatched, record)
		result.UnmatchedExposureCents += refund.AmountCents
	}

	sort.SliceStable(result.Matched, func(i, j int) bool {
		a, b := result.Matched[i], result.Matched[j]
		return earlier(b.RefundCreatedAt, b.RefundID, a.RefundCreatedAt, a.RefundID)
	})
	sort.SliceStable(result.Unmatched, func(i, j int) bool {
		a, b := result.Unmatched[i], result.Unmatched[j]
		if a.AmountCents != b.AmountCents {
			return a.AmountCents > b.AmountCents
		}
		return earlier(b.RefundCreatedAt, b.RefundID, a.RefundCreatedAt, a.RefundID)
	})
	result.MatchedCount = len(result.Matched)
	result.UnmatchedCount = len(result.Unmatched)
	return result
}

func firstCandidate(bucket []*models.SettlementRecord, amount, tolerance int64, consumed map[uuid.UUID]struct{}) *models.SettlementRecord {
	for _, s := range bucket {
		if _, taken := consumed[s.ID]; taken {
			continue
		}
		if abs(s.AmountCents-amount) < tolerance {
			return s
		}
	}
	return nil
}

func earlier(at time.Time, id uuid.UUID, otherAt time.Time, otherID uuid.UUID) bool {
	if !at.Equal(otherAt) {
		return at.Before(otherAt)
	}
	return id.String() < otherID.String()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
