package enums

// ReconciliationStatus is the outcome of matching one refund.
type ReconciliationStatus string

const (
	ReconciliationStatusMatched   ReconciliationStatus = "matched"
	ReconciliationStatusUnmatched ReconciliationStatus = "unmatched"
)
