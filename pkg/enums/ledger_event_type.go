package enums

// LedgerEventType classifies an immutable ledger row. Amounts on every row are
// positive; the type alone decides whether the row credits or debits the vendor.
type LedgerEventType string

const (
	// LedgerEventTypeEarning credits a vendor for a completed order.
	LedgerEventTypeEarning LedgerEventType = "earning"
	// LedgerEventTypeRefundReversal debits a vendor when a refund resolves.
	LedgerEventTypeRefundReversal LedgerEventType = "refund_reversal"
	// LedgerEventTypeVendorPayout records money that left the platform for the vendor.
	LedgerEventTypeVendorPayout LedgerEventType = "vendor_payout"
)

func (t LedgerEventType) IsValid() bool {
	switch t {
	case LedgerEventTypeEarning, LedgerEventTypeRefundReversal, LedgerEventTypeVendorPayout:
		return true
	}
	return false
}

