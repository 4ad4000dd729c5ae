package enums

import "fmt"

// SettlementStatus mirrors the processor-reported state of a money movement.
type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusProcessing SettlementStatus = "processing"
	SettlementStatusSucceeded  SettlementStatus = "succeeded"
	SettlementStatusFailed     SettlementStatus = "failed"
	SettlementStatusCanceled   SettlementStatus = "canceled"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusPending,
	SettlementStatusProcessing,
	SettlementStatusSucceeded,
	SettlementStatusFailed,
	SettlementStatusCanceled,
}

// String implements fmt.Stringer.
func (s SettlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementStatus.
func (s SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// InFlight reports whether the processor has not finished moving the money.
func (s SettlementStatus) InFlight() bool {
	return s == SettlementStatusPending || s == SettlementStatusProcessing
}

// ParseSettlementStatus converts raw input into a SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}

// SettlementMethod identifies the rail the processor used.
type SettlementMethod string

const (
	SettlementMethodCard         SettlementMethod = "card"
	SettlementMethodBankTransfer SettlementMethod = "bank_transfer"
	SettlementMethodWallet       SettlementMethod = "wallet"
	SettlementMethodOther        SettlementMethod = "other"
)

var validSettlementMethods = []SettlementMethod{
	SettlementMethodCard,
	SettlementMethodBankTransfer,
	SettlementMethodWallet,
	SettlementMethodOther,
}

// IsValid reports whether the value is a known SettlementMethod.
func (s SettlementMethod) IsValid() bool {
	for _, candidate := range validSettlementMethods {
		if candidate == s {
			return true
		}
	}
	return false
}
