package enums

import "fmt"

// PayoutMethodType enumerates where vendor withdrawals can be sent.
type PayoutMethodType string

const (
	PayoutMethodTypeBankAccount PayoutMethodType = "bank_account"
	PayoutMethodTypeDebitCard   PayoutMethodType = "debit_card"
	PayoutMethodTypeWallet      PayoutMethodType = "wallet"
)

var validPayoutMethodTypes = []PayoutMethodType{
	PayoutMethodTypeBankAccount,
	PayoutMethodTypeDebitCard,
	PayoutMethodTypeWallet,
}

// String implements fmt.Stringer.
func (p PayoutMethodType) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PayoutMethodType) IsValid() bool {
	for _, candidate := range validPayoutMethodTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutMethodType converts raw input into a PayoutMethodType.
func ParsePayoutMethodType(value string) (PayoutMethodType, error) {
	for _, candidate := range validPayoutMethodTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout method type %q", value)
}
