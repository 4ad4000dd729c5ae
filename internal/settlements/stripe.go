package settlements

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

// OrderIDMetadataKey is the processor metadata key carrying the marketplace order id.
const OrderIDMetadataKey = "order_id"

// FromStripeObject decodes a processor object by its "object" discriminator and maps
// it into an ingest input. Only refunds, charges and payouts are accepted.
func FromStripeObject(raw []byte) (IngestInput, error) {
	var head struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return IngestInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid processor object")
	}
	switch head.Object {
	case "refund":
		var refund stripe.Refund
		if err := json.Unmarshal(raw, &refund); err != nil {
			return IngestInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid processor refund")
		}
		return FromStripeRefund(&refund)
	case "charge":
		var charge stripe.Charge
		if err := json.Unmarshal(raw, &charge); err != nil {
			return IngestInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid processor charge")
		}
		return FromStripeCharge(&charge)
	case "payout":
		var payout stripe.Payout
		if err := json.Unmarshal(raw, &payout); err != nil {
			return IngestInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid processor payout")
		}
		return FromStripePayout(&payout)
	default:
		return IngestInput{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported processor object").
			WithDetails(map[string]any{"object": head.Object})
	}
}

// FromStripeRefund maps a processor refund object into an ingest input.
func FromStripeRefund(refund *stripe.Refund) (IngestInput, error) {
	if refund == nil {
		return IngestInput{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe refund is required")
	}
	orderID, err := orderIDFrom(refund.Metadata)
	if err != nil && refund.Charge != nil {
		orderID, err = orderIDFrom(refund.Charge.Metadata)
	}
	if err != nil {
		return IngestInput{}, err
	}
	method := enums.SettlementMethodCard
	if refund.Charge != nil {
		method = chargeMethod(refund.Charge)
	}
	return IngestInput{
		OrderID:         orderID,
		Kind:            models.SettlementKindRefund,
		AmountCents:     refund.Amount,
		Currency:        string(refund.Currency),
		Method:          method,
		ProcessorStatus: refundStatus(refund.Status),
		TransactionID:   refund.ID,
	}, nil
}

// FromStripeCharge maps a processor charge object into an ingest input.
func FromStripeCharge(charge *stripe.Charge) (IngestInput, error) {
	if charge == nil {
		return IngestInput{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe charge is required")
	}
	orderID, err := orderIDFrom(charge.Metadata)
	if err != nil {
		return IngestInput{}, err
	}
	return IngestInput{
		OrderID:         orderID,
		Kind:            models.SettlementKindCharge,
		AmountCents:     charge.Amount,
		Currency:        string(charge.Currency),
		Method:          chargeMethod(charge),
		ProcessorStatus: chargeStatus(charge.Status),
		TransactionID:   charge.ID,
	}, nil
}

// FromStripePayout maps a processor payout object into an ingest input.
func FromStripePayout(payout *stripe.Payout) (IngestInput, error) {
	if payout == nil {
		return IngestInput{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe payout is required")
	}
	orderID, err := orderIDFrom(payout.Metadata)
	if err != nil {
		return IngestInput{}, err
	}
	method := enums.SettlementMethodBankTransfer
	if payout.Type == stripe.PayoutTypeCard {
		method = enums.SettlementMethodCard
	}
	return IngestInput{
		OrderID:         orderID,
		Kind:            models.SettlementKindPayout,
		AmountCents:     payout.Amount,
		Currency:        string(payout.Currency),
		Method:          method,
		ProcessorStatus: payoutStatus(payout.Status),
		TransactionID:   payout.ID,
	}, nil
}

func orderIDFrom(metadata map[string]string) (uuid.UUID, error) {
	raw := strings.TrimSpace(metadata[OrderIDMetadataKey])
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "processor record has no order id metadata")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "processor order id metadata is not a uuid")
	}
	return id, nil
}

func refundStatus(status stripe.RefundStatus) enums.SettlementStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return enums.SettlementStatusSucceeded
	case stripe.RefundStatusFailed:
		return enums.SettlementStatusFailed
	case stripe.RefundStatusCanceled:
		return enums.SettlementStatusCanceled
	case stripe.RefundStatusRequiresAction:
		return enums.SettlementStatusProcessing
	default:
		return enums.SettlementStatusPending
	}
}

func chargeStatus(status stripe.ChargeStatus) enums.SettlementStatus {
	switch status {
	case stripe.ChargeStatusSucceeded:
		return enums.SettlementStatusSucceeded
	case stripe.ChargeStatusFailed:
		return enums.SettlementStatusFailed
	default:
		return enums.SettlementStatusPending
	}
}

func payoutStatus(status stripe.PayoutStatus) enums.SettlementStatus {
	switch status {
	case stripe.PayoutStatusPaid:
		return enums.SettlementStatusSucceeded
	case stripe.PayoutStatusFailed:
		return enums.SettlementStatusFailed
	case stripe.PayoutStatusCanceled:
		return enums.SettlementStatusCanceled
	case stripe.PayoutStatusInTransit:
		return enums.SettlementStatusProcessing
	default:
		return enums.SettlementStatusPending
	}
}

func chargeMethod(charge *stripe.Charge) enums.SettlementMethod {
	if charge == nil || charge.PaymentMethodDetails == nil {
		return enums.SettlementMethodOther
	}
	switch string(charge.PaymentMethodDetails.Type) {
	case "card", "card_present":
		return enums.SettlementMethodCard
	case "us_bank_account", "ach_debit", "ach_credit_transfer", "sepa_debit", "bacs_debit", "acss_debit":
		return enums.SettlementMethodBankTransfer
	case "paypal", "cashapp", "link", "amazon_pay":
		return enums.SettlementMethodWallet
	default:
		return enums.SettlementMethodOther
	}
}
