package models

import "github.com/google/uuid"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every model owned by the finance schema, in dependency order.
func All() []any {
	return []any{
		&RefundRequest{},
		&SettlementRecord{},
		&PayoutMethod{},
		&PayoutRequest{},
		&LedgerEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
