package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FinanceMetrics tracks money movement outcomes across the back office.
// A nil receiver or one built without a registerer is a no-op.
type FinanceMetrics struct {
	refundOutcomes    *prometheus.CounterVec
	payoutTransitions *prometheus.CounterVec
	reconciliation    *prometheus.GaugeVec
	exposure          prometheus.Gauge
	balanceAnomalies  prometheus.Counter
	settlements       *prometheus.CounterVec
}

// NewFinanceMetrics registers the finance collectors on the provided registerer.
func NewFinanceMetrics(reg prometheus.Registerer) *FinanceMetrics {
	if reg == nil {
		return &FinanceMetrics{}
	}
	m := &FinanceMetrics{
		refundOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finance_refund_outcomes_total",
			Help: "Refund approval and rejection outcomes.",
		}, []string{"outcome"}),
		payoutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finance_payout_transitions_total",
			Help: "Payout request status transitions.",
		}, []string{"status"}),
		reconciliation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finance_reconciliation_refunds",
			Help: "Refunds per reconciliation status in the latest view.",
		}, []string{"status"}),
		exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "finance_unmatched_exposure_cents",
			Help: "Sum of unmatched refund amounts in the latest view.",
		}),
		balanceAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finance_balance_anomalies_total",
			Help: "Vendor balances observed with negative available funds.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finance_settlements_ingested_total",
			Help: "Settlement records ingested, split by whether they were new.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.refundOutcomes, m.payoutTransitions, m.reconciliation, m.exposure, m.balanceAnomalies, m.settlements)
	return m
}

// IncRefundOutcome counts an approve/reject/failed outcome.
func (m *FinanceMetrics) IncRefundOutcome(outcome string) {
	if m == nil || m.refundOutcomes == nil {
		return
	}
	m.refundOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPayoutTransition counts a payout entering status.
func (m *FinanceMetrics) IncPayoutTransition(status string) {
	if m == nil || m.payoutTransitions == nil {
		return
	}
	m.payoutTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// SetReconciliation publishes the latest matched/unmatched counts and exposure.
func (m *FinanceMetrics) SetReconciliation(matched, unmatched int, exposureCents int64) {
	if m == nil || m.reconciliation == nil {
		return
	}
	m.reconciliation.WithLabelValues("matched").Set(float64(matched))
	m.reconciliation.WithLabelValues("unmatched").Set(float64(unmatched))
	m.exposure.Set(float64(exposureCents))
}

// IncBalanceAnomaly counts a vendor observed with negative available balance.
func (m *FinanceMetrics) IncBalanceAnomaly() {
	if m == nil || m.balanceAnomalies == nil {
		return
	}
	m.balanceAnomalies.Inc()
}

// IncSettlementIngested counts an ingest; duplicate=true when the transaction was already known.
func (m *FinanceMetrics) IncSettlementIngested(duplicate bool) {
	if m == nil || m.settlements == nil {
		return
	}
	result := "created"
	if duplicate {
		result = "duplicate"
	}
	m.settlements.WithLabelValues(result).Inc()
}
