package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "fabzclean"

// LedgerMetrics records credit ledger and order settlement activity.
type LedgerMetrics struct {
	mutations   *prometheus.CounterVec
	amounts     *prometheus.HistogramVec
	settlements *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	mismatches  prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on reg. A nil registerer
// yields a no-op recorder, which keeps tests free of global state.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_mutations_total",
		Help:      "Credit ledger entries applied, by entry type.",
	}, []string{"type"})
	amounts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_mutation_amount",
		Help:      "Absolute amount of applied ledger entries.",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 50000},
	}, []string{"type"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_total",
		Help:      "Accepted order settlements by payment method and resulting status.",
	}, []string{"method", "status"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_rejections_total",
		Help:      "Rejected order settlements by reason.",
	}, []string{"reason"})
	mismatches := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_integrity_mismatches",
		Help:      "Customers whose ledger replay disagreed with the stored balance in the last sweep.",
	})
	reg.MustRegister(mutations, amounts, settlements, rejections, mismatches)
	return &LedgerMetrics{
		mutations:   mutations,
		amounts:     amounts,
		settlements: settlements,
		rejections:  rejections,
		mismatches:  mismatches,
	}
}

// ObserveMutation counts one applied entry and its absolute amount.
func (m *LedgerMetrics) ObserveMutation(entryType string, amount decimal.Decimal) {
	if m == nil || m.mutations == nil {
		return
	}
	label := normalizeLabel(entryType)
	m.mutations.WithLabelValues(label).Inc()
	value, _ := amount.Abs().Float64()
	m.amounts.WithLabelValues(label).Observe(value)
}

// IncSettlement counts an accepted settlement.
func (m *LedgerMetrics) IncSettlement(method, status string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(method), normalizeLabel(status)).Inc()
}

// IncSettlementRejection counts a settlement refused before any mutation.
func (m *LedgerMetrics) IncSettlementRejection(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

// SetIntegrityMismatches publishes the result of the last integrity sweep.
func (m *LedgerMetrics) SetIntegrityMismatches(count int) {
	if m == nil || m.mismatches == nil {
		return
	}
	m.mismatches.Set(float64(count))
}
