package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics covers round execution and the pending pool.
type LedgerMetrics struct {
	rounds        prometheus.Counter
	roundDuration prometheus.Histogram
	transactions  *prometheus.CounterVec
	pending       prometheus.Gauge
	height        prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			rounds: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ledger_rounds_total",
				Help: "Rounds executed since start.",
			}),
			roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "ledger_round_duration_seconds",
				Help:    "Wall time spent executing one round.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Transactions processed by outcome.",
			}, []string{"outcome"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ledger_pending_transactions",
				Help: "Transactions waiting for the next round.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ledger_round_height",
				Help: "Number of the last executed round.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.rounds,
			ledgerRegistry.roundDuration,
			ledgerRegistry.transactions,
			ledgerRegistry.pending,
			ledgerRegistry.height,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveRound(round uint64, took time.Duration) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.roundDuration.Observe(took.Seconds())
	m.height.Set(float64(round))
}

// ObserveTransaction counts a transaction outcome such as "committed",
// "failed", "account_in_use", "expired" or "duplicate".
func (m *LedgerMetrics) ObserveTransaction(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.transactions.WithLabelValues(outcome).Inc()
}

func (m *LedgerMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
