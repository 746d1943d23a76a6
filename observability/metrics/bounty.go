package metrics

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"prizechain/core/types"
)

// BountyMetrics tracks program activity and the lamports held in escrow.
type BountyMetrics struct {
	attempts     *prometheus.CounterVec
	escrowed     prometheus.Gauge
	live         prometheus.Gauge
	lifecycle    *prometheus.CounterVec
}

var (
	bountyOnce     sync.Once
	bountyRegistry *BountyMetrics
)

func Bounty() *BountyMetrics {
	bountyOnce.Do(func() {
		bountyRegistry = &BountyMetrics{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bounty_instruction_attempts_total",
				Help: "Bounty instructions processed by the program, by operation and program result. Includes instructions of transactions that later rolled back; bounty_lifecycle_events_total counts committed ones.",
			}, []string{"op", "result"}),
			escrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "bounty_escrowed_lamports",
				Help: "Reward lamports held by open and in-progress bounties.",
			}),
			live: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "bounty_live",
				Help: "Number of bounty records that have not been closed.",
			}),
			lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bounty_lifecycle_events_total",
				Help: "Committed bounty lifecycle events by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			bountyRegistry.attempts,
			bountyRegistry.escrowed,
			bountyRegistry.live,
			bountyRegistry.lifecycle,
		)
	})
	return bountyRegistry
}

// ObserveInstruction counts one program invocation. The result label is "ok"
// or the name of the failure kind returned by the program; it does not mean
// the transaction committed.
func (m *BountyMetrics) ObserveInstruction(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.attempts.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObserveEvent folds a committed event into the escrow gauges.
func (m *BountyMetrics) ObserveEvent(evt *types.Event) {
	if m == nil || evt == nil {
		return
	}
	m.lifecycle.WithLabelValues(evt.Type).Inc()
	reward, _ := strconv.ParseUint(evt.Attributes["reward"], 10, 64)
	switch evt.Type {
	case "bounty.created":
		m.escrowed.Add(float64(reward))
		m.live.Inc()
	case "bounty.completed", "bounty.cancelled":
		m.escrowed.Sub(float64(reward))
		m.live.Dec()
	}
}

// SetEscrowed resets the gauges from a full scan, used at startup.
func (m *BountyMetrics) SetEscrowed(lamports uint64, live int) {
	if m == nil {
		return
	}
	m.escrowed.Set(float64(lamports))
	m.live.Set(float64(live))
}

type namedError interface {
	error
	ErrorName() string
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var named namedError
	if errors.As(err, &named) {
		return named.ErrorName()
	}
	return "error"
}
