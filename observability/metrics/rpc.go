package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type RPCMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	limited  prometheus.Counter
}

var (
	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "JSON-RPC requests by method and error code (0 on success).",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "rpc_request_duration_seconds",
				Help:    "JSON-RPC handler latency by method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
			limited: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "rpc_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter.",
			}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.latency, rpcRegistry.limited)
	})
	return rpcRegistry
}

func (m *RPCMetrics) ObserveRequest(method string, code int, took time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(method).Observe(took.Seconds())
}

func (m *RPCMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.limited.Inc()
}
