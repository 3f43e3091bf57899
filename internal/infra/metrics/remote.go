package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(remoteCallsTotal, remoteBatchLatencyMs, ticketsCreatedTotal, ticketsSyncedTotal)
}

var remoteCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bridge_remote_calls_total",
		Help: "Calls to the external ticketing API per operation and outcome.",
	},
	[]string{"provider", "op", "outcome"},
)

var remoteBatchLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "bridge_remote_batch_latency_ms",
		Help:    "Batch create latency distribution in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	},
	[]string{"provider"},
)

var ticketsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bridge_tickets_created_total",
		Help: "Per-ticket remote creation outcomes.",
	},
	[]string{"outcome"}, // 'success', 'failed'
)

var ticketsSyncedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "bridge_tickets_synced_total",
		Help: "Tickets whose remote status was pulled successfully.",
	},
)

func IncRemoteCall(provider, op, outcome string) {
	remoteCallsTotal.WithLabelValues(provider, op, norm(outcome)).Inc()
}

func ObserveBatchLatency(provider string, d time.Duration) {
	remoteBatchLatencyMs.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
}

func IncTicketCreate(outcome string) {
	ticketsCreatedTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddTicketsSynced(n int) {
	if n > 0 {
		ticketsSyncedTotal.Add(float64(n))
	}
}
