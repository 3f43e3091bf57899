package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(requestsSubmittedTotal, requestsFinishedTotal, requestRetriesTotal)
}

var requestsSubmittedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "bridge_requests_submitted_total",
		Help: "Total number of submitted requests.",
	},
)

var requestsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bridge_requests_finished_total",
		Help: "Requests that reached a roll-up outcome, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'cancelled'
)

var requestRetriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "bridge_request_retries_total",
		Help: "Total number of explicit request retries.",
	},
)

func IncRequestSubmitted() { requestsSubmittedTotal.Inc() }

func IncRequestOutcome(status string) {
	requestsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func IncRequestRetried() { requestRetriesTotal.Inc() }
