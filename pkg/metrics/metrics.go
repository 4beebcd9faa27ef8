// Package metrics holds the Prometheus collectors of the session daemon.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sed"

var (
	registerOnce sync.Once

	// Dispatches counts executed commands by opcode and outcome ("ok" or the error kind).
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Commands executed against the secure element, by outcome.",
		},
		[]string{"op", "outcome"},
	)
	// TransportLatency observes the controller round trip of commands that reached the channel.
	TransportLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "call_duration_seconds",
			Help:      "Controller call duration in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Register adds the collectors to the default registry. It is safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Dispatches, TransportLatency, HTTPRequests, HTTPDuration)
	})
}

// RecordDispatch counts one command outcome.
func RecordDispatch(op, outcome string) {
	Dispatches.WithLabelValues(op, outcome).Inc()
}

// ObserveTransport records how long the channel took to answer op.
func ObserveTransport(op string, d time.Duration) {
	TransportLatency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordHTTPRequest counts one served request. path is the route pattern, not the raw URL.
func RecordHTTPRequest(method, path string, status int, d time.Duration) {
	statusLabel := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path, statusLabel).Inc()
	HTTPDuration.WithLabelValues(method, path, statusLabel).Observe(d.Seconds())
}
