package llamaclient

import "github.com/prometheus/client_golang/prometheus"

var (
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoringd",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total requests issued to the backing server",
		},
		[]string{"endpoint", "status"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scoringd",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of backing server requests in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"endpoint"},
	)

	tokenizeDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoringd",
			Subsystem: "upstream",
			Name:      "tokenize_degraded_total",
			Help:      "Tokenize calls that fell back to zero tokens",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(upstreamRequestsTotal, upstreamDuration, tokenizeDegradedTotal)
}
