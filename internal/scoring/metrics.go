package scoring

import "github.com/prometheus/client_golang/prometheus"

var (
	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoringd",
			Subsystem: "scoring",
			Name:      "outcomes_total",
			Help:      "Scoring cycles by outcome kind and task type",
		},
		[]string{"kind", "task_type"},
	)

	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scoringd",
			Subsystem: "scoring",
			Name:      "cycle_duration_seconds",
			Help:      "End-to-end adapter time per scoring cycle",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"task_type"},
	)
)

func init() {
	prometheus.MustRegister(outcomesTotal, cycleDuration)
}
