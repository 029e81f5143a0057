package supervisor

import "github.com/prometheus/client_golang/prometheus"

var allStates = []State{StateNotStarted, StateStarting, StateHealthy, StateTimedOut, StateFailed}

var (
	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scoringd",
			Subsystem: "supervisor",
			Name:      "state",
			Help:      "Current backing server lifecycle state (1 for the active state)",
		},
		[]string{"state"},
	)

	startupSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scoringd",
			Subsystem: "supervisor",
			Name:      "startup_seconds",
			Help:      "Seconds between spawn and first healthy probe",
		},
	)

	probeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scoringd",
			Subsystem: "supervisor",
			Name:      "probe_failures_total",
			Help:      "Total failed TCP readiness probes",
		},
	)
)

func init() {
	prometheus.MustRegister(stateGauge, startupSeconds, probeFailuresTotal)
}

func observeState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		stateGauge.WithLabelValues(string(st)).Set(v)
	}
}
