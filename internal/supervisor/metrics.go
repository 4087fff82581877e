package supervisor

import "github.com/prometheus/client_golang/prometheus"

// restartsTotal and stateGauge are the only metrics wired directly into
// the pipeline core; everything else lives behind internal/metrics.
var (
	restartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vmp_pipeline_restarts_total",
		Help: "Number of times a supervisor has restarted its pipeline.",
	}, []string{"channel"})

	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vmp_pipeline_state",
		Help: "1 if the named channel's pipeline is currently in the given state, 0 otherwise.",
	}, []string{"channel", "state"})
)

func init() {
	prometheus.MustRegister(restartsTotal, stateGauge)
}

func observeState(channel string, current State) {
	for _, s := range []State{StateCreated, StatePlaying, StateEndOfStream, StateError} {
		v := 0.0
		if s == current {
			v = 1.0
		}
		stateGauge.WithLabelValues(channel, string(s)).Set(v)
	}
}
