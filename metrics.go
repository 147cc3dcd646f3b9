package grank

import "github.com/prometheus/client_golang/prometheus"

const (
	roleCoordinator = "coordinator"
	roleParticipant = "participant"
)

var (
	invocationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grank",
		Subsystem: "collective",
		Name:      "invocations_total",
		Help:      "Number of global rank invocations started by this process",
	}, []string{"kind", "role"})

	errorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grank",
		Subsystem: "collective",
		Name:      "errors_total",
		Help:      "Number of global rank invocations that failed on this process",
	}, []string{"kind", "role"})

	durationHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grank",
		Subsystem: "collective",
		Name:      "duration_seconds",
		Help:      "Time spent in successful global rank invocations",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"role"})

	groupSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "grank",
		Subsystem: "collective",
		Name:      "group_size",
		Help:      "Size of the group seen by the last global rank invocation",
	})
)

func init() {
	prometheus.MustRegister(
		invocationCounter,
		errorCounter,
		durationHist,
		groupSizeGauge)
}

func roleLabel(isRoot bool) string {
	if isRoot {
		return roleCoordinator
	}
	return roleParticipant
}
