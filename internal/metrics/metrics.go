package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	projectionName = "projection_name"
)

var (
	// ReplayState reflects the current replay status per projection using the
	// status' integer value.
	ReplayState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "appraise_replay_state",
		Help: "The current replay status per projection",
	}, []string{projectionName})

	// ReplayEventsProcessed is the cumulative number of events fed through a
	// projection's transformation function during rebuilds.
	ReplayEventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appraise_replay_events_processed_count",
		Help: "Number of events replayed through the projection",
	}, []string{projectionName})

	// ReplayErrors is the number of rebuild runs that ended in Failed.
	ReplayErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appraise_replay_error_count",
		Help: "Number of failed projection rebuilds",
	}, []string{projectionName})

	// ReplayBatchLatency is how long one replay batch takes end to end.
	ReplayBatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appraise_replay_batch_latency_seconds",
		Help:    "Replay batch latency in seconds",
		Buckets: []float64{0.01, 0.1, 1, 5, 10, 60, 300},
	}, []string{projectionName})
)

func init() {
	prometheus.MustRegister(
		ReplayState,
		ReplayEventsProcessed,
		ReplayErrors,
		ReplayBatchLatency,
	)
}
