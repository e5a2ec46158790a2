package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the runtime's Prometheus collectors.
type Metrics struct {
	EventsDecoded   *prometheus.CounterVec
	EnvelopeErrors  *prometheus.CounterVec
	BodyAnomalies   *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	Acks            *prometheus.CounterVec
	DLQTotal        *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fnsdk_events_decoded_total",
			Help: "Events decoded from wire messages.",
		}, []string{"format", "keys"}),

		EnvelopeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fnsdk_envelope_errors_total",
			Help: "Messages or batch elements rejected as invalid envelopes.",
		}, []string{"format"}),

		BodyAnomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fnsdk_body_anomalies_total",
			Help: "Bodies kept in raw form because structured decoding failed.",
		}, []string{"content_type"}),

		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fnsdk_handler_duration_seconds",
			Help:    "Handler invocation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger"}),

		Acks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fnsdk_acks_total",
			Help: "Explicit stream acknowledgements by outcome.",
		}, []string{"status"}),

		DLQTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fnsdk_dlq_total",
			Help: "Messages sent to the dead-letter topic.",
		}, []string{"reason"}),
	}
}
