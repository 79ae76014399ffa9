// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ascend_interview"

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	// Session metrics
	SessionsStarted    prometheus.Counter
	SessionsCompleted  prometheus.Counter
	SessionsTerminated *prometheus.CounterVec
	SessionsFailed     *prometheus.CounterVec
	MediaDegraded      prometheus.Counter

	// Answer metrics
	Submissions       *prometheus.CounterVec
	SubmitLatency     prometheus.Histogram
	SubmitRejected    *prometheus.CounterVec
	CountdownsFired   prometheus.Counter
	FollowUpFallbacks prometheus.Counter
	Transitions       *prometheus.CounterVec

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	RecognizerErrors   *prometheus.CounterVec

	// Backend metrics
	BackendRequests *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec
	BackendRetries  *prometheus.CounterVec

	// Auxiliary service metrics
	NarrationFailures  *prometheus.CounterVec
	NarrationCacheHits prometheus.Counter
	MonitorFrames      *prometheus.CounterVec
	SecurityViolations *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
	EventsDropped       prometheus.Counter

	// Control plane metrics
	GRPCCalls        *prometheus.CounterVec
	GRPCLatency      *prometheus.HistogramVec
	ControlRequests  *prometheus.CounterVec
	EventSubscribers prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of interview sessions bootstrapped",
		}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of interview sessions that reached the final assessment",
		}),
		SessionsTerminated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_terminated_total",
			Help:      "Total number of sessions ended before completion",
		}, []string{"reason"}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of setup failures",
		}, []string{"kind"}),
		MediaDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_degraded_total",
			Help:      "Number of times capture fell back to video-only",
		}),

		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of answers submitted",
		}, []string{"trigger", "mode"}),
		SubmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_latency_seconds",
			Help:      "Latency of answer submission round trips",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		SubmitRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_rejected_total",
			Help:      "Submissions rejected before reaching the backend",
		}, []string{"reason"}),
		CountdownsFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "countdowns_fired_total",
			Help:      "Auto-flow countdowns that reached zero",
		}),
		FollowUpFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "followup_fallback_total",
			Help:      "Follow-up submissions sent to the main-question endpoint because indices were out of range",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Question transitions by action",
		}, []string{"action"}),

		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of interim transcripts received",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts received",
		}),
		RecognizerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_errors_total",
			Help:      "Speech recognizer errors",
		}, []string{"provider"}),

		BackendRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend REST calls by endpoint and status class",
		}, []string{"endpoint", "status"}),
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Backend REST call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"endpoint"}),
		BackendRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Retries of non-critical backend calls",
		}, []string{"endpoint"}),

		NarrationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narration_failures_total",
			Help:      "Narration failures treated as finished",
		}, []string{"stage"}),
		NarrationCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narration_cache_hits_total",
			Help:      "Narration clips served from cache",
		}),
		MonitorFrames: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_frames_total",
			Help:      "Proctoring frames by result",
		}, []string{"result"}),
		SecurityViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_violations_total",
			Help:      "Security violations by kind",
		}, []string{"kind"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Session events dropped because the bus queue was full",
		}),

		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "gRPC calls by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_call_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ControlRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_requests_total",
			Help:      "Control API requests by route and status",
		}, []string{"route", "status"}),
		EventSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Connected WebSocket event stream clients",
		}),
	}
}

// RecordSessionStarted records a bootstrapped session.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionCompleted records a session that produced an assessment.
func (m *Metrics) RecordSessionCompleted() {
	m.SessionsCompleted.Inc()
}

// RecordSessionTerminated records a session ended early.
func (m *Metrics) RecordSessionTerminated(reason string) {
	m.SessionsTerminated.WithLabelValues(reason).Inc()
}

// RecordSetupFailure records a blocking setup error.
func (m *Metrics) RecordSetupFailure(kind string) {
	m.SessionsFailed.WithLabelValues(kind).Inc()
}

// RecordMediaDegraded records a fallback to video-only capture.
func (m *Metrics) RecordMediaDegraded() {
	m.MediaDegraded.Inc()
}

// RecordSubmission records a submission round trip.
func (m *Metrics) RecordSubmission(trigger, mode string, latencySeconds float64) {
	m.Submissions.WithLabelValues(trigger, mode).Inc()
	m.SubmitLatency.Observe(latencySeconds)
}

// RecordSubmitRejected records a submission rejected locally.
func (m *Metrics) RecordSubmitRejected(reason string) {
	m.SubmitRejected.WithLabelValues(reason).Inc()
}

// RecordCountdownFired records an auto-flow countdown expiry.
func (m *Metrics) RecordCountdownFired() {
	m.CountdownsFired.Inc()
}

// RecordFollowUpFallback records a follow-up submission routed to the main endpoint.
func (m *Metrics) RecordFollowUpFallback() {
	m.FollowUpFallbacks.Inc()
}

// RecordTransition records a question transition.
func (m *Metrics) RecordTransition(action string) {
	m.Transitions.WithLabelValues(action).Inc()
}

// RecordPartialTranscript records an interim transcript.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordFinalTranscript records a final transcript.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordRecognizerError records a speech recognizer error.
func (m *Metrics) RecordRecognizerError(provider string) {
	m.RecognizerErrors.WithLabelValues(provider).Inc()
}

// RecordBackendRequest records a backend REST call.
func (m *Metrics) RecordBackendRequest(endpoint, status string, latencySeconds float64) {
	m.BackendRequests.WithLabelValues(endpoint, status).Inc()
	m.BackendLatency.WithLabelValues(endpoint).Observe(latencySeconds)
}

// RecordBackendRetry records a retry of a non-critical call.
func (m *Metrics) RecordBackendRetry(endpoint string) {
	m.BackendRetries.WithLabelValues(endpoint).Inc()
}

// RecordNarrationFailure records a narration failure at the given stage.
func (m *Metrics) RecordNarrationFailure(stage string) {
	m.NarrationFailures.WithLabelValues(stage).Inc()
}

// RecordNarrationCacheHit records a cached narration clip.
func (m *Metrics) RecordNarrationCacheHit() {
	m.NarrationCacheHits.Inc()
}

// RecordMonitorFrame records a proctoring frame result.
func (m *Metrics) RecordMonitorFrame(result string) {
	m.MonitorFrames.WithLabelValues(result).Inc()
}

// RecordSecurityViolation records a security violation.
func (m *Metrics) RecordSecurityViolation(kind string) {
	m.SecurityViolations.WithLabelValues(kind).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordEventDropped records a session event dropped by the bus.
func (m *Metrics) RecordEventDropped() {
	m.EventsDropped.Inc()
}

// RecordGRPCCall records a completed gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, latencySeconds float64) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordControlRequest records a control API request.
func (m *Metrics) RecordControlRequest(route string, status int) {
	m.ControlRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// SubscriberConnected tracks a WebSocket client joining the event stream.
func (m *Metrics) SubscriberConnected() {
	m.EventSubscribers.Inc()
}

// SubscriberDisconnected tracks a WebSocket client leaving the event stream.
func (m *Metrics) SubscriberDisconnected() {
	m.EventSubscribers.Dec()
}
