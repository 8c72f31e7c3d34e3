package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequestCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nexus_http_requests_total",
	Help: "Number of HTTP requests served",
}, []string{"path", "method", "status"})

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "nexus_http_request_duration_sec",
	Help: "Duration of HTTP request handling",
}, []string{"path", "method"})

var httpErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nexus_http_errors_total",
	Help: "Number of HTTP requests that ended in a domain error",
}, []string{"path", "method", "code"})

var moderationOutcomeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nexus_moderation_outcomes_total",
	Help: "Pipeline outcomes by action kind, outcome and error code",
}, []string{"kind", "outcome", "code"})

var sanctionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nexus_sanctions_total",
	Help: "Sanction and administrative events recorded in the audit log",
}, []string{"trigger", "action"})

var classifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "nexus_image_classifier_duration_sec",
	Help: "Duration of image classification calls",
}, []string{"provider"})

var classifierFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nexus_image_classifier_failures_total",
	Help: "Image classification failures by applied policy",
}, []string{"provider", "policy"})

// Metrics records service counters. A nil *Metrics is a valid no-op recorder.
type Metrics struct{}

// NewMetrics returns the process-wide recorder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	httpRequestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	httpErrorCount.WithLabelValues(path, method, code).Inc()
}

// RecordOutcome counts one pipeline decision.
func (m *Metrics) RecordOutcome(kind, outcome, code string) {
	if m == nil {
		return
	}
	moderationOutcomeCount.WithLabelValues(kind, outcome, code).Inc()
}

// RecordSanction counts one audit event.
func (m *Metrics) RecordSanction(trigger, action string) {
	if m == nil {
		return
	}
	sanctionCount.WithLabelValues(trigger, action).Inc()
}

// RecordClassification observes an image classifier call.
func (m *Metrics) RecordClassification(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	classifierDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordClassifierFailure counts a classifier failure and the policy applied to it.
func (m *Metrics) RecordClassifierFailure(provider, policy string) {
	if m == nil {
		return
	}
	classifierFailureCount.WithLabelValues(provider, policy).Inc()
}
