// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the gatehouse gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatehouse_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// InFlightRequests tracks requests currently being served.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatehouse_requests_in_flight",
			Help: "Requests in flight",
		},
	)

	// AdmissionDecisionsTotal counts admission filter outcomes.
	AdmissionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_admission_decisions_total",
			Help: "Admission decisions",
		},
		[]string{"outcome"},
	)

	// CredentialVerificationsTotal counts credential verifications by
	// scheme and outcome (match, mismatch, unknown_scheme).
	CredentialVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_credential_verifications_total",
			Help: "Credential verifications",
		},
		[]string{"scheme", "outcome"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// UpstreamErrorsTotal counts failed round trips to the upstream backend.
	UpstreamErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatehouse_upstream_errors_total",
			Help: "Upstream proxy errors",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		InFlightRequests,
		AdmissionDecisionsTotal,
		CredentialVerificationsTotal,
		RateLimitRejectedTotal,
		UpstreamErrorsTotal,
	)
}
