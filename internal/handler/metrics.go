package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crediflowRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crediflow_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	crediflowRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crediflow_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	crediflowSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crediflow_submissions_total",
		Help: "Total ledger submissions by payload type.",
	}, []string{"type"})

	crediflowStatusChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crediflow_status_checks_total",
		Help: "Total status derivations by record kind and derived status.",
	}, []string{"kind", "status"})

	crediflowAssessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crediflow_assessments_total",
		Help: "Total risk assessments by grade.",
	}, []string{"grade"})

	crediflowLedgerProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crediflow_ledger_probes_total",
		Help: "Total ledger connectivity probes by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		crediflowRequestsTotal.WithLabelValues(method, path, status).Inc()
		crediflowRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordSubmission records an accepted ledger submission by payload type.
func RecordSubmission(payloadType string) {
	crediflowSubmissionsTotal.WithLabelValues(payloadType).Inc()
}

// RecordStatusCheck records a status derivation and its outcome.
func RecordStatusCheck(kind, status string) {
	crediflowStatusChecksTotal.WithLabelValues(kind, status).Inc()
}

// RecordAssessment records a completed risk assessment by grade.
func RecordAssessment(grade string) {
	crediflowAssessmentsTotal.WithLabelValues(grade).Inc()
}

// RecordLedgerProbe records a ledger connectivity probe result.
func RecordLedgerProbe(success bool) {
	if success {
		crediflowLedgerProbesTotal.WithLabelValues("success").Inc()
	} else {
		crediflowLedgerProbesTotal.WithLabelValues("failure").Inc()
	}
}
