// Package metrics provides Prometheus metrics for query compilation and execution
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conduit-lang/querykit/internal/orm/query"
)

// Metrics holds the querykit collectors. It implements query.Observer.
type Metrics struct {
	// Compilation
	CompilationsTotal *prometheus.CounterVec
	IssuesTotal       *prometheus.CounterVec
	CompileDuration   *prometheus.HistogramVec

	// Execution
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.CompilationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querykit_compilations_total",
			Help: "Total number of compiled queries",
		},
		[]string{"resource", "outcome"},
	)

	m.IssuesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querykit_issues_total",
			Help: "Total number of validation issues by code",
		},
		[]string{"resource", "code"},
	)

	m.CompileDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querykit_compile_duration_seconds",
			Help:    "Duration of query compilation in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
		[]string{"resource"},
	)

	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querykit_queries_total",
			Help: "Total number of executed queries",
		},
		[]string{"resource", "strategy", "status"},
	)

	m.QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querykit_query_duration_seconds",
			Help:    "Duration of query execution, including count and eager loading, in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "strategy"},
	)

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querykit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querykit_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	return m
}

// ObserveCompile implements query.Observer
func (m *Metrics) ObserveCompile(resource string, issues query.Issues, elapsed time.Duration) {
	outcome := "ok"
	if len(issues) > 0 {
		outcome = "rejected"
	}
	m.CompilationsTotal.WithLabelValues(resource, outcome).Inc()
	m.CompileDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
	for _, issue := range issues {
		m.IssuesTotal.WithLabelValues(resource, string(issue.Code)).Inc()
	}
}

// ObserveExecute implements query.Observer
func (m *Metrics) ObserveExecute(resource, strategy string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.QueriesTotal.WithLabelValues(resource, strategy, status).Inc()
	m.QueryDuration.WithLabelValues(resource, strategy).Observe(elapsed.Seconds())
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
