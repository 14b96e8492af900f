package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce               sync.Once
	homeworkRequestsTotal      *prometheus.CounterVec
	homeworkLatencySeconds     *prometheus.HistogramVec
	homeworkErrorsTotal        *prometheus.CounterVec
	homeworkAssignmentsCreated *prometheus.CounterVec
	homeworkTaskTransitions    *prometheus.CounterVec
	homeworkEventsPublished    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the homework API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		homeworkRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_requests_total",
			Help: "Total number of homework API requests served.",
		}, []string{"method", "route", "status"})

		homeworkLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homework_latency_seconds",
			Help:    "Latency distribution for homework API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		homeworkErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_errors_total",
			Help: "Total number of error responses returned by homework endpoints.",
		}, []string{"method", "route", "status"})

		homeworkAssignmentsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_assignments_created_total",
			Help: "Assignment creation requests by outcome (created or replayed).",
		}, []string{"outcome"})

		homeworkTaskTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_task_transitions_total",
			Help: "Task progress transitions by kind and outcome (applied or noop).",
		}, []string{"transition", "outcome"})

		homeworkEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homework_events_published_total",
			Help: "Homework events handed to the brokers by type and result.",
		}, []string{"type", "result"})

		prometheus.MustRegister(
			homeworkRequestsTotal,
			homeworkLatencySeconds,
			homeworkErrorsTotal,
			homeworkAssignmentsCreated,
			homeworkTaskTransitions,
			homeworkEventsPublished,
		)
	})
}

// HomeworkRequests exposes the counter for homework requests.
func HomeworkRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return homeworkRequestsTotal
}

// HomeworkLatency exposes the latency histogram for homework requests.
func HomeworkLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return homeworkLatencySeconds
}

// HomeworkErrors exposes the counter for homework error responses.
func HomeworkErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return homeworkErrorsTotal
}

// HomeworkAssignmentsCreated exposes the assignment creation counter.
func HomeworkAssignmentsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return homeworkAssignmentsCreated
}

// HomeworkTaskTransitions exposes the task transition counter.
func HomeworkTaskTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return homeworkTaskTransitions
}

// HomeworkEventsPublished exposes the event publication counter.
func HomeworkEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return homeworkEventsPublished
}
