package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signalbus"

// Registry holds every collector exported by this module.
var Registry = prometheus.NewRegistry()

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals sent on the bus",
		},
		[]string{"kind", "entity"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Handler invocations by outcome",
		},
		[]string{"handler", "operation", "mode", "outcome"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Duration of pooled tasks in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"task", "outcome"},
	)

	queuedTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queued_tasks",
			Help:      "Tasks accepted by the pool and not yet finished",
		},
	)

	rejectedTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "rejected_total",
			Help:      "Tasks the pool refused to accept",
		},
		[]string{"reason"},
	)

	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Messages handed to broker adapters",
		},
		[]string{"adapter", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		signalsTotal, dispatchTotal, taskDuration, queuedTasks, rejectedTasks, publishTotal,
	)
}

// Handler returns an HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}

// SignalSent counts one signal on the bus.
func SignalSent(kind, entity string) { signalsTotal.WithLabelValues(kind, entity).Inc() }

// Dispatched counts one handler invocation. mode is "sync" or "async".
func Dispatched(handler, operation, mode string, err error) {
	dispatchTotal.WithLabelValues(handler, operation, mode, outcome(err)).Inc()
}

// TaskQueued and TaskFinished track the pool backlog.
func TaskQueued() { queuedTasks.Inc() }

// TaskFinished records a finished task and its duration.
func TaskFinished(task string, seconds float64, err error) {
	queuedTasks.Dec()
	taskDuration.WithLabelValues(task, outcome(err)).Observe(seconds)
}

// TaskRejected counts a refused submission.
func TaskRejected(reason string) {
	if reason == "" {
		reason = "unspecified"
	}

	rejectedTasks.WithLabelValues(reason).Inc()
}

// Published counts one adapter publish.
func Published(adapter string, err error) { publishTotal.WithLabelValues(adapter, outcome(err)).Inc() }
