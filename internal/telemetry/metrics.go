package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/controlnode/pkg/model"
)

const namespace = "controlnode"

// Metrics holds the Prometheus collectors of a control node. It satisfies
// scheduler.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	tasks       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks",
			Help:      "Tasks currently held by the scheduler, by container.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "transitions_total",
			Help:      "Task lifecycle transitions, by operation and task type.",
		}, []string{"op", "type"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "JSON-RPC calls, by method and outcome (ok or error type).",
		}, []string{"method", "outcome"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "JSON-RPC call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		m.tasks, m.transitions, m.rpcCalls, m.rpcDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Transition counts one lifecycle step.
func (m *Metrics) Transition(op string, t model.TaskType) {
	m.transitions.WithLabelValues(op, string(t)).Inc()
}

// QueueSizes records the current container sizes.
func (m *Metrics) QueueSizes(waiting, offered, running int) {
	m.tasks.WithLabelValues(string(model.TaskStateQueued)).Set(float64(waiting))
	m.tasks.WithLabelValues(string(model.TaskStateOffered)).Set(float64(offered))
	m.tasks.WithLabelValues(string(model.TaskStateRunning)).Set(float64(running))
}

// ObserveRPC records one JSON-RPC call. outcome is "ok" or the error type.
func (m *Metrics) ObserveRPC(method, outcome string, elapsed time.Duration) {
	m.rpcCalls.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
