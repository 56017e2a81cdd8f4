// Package metrics exposes the Prometheus collectors used by the executor, the
// run manager and the HTTP server. A nil *Recorder is valid and records
// nothing, so components can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentgraph"

// Recorder groups the collectors registered on one registry.
type Recorder struct {
	gatherer prometheus.Gatherer

	invocations  *prometheus.CounterVec
	nodeExecs    *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	checkpoints  *prometheus.CounterVec
	runs         *prometheus.CounterVec
	activeRuns   prometheus.Gauge
	httpRequests *prometheus.CounterVec
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry()
// in tests to keep them isolated.
func New(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		invocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_invocations_total",
			Help:      "Graph executions by final status",
		}, []string{"graph", "status"}),
		nodeExecs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Node executions by outcome",
		}, []string{"graph", "node", "status"}),
		nodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"graph", "node"}),
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_written_total",
			Help:      "Checkpoints persisted",
		}, []string{"graph"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished thread runs by multitask strategy and status",
		}, []string{"strategy", "status"}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently pending or running",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code",
		}, []string{"method", "route", "code"}),
	}
}

// NewWithRegistry creates a recorder on its own registry.
func NewWithRegistry() *Recorder {
	return New(prometheus.NewRegistry())
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Invocation counts a finished graph execution.
func (r *Recorder) Invocation(graph, status string) {
	if r == nil {
		return
	}
	r.invocations.WithLabelValues(graph, status).Inc()
}

// NodeExecuted records one node execution.
func (r *Recorder) NodeExecuted(graph, node string, d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.nodeExecs.WithLabelValues(graph, node, status).Inc()
	r.nodeDuration.WithLabelValues(graph, node).Observe(d.Seconds())
}

// CheckpointWritten counts a persisted checkpoint.
func (r *Recorder) CheckpointWritten(graph string) {
	if r == nil {
		return
	}
	r.checkpoints.WithLabelValues(graph).Inc()
}

// RunStarted bumps the active runs gauge.
func (r *Recorder) RunStarted() {
	if r == nil {
		return
	}
	r.activeRuns.Inc()
}

// RunFinished lowers the active runs gauge and counts the outcome.
func (r *Recorder) RunFinished(strategy, status string) {
	if r == nil {
		return
	}
	r.activeRuns.Dec()
	r.runs.WithLabelValues(strategy, status).Inc()
}

// HTTPRequest counts a served request.
func (r *Recorder) HTTPRequest(method, route, code string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, code).Inc()
}
