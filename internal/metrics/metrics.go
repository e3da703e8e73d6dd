// Package metrics exposes Prometheus counters for jobs, engine steps, model
// calls and the response cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this process exports.
var Registry = prometheus.NewRegistry()

var (
	JobsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Name:      "jobs_started_total",
		Help:      "Generation jobs started, by kind.",
	}, []string{"kind"})

	JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Name:      "jobs_finished_total",
		Help:      "Generation jobs finished, by kind and final status.",
	}, []string{"kind", "status"})

	JobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quill",
		Name:      "jobs_running",
		Help:      "Generation jobs currently running.",
	})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quill",
		Name:      "job_duration_seconds",
		Help:      "Wall time of finished jobs.",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
	}, []string{"kind"})

	EngineSteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Name:      "engine_steps_total",
		Help:      "Node actions executed, by action and task type.",
	}, []string{"action", "task_type"})

	LLMCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Name:      "llm_calls_total",
		Help:      "Chat model calls, by prompt and outcome.",
	}, []string{"prompt", "outcome"})

	LLMLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quill",
		Name:      "llm_call_duration_seconds",
		Help:      "Chat model call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"model"})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Name:      "cache_lookups_total",
		Help:      "Response cache lookups, by cache name and result.",
	}, []string{"cache", "result"})

	SearchPages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Name:      "search_pages_total",
		Help:      "Web pages moving through the search pipeline, by stage.",
	}, []string{"stage"})

	WebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quill",
		Name:      "websocket_clients",
		Help:      "Connected Socket.IO clients.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		JobsStarted, JobsFinished, JobsRunning, JobDuration,
		EngineSteps, LLMCalls, LLMLatency, CacheLookups, SearchPages,
		WebSocketClients,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
