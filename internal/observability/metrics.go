package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the daemon.
type Metrics struct {
	registry           *prometheus.Registry
	ToolBuilds         *prometheus.CounterVec
	AgentBuilds        *prometheus.CounterVec
	GenerateRuns       *prometheus.CounterVec
	GenerateDuration   *prometheus.HistogramVec
	ExtractionAttempts *prometheus.CounterVec
	ActiveStreams      *prometheus.GaugeVec
	TransportErrs      *prometheus.CounterVec
	ModelUsage         *prometheus.CounterVec
	ModelFailures      *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with the codesmith collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	toolBuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codesmith_tool_builds_total",
		Help: "Document tool builds by outcome",
	}, []string{"outcome"})

	agentBuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codesmith_agent_builds_total",
		Help: "Agent builds by whether the code reader was selected",
	}, []string{"code_reader"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codesmith_generate_runs_total",
		Help: "Generation requests by outcome",
	}, []string{"outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codesmith_generate_duration_seconds",
		Help:    "Generation duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codesmith_extraction_attempts_total",
		Help: "Structured extraction attempts by result",
	}, []string{"result"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "codesmith_transport_active_streams",
		Help: "Active generation streams by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codesmith_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	modelUsage := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codesmith_model_usage_total",
		Help: "Model selections by role",
	}, []string{"role", "model"})

	modelFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codesmith_model_failures_total",
		Help: "Model failures by role and model",
	}, []string{"role", "model"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codesmith_http_requests_total",
		Help: "HTTP requests by method, route pattern and status",
	}, []string{"method", "route", "status"})

	reg.MustRegister(toolBuilds, agentBuilds, runs, durs, attempts, active, trErrors, modelUsage, modelFailures, httpRequests)

	return &Metrics{
		registry:           reg,
		ToolBuilds:         toolBuilds,
		AgentBuilds:        agentBuilds,
		GenerateRuns:       runs,
		GenerateDuration:   durs,
		ExtractionAttempts: attempts,
		ActiveStreams:      active,
		TransportErrs:      trErrors,
		ModelUsage:         modelUsage,
		ModelFailures:      modelFailures,
		HTTPRequests:       httpRequests,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordToolBuild(err error) {
	if m == nil {
		return
	}
	m.ToolBuilds.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) RecordAgentBuild(codeReader bool) {
	if m == nil {
		return
	}
	label := "false"
	if codeReader {
		label = "true"
	}
	m.AgentBuilds.WithLabelValues(label).Inc()
}

// RecordGenerate records the outcome and duration of one generation request.
func (m *Metrics) RecordGenerate(err error, duration time.Duration) {
	if m == nil {
		return
	}
	o := outcome(err)
	m.GenerateRuns.WithLabelValues(o).Inc()
	m.GenerateDuration.WithLabelValues(o).Observe(duration.Seconds())
}

// RecordExtractionAttempt counts one agent+extraction attempt.
func (m *Metrics) RecordExtractionAttempt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "retry"
	}
	m.ExtractionAttempts.WithLabelValues(result).Inc()
}

// IncActiveStreams increments the active stream gauge.
func (m *Metrics) IncActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Inc()
}

// DecActiveStreams decrements the active stream gauge.
func (m *Metrics) DecActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	m.TransportErrs.WithLabelValues(orUnknown(transport), orUnknown(reason)).Inc()
}

// RecordModelUsage increments usage counter for a role/model selection.
func (m *Metrics) RecordModelUsage(role, model string) {
	if m == nil {
		return
	}
	m.ModelUsage.WithLabelValues(orUnknown(role), orUnknown(model)).Inc()
}

// RecordModelFailure increments failure counter for a role/model selection.
func (m *Metrics) RecordModelFailure(role, model string) {
	if m == nil {
		return
	}
	m.ModelFailures.WithLabelValues(orUnknown(role), orUnknown(model)).Inc()
}

// RecordHTTPRequest counts a served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, orUnknown(route), strconv.Itoa(status)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
