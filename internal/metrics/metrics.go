// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds runtime counters for the service.
type Metrics struct {
	// Work units
	GenerationUnits      atomic.Int64
	GenerationUnitErrors atomic.Int64
	ExecutionUnits       atomic.Int64
	ExecutionUnitErrors  atomic.Int64

	// Agent invocations
	AgentInvocations      atomic.Int64
	AgentInvocationErrors atomic.Int64

	// Result records and report renders
	ResultsRecorded atomic.Int64
	ReportRenders   atomic.Int64
	ReportFailures  atomic.Int64

	// Health checks
	HealthChecks        atomic.Int64
	HealthCheckFailures atomic.Int64

	// Timing (last agent invocation duration in ms)
	LastAgentDurationMs atomic.Int64

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Global returns the global metrics instance
func Global() *Metrics {
	globalOnce.Do(func() {
		global = &Metrics{
			startTime: time.Now(),
		}
	})
	return global
}

// NewForTest returns an isolated instance.
func NewForTest() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordUnit records a finished work unit of the given kind.
func (m *Metrics) RecordUnit(kind string, success bool) {
	if kind == "execution" {
		m.ExecutionUnits.Add(1)
		if !success {
			m.ExecutionUnitErrors.Add(1)
		}
		return
	}
	m.GenerationUnits.Add(1)
	if !success {
		m.GenerationUnitErrors.Add(1)
	}
}

// RecordAgentInvocation records one agent call.
func (m *Metrics) RecordAgentInvocation(success bool, durationMs int64) {
	m.AgentInvocations.Add(1)
	if !success {
		m.AgentInvocationErrors.Add(1)
	}
	m.LastAgentDurationMs.Store(durationMs)
}

// RecordResult records a persisted result record.
func (m *Metrics) RecordResult() {
	m.ResultsRecorded.Add(1)
}

// RecordReportRender records a report generation attempt.
func (m *Metrics) RecordReportRender(success bool) {
	m.ReportRenders.Add(1)
	if !success {
		m.ReportFailures.Add(1)
	}
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(healthy bool) {
	m.HealthChecks.Add(1)
	if !healthy {
		m.HealthCheckFailures.Add(1)
	}
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		uptime := time.Since(m.startTime).Seconds()

		fmt.Fprintf(w, "# HELP testflow_uptime_seconds Time since the service started\n")
		fmt.Fprintf(w, "# TYPE testflow_uptime_seconds gauge\n")
		fmt.Fprintf(w, "testflow_uptime_seconds %.2f\n\n", uptime)

		fmt.Fprintf(w, "# HELP testflow_generation_units_total Total generation work units finished\n")
		fmt.Fprintf(w, "# TYPE testflow_generation_units_total counter\n")
		fmt.Fprintf(w, "testflow_generation_units_total %d\n\n", m.GenerationUnits.Load())

		fmt.Fprintf(w, "# HELP testflow_generation_unit_errors_total Total generation work unit failures\n")
		fmt.Fprintf(w, "# TYPE testflow_generation_unit_errors_total counter\n")
		fmt.Fprintf(w, "testflow_generation_unit_errors_total %d\n\n", m.GenerationUnitErrors.Load())

		fmt.Fprintf(w, "# HELP testflow_execution_units_total Total execution work units finished\n")
		fmt.Fprintf(w, "# TYPE testflow_execution_units_total counter\n")
		fmt.Fprintf(w, "testflow_execution_units_total %d\n\n", m.ExecutionUnits.Load())

		fmt.Fprintf(w, "# HELP testflow_execution_unit_errors_total Total execution work unit failures\n")
		fmt.Fprintf(w, "# TYPE testflow_execution_unit_errors_total counter\n")
		fmt.Fprintf(w, "testflow_execution_unit_errors_total %d\n\n", m.ExecutionUnitErrors.Load())

		fmt.Fprintf(w, "# HELP testflow_agent_invocations_total Total agent invocations\n")
		fmt.Fprintf(w, "# TYPE testflow_agent_invocations_total counter\n")
		fmt.Fprintf(w, "testflow_agent_invocations_total %d\n\n", m.AgentInvocations.Load())

		fmt.Fprintf(w, "# HELP testflow_agent_invocation_errors_total Total failed agent invocations\n")
		fmt.Fprintf(w, "# TYPE testflow_agent_invocation_errors_total counter\n")
		fmt.Fprintf(w, "testflow_agent_invocation_errors_total %d\n\n", m.AgentInvocationErrors.Load())

		fmt.Fprintf(w, "# HELP testflow_results_recorded_total Total result records written\n")
		fmt.Fprintf(w, "# TYPE testflow_results_recorded_total counter\n")
		fmt.Fprintf(w, "testflow_results_recorded_total %d\n\n", m.ResultsRecorded.Load())

		fmt.Fprintf(w, "# HELP testflow_report_renders_total Total report generation attempts\n")
		fmt.Fprintf(w, "# TYPE testflow_report_renders_total counter\n")
		fmt.Fprintf(w, "testflow_report_renders_total %d\n\n", m.ReportRenders.Load())

		fmt.Fprintf(w, "# HELP testflow_report_failures_total Total failed report generations\n")
		fmt.Fprintf(w, "# TYPE testflow_report_failures_total counter\n")
		fmt.Fprintf(w, "testflow_report_failures_total %d\n\n", m.ReportFailures.Load())

		fmt.Fprintf(w, "# HELP testflow_health_checks_total Total health checks performed\n")
		fmt.Fprintf(w, "# TYPE testflow_health_checks_total counter\n")
		fmt.Fprintf(w, "testflow_health_checks_total %d\n\n", m.HealthChecks.Load())

		fmt.Fprintf(w, "# HELP testflow_health_check_failures_total Total health check failures\n")
		fmt.Fprintf(w, "# TYPE testflow_health_check_failures_total counter\n")
		fmt.Fprintf(w, "testflow_health_check_failures_total %d\n\n", m.HealthCheckFailures.Load())

		fmt.Fprintf(w, "# HELP testflow_last_agent_duration_ms Last agent invocation duration\n")
		fmt.Fprintf(w, "# TYPE testflow_last_agent_duration_ms gauge\n")
		fmt.Fprintf(w, "testflow_last_agent_duration_ms %d\n", m.LastAgentDurationMs.Load())
	}
}
