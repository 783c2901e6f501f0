package coordination

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the coordination server's Prometheus collectors against a
// private registry (not the global default) so that constructing more
// than one Server in the same process, as tests do, never panics on a
// duplicate registration.
type Metrics struct {
	registry   *prometheus.Registry
	toolCalls  *prometheus.CounterVec
	toolErrors *prometheus.CounterVec
}

// NewMetrics builds a fresh registry and registers the coordination
// server's collectors against it.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_tool_calls_total",
			Help: "Total tool calls handled by the coordination server, by tool name.",
		}, []string{"tool"}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_tool_errors_total",
			Help: "Total tool calls that returned isError, by tool name.",
		}, []string{"tool"}),
	}
	m.registry.MustRegister(m.toolCalls, m.toolErrors)
	return m
}
