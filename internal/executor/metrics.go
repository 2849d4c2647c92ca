package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

var (
	// toolExecutions counts tool results by tool and terminal status
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lintgate_tool_executions_total",
		Help: "Tool executions by tool and terminal status",
	}, []string{"tool", "status"})

	// toolDuration tracks wall-clock time of executed tools
	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lintgate_tool_duration_seconds",
		Help:    "Tool execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"tool"})
)

func recordToolMetrics(res domain.ToolResult) {
	toolExecutions.WithLabelValues(res.ToolName, string(res.Status)).Inc()
	if res.Status != domain.ToolSkipped {
		toolDuration.WithLabelValues(res.ToolName).Observe(res.DurationSecs)
	}
}
