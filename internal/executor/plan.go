package executor

import (
	"fmt"
	"strings"
)

// PlanLevel is one parallel stage of the execution plan
type PlanLevel struct {
	Index int      `json:"index"`
	Tools []string `json:"tools"`
}

// Statistics summarizes the shape of the dependency graph
type Statistics struct {
	TotalTools       int     `json:"total_tools"`
	TotalLevels      int     `json:"total_levels"`
	MaxParallelism   int     `json:"max_parallelism"`
	AvgParallelism   float64 `json:"avg_parallelism"`
	EstimatedSpeedup float64 `json:"estimated_speedup"`
}

// ExecutionPlan returns the levels the executor will run
func (e *Executor) ExecutionPlan() ([]PlanLevel, error) {
	levels, err := e.sched.ExecutionOrder()
	if err != nil {
		return nil, err
	}
	plan := make([]PlanLevel, len(levels))
	for i, level := range levels {
		plan[i] = PlanLevel{Index: i, Tools: level}
	}
	return plan, nil
}

// VisualizeDependencies renders the plan and dependency edges as text
func (e *Executor) VisualizeDependencies() string {
	plan, err := e.ExecutionPlan()
	if err != nil {
		return fmt.Sprintf("invalid dependency graph: %v\n", err)
	}

	var b strings.Builder
	b.WriteString("Execution plan:\n")
	for _, level := range plan {
		fmt.Fprintf(&b, "  Level %d: %s\n", level.Index, strings.Join(level.Tools, ", "))
	}

	b.WriteString("\nDependencies:\n")
	for _, name := range e.sched.Tools() {
		deps := e.sched.Dependencies(name)
		if len(deps) == 0 {
			fmt.Fprintf(&b, "  %s (no dependencies)\n", name)
			continue
		}
		fmt.Fprintf(&b, "  %s <- %s\n", name, strings.Join(deps, ", "))
	}
	return b.String()
}

// Statistics reports tool/level counts and the ideal speedup over a serial run
func (e *Executor) Statistics() Statistics {
	plan, err := e.ExecutionPlan()
	if err != nil || len(plan) == 0 {
		return Statistics{}
	}

	stats := Statistics{TotalLevels: len(plan)}
	for _, level := range plan {
		n := len(level.Tools)
		stats.TotalTools += n
		stats.MaxParallelism = max(stats.MaxParallelism, n)
	}
	stats.AvgParallelism = float64(stats.TotalTools) / float64(stats.TotalLevels)
	stats.EstimatedSpeedup = float64(stats.TotalTools) / float64(stats.TotalLevels)
	return stats
}
