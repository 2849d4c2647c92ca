package domain

import "time"

// ToolSpec is the static dependency declaration for one tool
type ToolSpec struct {
	Name      string   `json:"name" yaml:"name"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on"`
}

// DependencyMap turns specs into the tool -> dependencies map the scheduler
// is built from. A later spec with the same name replaces an earlier one.
func DependencyMap(specs []ToolSpec) map[string][]string {
	deps := make(map[string][]string, len(specs))
	for _, spec := range specs {
		deps[spec.Name] = append([]string(nil), spec.DependsOn...)
	}
	return deps
}

// ToolResult is the outcome of one tool invocation. It is created once per
// tool per run and not mutated after being returned by the executor.
type ToolResult struct {
	ToolName     string         `json:"tool_name"`
	Success      bool           `json:"success"`
	DurationSecs float64        `json:"duration"`
	Errors       int            `json:"errors"`
	Warnings     int            `json:"warnings"`
	Output       string         `json:"output,omitempty"`
	Status       ToolStatus     `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SkippedResult builds the result for a tool that was never invoked
func SkippedResult(name, reason string) ToolResult {
	return ToolResult{
		ToolName:     name,
		Status:       ToolSkipped,
		ErrorMessage: reason,
	}
}

// ResultsSummary aggregates counts over a set of tool results
type ResultsSummary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	TimedOut int `json:"timed_out"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Summarize counts statuses, errors and warnings
func Summarize(results []ToolResult) ResultsSummary {
	s := ResultsSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case ToolSuccess:
			s.Passed++
		case ToolFailed:
			s.Failed++
		case ToolSkipped:
			s.Skipped++
		case ToolTimeout:
			s.TimedOut++
		}
		s.Errors += r.Errors
		s.Warnings += r.Warnings
	}
	return s
}

// ResultsFile is the detailed per-tool record written to results/{run_id}_results.json
type ResultsFile struct {
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Files     []string       `json:"files"`
	Success   bool           `json:"success"`
	Results   []ToolResult   `json:"results"`
	Summary   ResultsSummary `json:"summary"`
}
