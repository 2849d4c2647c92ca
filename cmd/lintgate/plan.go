package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/lintgate/internal/executor"
	"github.com/hochfrequenz/lintgate/internal/validation"
)

var planJSON bool

func init() {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the execution plan derived from tool dependencies",
		RunE:  runPlan,
	}
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
	rootCmd.AddCommand(planCmd)
}

type planOutput struct {
	Levels     []executor.PlanLevel `json:"levels"`
	Statistics executor.Statistics  `json:"statistics"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	eng, err := a.engine()
	if err != nil {
		return err
	}
	ex := eng.Executor(validation.Options{})
	out := cmd.OutOrStdout()

	if planJSON {
		levels, err := ex.ExecutionPlan()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(planOutput{Levels: levels, Statistics: ex.Statistics()})
	}

	fmt.Fprint(out, ex.VisualizeDependencies())
	stats := ex.Statistics()
	fmt.Fprintf(out, "\n%d tools in %d levels, up to %d in parallel (estimated speedup %.1fx, %d workers)\n",
		stats.TotalTools, stats.TotalLevels, stats.MaxParallelism, stats.EstimatedSpeedup, ex.Config().MaxWorkers)
	return nil
}
