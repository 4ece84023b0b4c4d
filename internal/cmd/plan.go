package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/manifest"
	"github.com/3leaps/gostratus/pkg/pipeline"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate a manifest and show the run plan",
	Long: `Validate a pipeline manifest and show what a run would execute:
enabled stages with their dependencies, concurrency settings, and output.

Example:
  gostratus plan --job pipeline.yaml`,
	RunE: runPlan,
}

var planJobPath string

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&planJobPath, "job", "j", "", "Path to pipeline manifest (required)")

	_ = planCmd.MarkFlagRequired("job")
}

func runPlan(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(planJobPath)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", planJobPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	showPlan(m)
	return nil
}

// showPlan displays what would run without executing.
func showPlan(m *manifest.Manifest) {
	enabled := m.Stages.Enabled()

	fmt.Println("=== Pipeline Plan ===")
	fmt.Println()
	fmt.Println("Stages:")
	for _, desc := range pipeline.Topology() {
		status := "enabled"
		if !enabled[desc.Number] {
			status = "disabled"
		}
		dep := ""
		if desc.DependsOn != pipeline.NoDependency {
			dep = fmt.Sprintf("  (after stage %d", desc.DependsOn)
			if desc.FallbackDep != pipeline.NoDependency {
				dep += fmt.Sprintf(", falls back to stage %d", desc.FallbackDep)
			}
			dep += ")"
		}
		fmt.Printf("  %d. %-12s %s%s\n", desc.Number, desc.Label, status, dep)
	}
	fmt.Println()

	fmt.Printf("Auto-balance:    %v\n", m.Concurrency.AutoBalanceEnabled())
	fmt.Printf("Interval:        %s\n", m.Concurrency.Interval)
	fmt.Printf("Parallelism:     min=%d max=%d (host has %d processors)\n",
		m.Concurrency.MinParallelism, m.Concurrency.MaxParallelism, runtime.NumCPU())
	if m.Concurrency.MemoryLimitMB > 0 {
		fmt.Printf("Memory limit:    %d MiB\n", m.Concurrency.MemoryLimitMB)
	}
	if len(m.Concurrency.DisabledLevels) > 0 {
		fmt.Printf("Ungated levels:  %v\n", m.Concurrency.DisabledLevels)
	}
	fmt.Println()

	fmt.Printf("Forecast alpha:  %.2f\n", m.Forecast.Alpha)
	if seeds := m.Forecast.SeedsByNumber(); len(seeds) > 0 {
		fmt.Println("Forecast seeds:")
		for _, desc := range pipeline.Topology() {
			if d, ok := seeds[desc.Number]; ok {
				fmt.Printf("  %-12s %s\n", desc.Label, d)
			}
		}
	}
	fmt.Println()

	fmt.Printf("Output:          %s\n", m.Output.Destination)
	fmt.Printf("Progress:        %v\n", m.Output.ProgressEnabled())
	fmt.Println()
	fmt.Println("Manifest validated successfully.")
}
