package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/capacity"
	"github.com/3leaps/gostratus/pkg/telemetry"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Sample host resources and show derived pool capacities",
	Long: `Probe the host's CPU and memory, classify its load level, and show
the worker pool capacities a run would start with.

Example:
  gostratus probe
  gostratus probe --json`,
	RunE: runProbe,
}

var probeJSON bool

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "Emit the snapshot as JSON")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sampler := telemetry.NewSystemSampler()
	snap, err := sampler.Probe(ctx)
	if err != nil {
		observability.CLILogger.Error("Telemetry probe failed", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Telemetry probe failed", err)
	}

	if probeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Println("=== Host Snapshot ===")
	fmt.Println()
	fmt.Printf("Processors:       %d\n", snap.Processors)
	fmt.Printf("CPU:              %.1f%%\n", snap.CPUPercent)
	fmt.Printf("Memory:           %s available of %s (pressure %.2f)\n",
		formatBytes(snap.MemoryAvailable), formatBytes(snap.MemoryTotal), snap.MemoryPressure)
	if snap.ProcessRSS > 0 {
		fmt.Printf("Process RSS:      %s\n", formatBytes(snap.ProcessRSS))
	}
	fmt.Printf("Load level:       %s\n", snap.Load)
	fmt.Printf("Max parallelism:  %d\n", snap.MaxParallelism)
	fmt.Printf("Batch size:       %d\n", snap.BatchSize)
	fmt.Println()

	fmt.Println("Initial pool capacities:")
	monitor := telemetry.NewMonitor(sampler, telemetry.Config{}, observability.CLILogger)
	ctrl := capacity.NewController(ctx, monitor, capacity.DefaultConfig(), observability.CLILogger)
	defer ctrl.Stop()
	for _, pool := range ctrl.Pools() {
		fmt.Printf("  %-12s %d\n", pool.Name(), pool.Capacity())
	}

	return nil
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
