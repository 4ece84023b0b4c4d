package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/config"
	"github.com/3leaps/gostratus/internal/observability"
	"github.com/3leaps/gostratus/pkg/runstate"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List tracked pipeline runs",
	Long: `List pipeline runs recorded in the local run registry, newest first.

Example:
  gostratus runs
  gostratus runs --json
  gostratus runs show <run-id>`,
	RunE: runRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsJSON bool

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "Emit records as JSON")
}

func runsStore() *runstate.Store {
	cfg := config.GetConfig()
	return runstate.NewStore(filepath.Join(cfg.Data.Dir, "runs"))
}

func runRuns(cmd *cobra.Command, args []string) error {
	store := runsStore()

	records, err := store.List()
	if err != nil {
		observability.CLILogger.Error("Failed to list runs", zap.Error(err))
		return exitError(foundry.ExitFileReadError, "Failed to list runs", err)
	}

	if runsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-20s  %s\n", "RUN ID", "STATE", "STARTED", "NAME")
	for _, r := range records {
		started := ""
		if r.StartedAt != nil {
			started = r.StartedAt.Format(time.RFC3339)
		}
		fmt.Printf("%-36s  %-10s  %-20s  %s\n", r.RunID, r.State, started, r.Name)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store := runsStore()

	record, err := store.Get(args[0])
	if err != nil {
		observability.CLILogger.Error("Failed to load run",
			zap.String("run_id", args[0]),
			zap.Error(err))
		return exitError(foundry.ExitFileReadError, "Run not found", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
