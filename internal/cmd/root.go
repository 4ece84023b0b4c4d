// Package cmd implements the gostratus CLI.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gostratus/internal/config"
	"github.com/3leaps/gostratus/internal/observability"
)

// versionInfo holds build-time version metadata injected via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	rootLogLevel   string
	rootLogProfile string
)

var rootCmd = &cobra.Command{
	Use:   "gostratus",
	Short: "Adaptive concurrency scheduler for validation pipelines",
	Long: `gostratus schedules multi-stage data validation pipelines with
load-reactive concurrency control.

It sizes worker pools from host telemetry, rebalances them as CPU and
memory conditions change, and forecasts remaining run time from live
progress.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if rootLogLevel != "" {
			overrides["logging"] = map[string]any{"level": rootLogLevel}
		}
		if rootLogProfile != "" {
			logging, _ := overrides["logging"].(map[string]any)
			if logging == nil {
				logging = map[string]any{}
			}
			logging["profile"] = rootLogProfile
			overrides["logging"] = logging
		}

		cfg, err := config.Load(cmd.Context(), overrides)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
		}
		return observability.Init(cfg.Logging.Level, cfg.Logging.Profile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&rootLogProfile, "log-profile", "", "Log profile (STRUCTURED|CONSOLE)")
}

// Execute runs the root command and exits with the error's code on failure.
func Execute() {
	rootCmd.Version = versionInfo.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("gostratus %s (commit %s, built %s)\n",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate))

	if err := rootCmd.Execute(); err != nil {
		observability.CLILogger.Error("Command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)

		var coded *codedError
		if errors.As(err, &coded) {
			os.Exit(coded.code)
		}
		os.Exit(1)
	}
}
