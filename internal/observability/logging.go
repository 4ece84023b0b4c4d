// Package observability provides application logging.
//
// Two profiles are supported: STRUCTURED emits JSON suitable for log
// aggregation, CONSOLE emits human-readable output for interactive use.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger used by CLI commands.
//
// It defaults to a console logger at info level writing to stderr, so
// commands can log before configuration is loaded. Init replaces it
// with the configured logger.
var CLILogger = mustConsoleLogger()

// Init builds the configured logger and installs it as CLILogger.
func Init(level, profile string) error {
	logger, err := NewLogger(level, profile)
	if err != nil {
		return err
	}
	CLILogger = logger
	return nil
}

// NewLogger builds a zap logger for the given level and profile.
//
// Level is one of debug, info, warn, error. Profile is STRUCTURED or
// CONSOLE. Output goes to stderr so record streams on stdout stay clean.
func NewLogger(level, profile string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var encoder zapcore.Encoder
	switch strings.ToUpper(profile) {
	case "STRUCTURED":
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	case "CONSOLE":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("invalid log profile %q", profile)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapLevel)
	return zap.New(core), nil
}

func mustConsoleLogger() *zap.Logger {
	logger, err := NewLogger("info", "CONSOLE")
	if err != nil {
		panic(err)
	}
	return logger
}
