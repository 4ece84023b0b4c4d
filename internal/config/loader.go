// Package config loads gostratus runtime configuration.
//
// Precedence, highest first:
//  1. Runtime overrides passed to Load
//  2. GOSTRATUS_* environment variables
//  3. Config file (gostratus.yaml in cwd or $GOSTRATUS_CONFIG)
//  4. Built-in defaults
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the root runtime configuration.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Data        DataConfig        `mapstructure:"data"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Profile is STRUCTURED (JSON) or CONSOLE.
	Profile string `mapstructure:"profile"`
}

// DataConfig controls on-disk state.
type DataConfig struct {
	// Dir is the root for the run registry and default output files.
	Dir string `mapstructure:"dir"`
}

// ConcurrencyConfig carries host-level concurrency defaults that a
// manifest can override per run.
type ConcurrencyConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	MaxParallelism int           `mapstructure:"max_parallelism"`
	MemoryLimitMB  int           `mapstructure:"memory_limit_mb"`
}

// TelemetryConfig controls the resource monitor.
type TelemetryConfig struct {
	RefreshWindow     time.Duration `mapstructure:"refresh_window"`
	ForceRefreshEvery time.Duration `mapstructure:"force_refresh_every"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envBindings maps config keys to GOSTRATUS_* environment variables.
var envBindings = map[string]string{
	"logging.level":                 "GOSTRATUS_LOG_LEVEL",
	"logging.profile":               "GOSTRATUS_LOG_PROFILE",
	"data.dir":                      "GOSTRATUS_DATA_DIR",
	"concurrency.interval":          "GOSTRATUS_INTERVAL",
	"concurrency.max_parallelism":   "GOSTRATUS_MAX_PARALLELISM",
	"concurrency.memory_limit_mb":   "GOSTRATUS_MEMORY_LIMIT_MB",
	"telemetry.refresh_window":      "GOSTRATUS_REFRESH_WINDOW",
	"telemetry.force_refresh_every": "GOSTRATUS_FORCE_REFRESH_EVERY",
}

// Load builds the configuration and caches it for GetConfig.
//
// Optional runtime overrides take precedence over environment variables
// and the config file. Load may be called again to reload.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	for key, envVar := range envBindings {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", envVar, err)
		}
	}

	if path := configFilePath(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// Set has the highest precedence in viper, which keeps runtime
	// overrides above env vars and the config file.
	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil if
// Load has not been called.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func applyOverrides(v *viper.Viper, prefix string, values map[string]any) {
	for key, value := range values {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			applyOverrides(v, full, nested)
			continue
		}
		v.Set(full, value)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")
	v.SetDefault("data.dir", defaultDataDir())
	v.SetDefault("concurrency.interval", "5m")
	v.SetDefault("concurrency.max_parallelism", 0)
	v.SetDefault("concurrency.memory_limit_mb", 0)
	v.SetDefault("telemetry.refresh_window", "10m")
	v.SetDefault("telemetry.force_refresh_every", "30s")
}

func defaultDataDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return base + "/gostratus"
	}
	return ".gostratus"
}

// configFilePath returns the config file to load, or "" when none applies.
func configFilePath() string {
	if path := strings.TrimSpace(os.Getenv("GOSTRATUS_CONFIG")); path != "" {
		return path
	}
	if _, err := os.Stat("gostratus.yaml"); err == nil {
		return "gostratus.yaml"
	}
	return ""
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch strings.ToUpper(c.Logging.Profile) {
	case "STRUCTURED", "CONSOLE":
	default:
		return fmt.Errorf("invalid logging.profile %q", c.Logging.Profile)
	}
	if c.Concurrency.MaxParallelism < 0 {
		return fmt.Errorf("concurrency.max_parallelism must be >= 0")
	}
	if c.Concurrency.MemoryLimitMB < 0 {
		return fmt.Errorf("concurrency.memory_limit_mb must be >= 0")
	}
	return nil
}
