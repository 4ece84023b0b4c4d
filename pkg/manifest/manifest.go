// Package manifest provides loading and validation of gostratus pipeline
// manifests.
//
// A pipeline manifest is a YAML or JSON file that configures one
// validation run: which stages are enabled, the concurrency tunables the
// capacity controller honors, forecasting constants, and output.
//
// Manifests are validated against a JSON Schema to ensure correctness
// before execution. The schema enforces strict typing and disallows
// unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	stages:
//	  geometry: false
//	concurrency:
//	  auto_balance: true
//	  interval: 1m
//	  max_parallelism: 16
//	forecast:
//	  seeds:
//	    tables: 90s
//	output:
//	  destination: stdout
//	  progress: true
package manifest

import "time"

// Defaults for optional manifest fields.
const (
	DefaultVersion       = "1.0"
	DefaultInterval      = Duration(5 * time.Minute)
	DefaultAlpha         = 0.3
	DefaultDestination   = "stdout"
	DefaultProgress      = true
	DefaultMinParallel   = 1
	DefaultMemoryLimitMB = 0 // disabled
)

// StageNames maps manifest stage keys to stage numbers, in stage order.
var StageNames = []string{"format", "tables", "geometry", "attributes", "relations", "metadata"}

// Manifest represents a validated pipeline manifest.
//
// Required fields are Version only; every section is optional with
// defaults matching an enable-everything run on the local host.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Stages toggles individual pipeline stages. Omitted stages default
	// to enabled.
	Stages StagesConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// Concurrency configures the capacity controller (optional).
	Concurrency ConcurrencyConfig `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// Forecast configures the remaining-time estimator (optional).
	Forecast ForecastConfig `json:"forecast,omitempty" yaml:"forecast,omitempty"`

	// Output configures output destination and format (optional).
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// StagesConfig toggles pipeline stages by name. Nil means enabled.
type StagesConfig struct {
	Format     *bool `json:"format,omitempty" yaml:"format,omitempty"`
	Tables     *bool `json:"tables,omitempty" yaml:"tables,omitempty"`
	Geometry   *bool `json:"geometry,omitempty" yaml:"geometry,omitempty"`
	Attributes *bool `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Relations  *bool `json:"relations,omitempty" yaml:"relations,omitempty"`
	Metadata   *bool `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Enabled returns the per-stage enable flags in stage-number order.
func (s StagesConfig) Enabled() [6]bool {
	flags := [6]bool{}
	for i, ptr := range []*bool{s.Format, s.Tables, s.Geometry, s.Attributes, s.Relations, s.Metadata} {
		if ptr == nil {
			flags[i] = true
		} else {
			flags[i] = *ptr
		}
	}
	return flags
}

// ConcurrencyConfig configures the capacity controller.
type ConcurrencyConfig struct {
	// AutoBalance enables load-reactive pool resizing. Nil means true.
	AutoBalance *bool `json:"auto_balance,omitempty" yaml:"auto_balance,omitempty"`

	// Interval is the control loop tick, clamped to [10s, 5m] at
	// construction. Default: 5m.
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// MinParallelism and MaxParallelism bound every pool's capacity.
	// Zero MaxParallelism means derive from the host at startup.
	MinParallelism int `json:"min_parallelism,omitempty" yaml:"min_parallelism,omitempty"`
	MaxParallelism int `json:"max_parallelism,omitempty" yaml:"max_parallelism,omitempty"`

	// MemoryLimitMB triggers the emergency capacity clamp when process
	// memory exceeds it. Zero disables the check.
	MemoryLimitMB int `json:"memory_limit_mb,omitempty" yaml:"memory_limit_mb,omitempty"`

	// DisabledLevels lists capacity levels that admit work ungated.
	// Valid values: file, stage, table, rule.
	DisabledLevels []string `json:"disabled_levels,omitempty" yaml:"disabled_levels,omitempty"`
}

// AutoBalanceEnabled returns the configured value, defaulting to true.
func (c ConcurrencyConfig) AutoBalanceEnabled() bool {
	if c.AutoBalance == nil {
		return true
	}
	return *c.AutoBalance
}

// ForecastConfig configures the remaining-time estimator.
type ForecastConfig struct {
	// Alpha is the EWMA smoothing factor in (0, 1]. Default: 0.3.
	Alpha float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`

	// Seeds maps stage names to historical durations used as fallback
	// predictions before live samples exist.
	Seeds map[string]Duration `json:"seeds,omitempty" yaml:"seeds,omitempty"`
}

// SeedsByNumber converts named seeds to stage-number keys. Unknown stage
// names were already rejected by schema validation.
func (f ForecastConfig) SeedsByNumber() map[int]time.Duration {
	if len(f.Seeds) == 0 {
		return nil
	}
	out := make(map[int]time.Duration, len(f.Seeds))
	for name, d := range f.Seeds {
		for i, known := range StageNames {
			if name == known {
				out[i] = time.Duration(d)
			}
		}
	}
	return out
}

// OutputConfig configures output destination and format.
type OutputConfig struct {
	// Destination is "stdout", "stderr", or a file path.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Progress controls whether progress records are emitted. Nil means
	// true.
	Progress *bool `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// ProgressEnabled returns whether progress records should be emitted.
func (o *OutputConfig) ProgressEnabled() bool {
	if o.Progress == nil {
		return DefaultProgress
	}
	return *o.Progress
}

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest so
// callers don't need to reason about zero values.
func (m *Manifest) ApplyDefaults() {
	if m.Concurrency.Interval == 0 {
		m.Concurrency.Interval = DefaultInterval
	}
	if m.Concurrency.MinParallelism == 0 {
		m.Concurrency.MinParallelism = DefaultMinParallel
	}
	if m.Forecast.Alpha == 0 {
		m.Forecast.Alpha = DefaultAlpha
	}
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
	if m.Output.Progress == nil {
		defaultProgress := DefaultProgress
		m.Output.Progress = &defaultProgress
	}
}
