package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validManifestYAML returns a minimal valid manifest in YAML format.
func validManifestYAML() string {
	return `version: "1.0"
`
}

// validManifestJSON returns a minimal valid manifest in JSON format.
func validManifestJSON() string {
	return `{
  "version": "1.0"
}`
}

// fullManifestYAML returns a complete manifest with all optional fields.
func fullManifestYAML() string {
	return `$schema: https://schemas.3leaps.dev/gostratus/v1.0.0/pipeline-manifest.schema.json
version: "1.0"
stages:
  geometry: false
  attributes: false
concurrency:
  auto_balance: true
  interval: 1m
  min_parallelism: 2
  max_parallelism: 16
  memory_limit_mb: 2048
  disabled_levels:
    - file
forecast:
  alpha: 0.5
  seeds:
    tables: 90s
    geometry: 2m30s
output:
  destination: file:/tmp/run.jsonl
  progress: false
`
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		filename    string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, m *Manifest)
	}{
		{
			name:     "valid minimal YAML manifest",
			content:  validManifestYAML(),
			filename: "manifest.yaml",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "1.0", m.Version)
				// Check defaults were applied
				assert.Equal(t, DefaultInterval, m.Concurrency.Interval)
				assert.Equal(t, DefaultMinParallel, m.Concurrency.MinParallelism)
				assert.InDelta(t, DefaultAlpha, m.Forecast.Alpha, 0.001)
				assert.Equal(t, DefaultDestination, m.Output.Destination)
				assert.True(t, m.Output.ProgressEnabled())
				assert.True(t, m.Concurrency.AutoBalanceEnabled())
				assert.Equal(t, [6]bool{true, true, true, true, true, true}, m.Stages.Enabled())
			},
		},
		{
			name:     "valid JSON manifest",
			content:  validManifestJSON(),
			filename: "manifest.json",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "1.0", m.Version)
			},
		},
		{
			name:     "full manifest with all options",
			content:  fullManifestYAML(),
			filename: "full.yaml",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "https://schemas.3leaps.dev/gostratus/v1.0.0/pipeline-manifest.schema.json", m.Schema)
				// Stages
				assert.Equal(t, [6]bool{true, true, false, false, true, true}, m.Stages.Enabled())
				// Concurrency
				assert.True(t, m.Concurrency.AutoBalanceEnabled())
				assert.Equal(t, time.Minute, m.Concurrency.Interval.Duration())
				assert.Equal(t, 2, m.Concurrency.MinParallelism)
				assert.Equal(t, 16, m.Concurrency.MaxParallelism)
				assert.Equal(t, 2048, m.Concurrency.MemoryLimitMB)
				assert.Equal(t, []string{"file"}, m.Concurrency.DisabledLevels)
				// Forecast
				assert.InDelta(t, 0.5, m.Forecast.Alpha, 0.001)
				seeds := m.Forecast.SeedsByNumber()
				assert.Equal(t, 90*time.Second, seeds[1])
				assert.Equal(t, 2*time.Minute+30*time.Second, seeds[2])
				// Output
				assert.Equal(t, "file:/tmp/run.jsonl", m.Output.Destination)
				assert.False(t, m.Output.ProgressEnabled())
			},
		},
		{
			name:     "yml extension works",
			content:  validManifestYAML(),
			filename: "manifest.yml",
		},
		{
			name:        "empty file",
			content:     "",
			filename:    "empty.yaml",
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "invalid YAML syntax",
			content:     "version: [invalid yaml",
			filename:    "bad.yaml",
			wantErr:     true,
			errContains: "invalid YAML",
		},
		{
			name:        "invalid JSON syntax",
			content:     `{"version": "1.0"`,
			filename:    "bad.json",
			wantErr:     true,
			errContains: "invalid JSON",
		},
		{
			name: "missing version",
			content: `stages:
  format: true
`,
			filename:    "no-version.yaml",
			wantErr:     true,
			errContains: "version",
		},
		{
			name: "wrong version",
			content: `version: "2.0"
`,
			filename:    "wrong-version.yaml",
			wantErr:     true,
			errContains: "version",
		},
		{
			name: "unknown top-level field rejected",
			content: `version: "1.0"
crawl:
  concurrency: 8
`,
			filename:    "unknown-field.yaml",
			wantErr:     true,
			errContains: "crawl",
		},
		{
			name: "unknown stage name rejected",
			content: `version: "1.0"
stages:
  topology: true
`,
			filename:    "unknown-stage.yaml",
			wantErr:     true,
			errContains: "topology",
		},
		{
			name: "invalid duration string",
			content: `version: "1.0"
concurrency:
  interval: soon
`,
			filename: "bad-duration.yaml",
			wantErr:  true,
		},
		{
			name: "invalid disabled level",
			content: `version: "1.0"
concurrency:
  disabled_levels:
    - worker
`,
			filename: "bad-level.yaml",
			wantErr:  true,
		},
		{
			name: "alpha out of range",
			content: `version: "1.0"
forecast:
  alpha: 1.5
`,
			filename: "bad-alpha.yaml",
			wantErr:  true,
		},
		{
			name: "zero min_parallelism rejected",
			content: `version: "1.0"
concurrency:
  min_parallelism: 0
`,
			filename: "zero-min.yaml",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.filename)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			m, err := Load(path)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			require.NotNil(t, m)
			if tt.validate != nil {
				tt.validate(t, m)
			}
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestLoadFromBytes(t *testing.T) {
	t.Run("no extension tries YAML first", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestYAML()), "")
		require.NoError(t, err)
		assert.Equal(t, "1.0", m.Version)
	})

	t.Run("no extension falls back to JSON", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestJSON()), "")
		require.NoError(t, err)
		assert.Equal(t, "1.0", m.Version)
	})

	t.Run("validation failure is ValidationErrors", func(t *testing.T) {
		_, err := LoadFromBytes([]byte(`version: "1.0"
bogus: true
`), "m.yaml")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidationFailed))
	})
}

func TestLoadFromReader(t *testing.T) {
	m, err := LoadFromReader(strings.NewReader(validManifestYAML()), "manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, "1.0", m.Version)
}

func TestApplyDefaults(t *testing.T) {
	m := &Manifest{Version: "1.0"}
	m.ApplyDefaults()

	assert.Equal(t, DefaultInterval, m.Concurrency.Interval)
	assert.Equal(t, DefaultMinParallel, m.Concurrency.MinParallelism)
	assert.InDelta(t, DefaultAlpha, m.Forecast.Alpha, 0.001)
	assert.Equal(t, DefaultDestination, m.Output.Destination)
	require.NotNil(t, m.Output.Progress)
	assert.True(t, *m.Output.Progress)

	t.Run("explicit values preserved", func(t *testing.T) {
		off := false
		m := &Manifest{
			Version: "1.0",
			Concurrency: ConcurrencyConfig{
				Interval:       Duration(30 * time.Second),
				MinParallelism: 4,
			},
			Forecast: ForecastConfig{Alpha: 0.9},
			Output:   OutputConfig{Destination: "stderr", Progress: &off},
		}
		m.ApplyDefaults()
		assert.Equal(t, 30*time.Second, m.Concurrency.Interval.Duration())
		assert.Equal(t, 4, m.Concurrency.MinParallelism)
		assert.InDelta(t, 0.9, m.Forecast.Alpha, 0.001)
		assert.Equal(t, "stderr", m.Output.Destination)
		assert.False(t, m.Output.ProgressEnabled())
	})
}

func TestStagesEnabled(t *testing.T) {
	off := false
	on := true
	s := StagesConfig{Geometry: &off, Metadata: &on}
	assert.Equal(t, [6]bool{true, true, false, true, true, true}, s.Enabled())
}

func TestSeedsByNumber(t *testing.T) {
	f := ForecastConfig{Seeds: map[string]Duration{
		"format":   Duration(10 * time.Second),
		"metadata": Duration(time.Minute),
	}}
	seeds := f.SeedsByNumber()
	require.Len(t, seeds, 2)
	assert.Equal(t, 10*time.Second, seeds[0])
	assert.Equal(t, time.Minute, seeds[5])

	assert.Nil(t, ForecastConfig{}.SeedsByNumber())
}

func TestValidate(t *testing.T) {
	t.Run("valid struct passes", func(t *testing.T) {
		m := &Manifest{Version: "1.0"}
		assert.NoError(t, Validate(m))
	})

	t.Run("invalid version fails", func(t *testing.T) {
		m := &Manifest{Version: "0.9"}
		err := Validate(m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidationFailed))
	})
}

func TestValidationErrors(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{{Path: "/version", Message: "is required"}}
		assert.Equal(t, "/version: is required", errs.Error())
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Path: "/version", Message: "is required"},
			{Path: "/forecast/alpha", Message: "out of range"},
		}
		msg := errs.Error()
		assert.Contains(t, msg, "2 errors")
		assert.Contains(t, msg, "/version: is required")
		assert.Contains(t, msg, "/forecast/alpha: out of range")
	})

	t.Run("unwraps to sentinel", func(t *testing.T) {
		errs := ValidationErrors{{Message: "boom"}}
		assert.True(t, errors.Is(errs, ErrValidationFailed))
	})

	t.Run("error without path", func(t *testing.T) {
		e := ValidationError{Message: "bad manifest"}
		assert.Equal(t, "bad manifest", e.Error())
	})
}

func TestValidate_EmbeddedSchema(t *testing.T) {
	// The validator compiles from the embedded schema with no disk access.
	err := ValidateRaw([]byte(`{"version": "1.0"}`))
	assert.NoError(t, err)
}

func TestDuration(t *testing.T) {
	t.Run("yaml round trip", func(t *testing.T) {
		var d Duration
		require.NoError(t, d.UnmarshalJSON([]byte(`"2m30s"`)))
		assert.Equal(t, 2*time.Minute+30*time.Second, d.Duration())
		out, err := d.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, `"2m30s"`, string(out))
	})

	t.Run("rejects bare numbers", func(t *testing.T) {
		var d Duration
		assert.Error(t, d.UnmarshalJSON([]byte(`90`)))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		var d Duration
		err := d.UnmarshalJSON([]byte(`"soon"`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "soon")
	})
}
