package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/pollen-map/internal/render"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Empty(t, cfg.Input)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.Precompress)
	assert.Equal(t, render.DefaultEchartsMirrors, cfg.EchartsMirrors)
	assert.Equal(t, render.DefaultChinaMapMirrors, cfg.ChinaMapMirrors)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("POLLENMAP_INPUT", "data/pollen.csv")
	t.Setenv("POLLENMAP_OUTPUT_DIR", "public")
	t.Setenv("POLLENMAP_WORKERS", "8")
	t.Setenv("POLLENMAP_PRECOMPRESS", "true")
	t.Setenv("POLLENMAP_FROM", "2025-03-01")
	t.Setenv("POLLENMAP_TO", "2025-03-31")
	t.Setenv("POLLENMAP_HTTP_ADDR", ":9090")
	t.Setenv("POLLENMAP_LOG_LEVEL", "debug")
	t.Setenv("POLLENMAP_LOG_FORMAT", "json")
	t.Setenv("POLLENMAP_SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("POLLENMAP_KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("POLLENMAP_KAFKA_TOPIC", "pollen-snapshots")
	t.Setenv("POLLENMAP_MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("POLLENMAP_MAPBOX_TIMEOUT", "10s")
	t.Setenv("POLLENMAP_MAPBOX_CACHE_SIZE", "500")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "data/pollen.csv", cfg.Input)
	assert.Equal(t, "public", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Precompress)
	assert.Equal(t, "2025-03-01", cfg.From)
	assert.Equal(t, "2025-03-31", cfg.To)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollenmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input: rows.json
output_dir: site
workers: 2
echarts_mirrors:
  - https://mirror.example.com/echarts.min.js
`), 0o644))

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)

	assert.Equal(t, "rows.json", cfg.Input)
	assert.Equal(t, "site", cfg.OutputDir)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, []string{"https://mirror.example.com/echarts.min.js"}, cfg.EchartsMirrors)
	assert.Equal(t, render.DefaultChinaMapMirrors, cfg.ChinaMapMirrors)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollenmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: site\n"), 0o644))
	t.Setenv("POLLENMAP_OUTPUT_DIR", "from-env")

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.OutputDir)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("POLLENMAP_OUTPUT_DIR", "from-env")
	t.Setenv("POLLENMAP_WORKERS", "3")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output-dir", "output", "")
	flags.Int("workers", 4, "")
	flags.Bool("unrelated", false, "")
	require.NoError(t, flags.Parse([]string{"--output-dir", "from-flag"}))

	cfg, err := Load(Options{Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.OutputDir)
	assert.Equal(t, 3, cfg.Workers, "unset flags do not shadow env")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero workers", "POLLENMAP_WORKERS", "0"},
		{"bad log level", "POLLENMAP_LOG_LEVEL", "verbose"},
		{"bad log format", "POLLENMAP_LOG_FORMAT", "xml"},
		{"bad input format", "POLLENMAP_INPUT_FORMAT", "xlsx"},
		{"bad from date", "POLLENMAP_FROM", "03/01/2025"},
		{"bad mirror", "POLLENMAP_ECHARTS_MIRRORS", "not a url"},
		{"zero mapbox cache", "POLLENMAP_MAPBOX_CACHE_SIZE", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(Options{})
			assert.Error(t, err)
		})
	}
}

func TestLoad_ToBeforeFrom(t *testing.T) {
	t.Setenv("POLLENMAP_FROM", "2025-03-10")
	t.Setenv("POLLENMAP_TO", "2025-03-01")

	_, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before")
}

func TestKafkaEnabled_RequiresTopic(t *testing.T) {
	cfg := &Config{KafkaBrokers: []string{"localhost:9092"}}
	assert.False(t, cfg.KafkaEnabled())
	cfg.KafkaTopic = "pollen-snapshots"
	assert.True(t, cfg.KafkaEnabled())
}
