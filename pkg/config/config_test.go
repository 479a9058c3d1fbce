package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/trendscope/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "trendscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, config.DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, config.DefaultSessionTTL, cfg.Server.SessionTTL)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, config.DefaultDatasetSource, cfg.Dataset.Source)
	assert.Equal(t, config.DefaultMaxPoints, cfg.Condense.MaxPoints)
	assert.False(t, cfg.Condense.EvenSpacing)
	assert.InDelta(t, config.DefaultHighlightWidth, cfg.UI.HighlightWidth, 0)
	assert.InDelta(t, config.DefaultTooltipOffset, cfg.UI.TooltipOffset, 0)
	assert.Equal(t, config.CacheMemory, cfg.Cache.Backend)
	assert.True(t, cfg.Cache.Compress)
	assert.True(t, cfg.Telemetry.Prometheus)

	maxBytes, err := cfg.Dataset.MaxBytesValue()
	require.NoError(t, err)
	assert.Equal(t, int64(256<<20), maxBytes)

	assert.Equal(t, *config.Default(), *cfg)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
dataset:
  source: https://perf.example.org/data.json
  max_bytes: 1GB
condense:
  max_points: 0
  even_spacing: true
ui:
  highlight_width: 250
  default_metric: build-size
links:
  commit_url: https://git.example.org/commit/{rev}
  range_url: https://git.example.org/compare/{from}...{to}
cache:
  backend: redis
  addr: localhost:6379
  ttl: 10m
logging:
  level: debug
  json: true
telemetry:
  otlp_endpoint: localhost:4317
  sample_ratio: 0.25
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "https://perf.example.org/data.json", cfg.Dataset.Source)
	assert.Zero(t, cfg.Condense.MaxPoints, "zero disables condensing")
	assert.True(t, cfg.Condense.EvenSpacing)
	assert.InDelta(t, 250.0, cfg.UI.HighlightWidth, 0)
	assert.Equal(t, "build-size", cfg.UI.DefaultMetric)
	assert.Equal(t, "https://git.example.org/commit/{rev}", cfg.Links.CommitURL)
	assert.Equal(t, config.CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Logging.JSON)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)

	maxBytes, err := cfg.Dataset.MaxBytesValue()
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), maxBytes)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TRENDSCOPE_SERVER_PORT", "7070")
	t.Setenv("TRENDSCOPE_CONDENSE_MAX_POINTS", "40")
	t.Setenv("TRENDSCOPE_CACHE_TTL", "90s")

	cfg, err := config.LoadConfig(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port, "environment beats the file")
	assert.Equal(t, 40, cfg.Condense.MaxPoints)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
}

func TestLoadConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.LoadConfig("")
	require.NoError(t, err, "no file found is not an error")
	assert.Equal(t, config.DefaultPort, cfg.Server.Port)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".trendscope.yaml"), []byte("server:\n  port: 8181\n"), 0o600))

	cfg, err = config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestLoadConfig_ExplicitPathMissing(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"port", "server:\n  port: 70000\n", config.ErrInvalidPort},
		{"source", "dataset:\n  source: ' '\n", config.ErrMissingSource},
		{"max bytes", "dataset:\n  max_bytes: lots\n", config.ErrInvalidSize},
		{"max points", "condense:\n  max_points: -1\n", config.ErrInvalidMaxPoints},
		{"highlight", "ui:\n  highlight_width: 0\n", config.ErrInvalidHighlight},
		{"backend", "cache:\n  backend: memcached\n", config.ErrInvalidCacheBackend},
		{"redis addr", "cache:\n  backend: redis\n", config.ErrMissingCacheAddr},
		{"cache size", "cache:\n  max_size: huge\n", config.ErrInvalidSize},
		{"ratio", "telemetry:\n  sample_ratio: 1.5\n", config.ErrInvalidSampleRatio},
		{"log level", "logging:\n  level: chatty\n", config.ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}
