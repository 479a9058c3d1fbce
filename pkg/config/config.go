// Package config loads trendscope configuration from a YAML file, TRENDSCOPE_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPort         = errors.New("invalid server port")
	ErrInvalidMaxPoints    = errors.New("condense max points must not be negative")
	ErrInvalidHighlight    = errors.New("highlight width must be positive")
	ErrInvalidCacheBackend = errors.New("unknown cache backend")
	ErrMissingCacheAddr    = errors.New("redis cache requires an address")
	ErrInvalidSize         = errors.New("invalid byte size")
	ErrInvalidSampleRatio  = errors.New("sample ratio must be within [0, 1]")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrMissingSource       = errors.New("dataset source is empty")
)

const (
	maxPort    = 65535
	envPrefix  = "TRENDSCOPE"
	configName = ".trendscope"
)

// Config holds all trendscope configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Condense  CondenseConfig  `mapstructure:"condense"`
	UI        UIConfig        `mapstructure:"ui"`
	Links     LinksConfig     `mapstructure:"links"`
	Cache     CacheConfig     `mapstructure:"cache"`
	S3        S3Config        `mapstructure:"s3"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	MaxSessions     int           `mapstructure:"max_sessions"`
}

// Addr is host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatasetConfig locates the dataset and its detail blobs.
type DatasetConfig struct {
	// Source is a file path, http(s) URL or s3://bucket/key.
	Source string `mapstructure:"source"`
	// DetailBase is where per-key detail blobs live; empty means next to
	// Source.
	DetailBase string `mapstructure:"detail_base"`
	MaxBytes   string `mapstructure:"max_bytes"`
}

// MaxBytesValue parses MaxBytes ("256MiB", "1GB").
func (d DatasetConfig) MaxBytesValue() (int64, error) {
	return parseSize(d.MaxBytes)
}

// CondenseConfig holds the default condensing options.
type CondenseConfig struct {
	MaxPoints   int  `mapstructure:"max_points"`
	EvenSpacing bool `mapstructure:"even_spacing"`
}

// UIConfig holds interaction geometry and the initial metric.
type UIConfig struct {
	HighlightWidth float64 `mapstructure:"highlight_width"`
	TooltipOffset  float64 `mapstructure:"tooltip_offset"`
	DefaultMetric  string  `mapstructure:"default_metric"`
}

// LinksConfig holds commit and range URL templates. {rev}, {from} and {to}
// are substituted.
type LinksConfig struct {
	CommitURL string `mapstructure:"commit_url"`
	RangeURL  string `mapstructure:"range_url"`
}

// CacheConfig configures the condensed series cache.
type CacheConfig struct {
	Backend  string        `mapstructure:"backend"`
	Addr     string        `mapstructure:"addr"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	Compress bool          `mapstructure:"compress"`
	MaxSize  string        `mapstructure:"max_size"`
}

// MaxSizeValue parses MaxSize.
func (c CacheConfig) MaxSizeValue() (int64, error) {
	return parseSize(c.MaxSize)
}

// S3Config configures s3:// dataset sources.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Environment  string  `mapstructure:"environment"`
	Prometheus   bool    `mapstructure:"prometheus"`
}

// LoadConfig loads configuration. An explicit path must exist; without one,
// .trendscope.yaml is searched in the working directory and $HOME, and a
// missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config

	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config

	// Defaults always decode.
	_ = v.Unmarshal(&cfg)

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.idle_timeout", DefaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.session_ttl", DefaultSessionTTL)
	v.SetDefault("server.max_sessions", DefaultMaxSessions)

	v.SetDefault("dataset.source", DefaultDatasetSource)
	v.SetDefault("dataset.detail_base", "")
	v.SetDefault("dataset.max_bytes", DefaultMaxBytes)

	v.SetDefault("condense.max_points", DefaultMaxPoints)
	v.SetDefault("condense.even_spacing", DefaultEvenSpacing)

	v.SetDefault("ui.highlight_width", DefaultHighlightWidth)
	v.SetDefault("ui.tooltip_offset", DefaultTooltipOffset)
	v.SetDefault("ui.default_metric", "")

	v.SetDefault("links.commit_url", "")
	v.SetDefault("links.range_url", "")

	v.SetDefault("cache.backend", DefaultCacheBackend)
	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.prefix", DefaultCachePrefix)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.compress", true)
	v.SetDefault("cache.max_size", DefaultCacheMaxSize)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.json", false)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_headers", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_ratio", 0.0)
	v.SetDefault("telemetry.environment", "")
	v.SetDefault("telemetry.prometheus", true)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}

	if strings.TrimSpace(c.Dataset.Source) == "" {
		return ErrMissingSource
	}

	if _, err := c.Dataset.MaxBytesValue(); err != nil {
		return fmt.Errorf("dataset.max_bytes: %w", err)
	}

	if c.Condense.MaxPoints < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxPoints, c.Condense.MaxPoints)
	}

	if c.UI.HighlightWidth <= 0 {
		return fmt.Errorf("%w: %g", ErrInvalidHighlight, c.UI.HighlightWidth)
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.Addr == "" {
			return ErrMissingCacheAddr
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCacheBackend, c.Cache.Backend)
	}

	if _, err := c.Cache.MaxSizeValue(); err != nil {
		return fmt.Errorf("cache.max_size: %w", err)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return nil
}

func parseSize(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, raw)
	}

	return int64(n), nil
}
