// Package commands implements the trendscope CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/trendscope/pkg/config"
	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/observability"
	"github.com/Sumatoshi-tech/trendscope/pkg/plot"
	"github.com/Sumatoshi-tech/trendscope/pkg/seriescache"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
	"github.com/Sumatoshi-tech/trendscope/pkg/version"
)

// fetchTimeout bounds one HTTP fetch of a dataset or detail blob.
const fetchTimeout = 60 * time.Second

// GlobalOptions are the persistent root flags shared by every subcommand.
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// Register adds the persistent flags to root.
func (o *GlobalOptions) Register(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&o.ConfigPath, "config", "c", "", "config file (default .trendscope.yaml in . or $HOME)")
	root.PersistentFlags().BoolVarP(&o.Verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&o.Quiet, "quiet", "q", false, "suppress output")
}

func (o *GlobalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// observabilityConfig maps the configuration and the verbosity flags onto
// observability settings. --verbose wins over --quiet.
func (o *GlobalOptions) observabilityConfig(cfg *config.Config, mode observability.AppMode) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version.Version
	obs.Environment = cfg.Telemetry.Environment
	obs.Mode = mode
	obs.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obs.OTLPInsecure = cfg.Telemetry.Insecure
	obs.SampleRatio = cfg.Telemetry.SampleRatio
	obs.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obs.LogJSON = cfg.Logging.JSON

	switch {
	case o.Verbose:
		obs.LogLevel = slog.LevelDebug
	case o.Quiet:
		obs.LogLevel = slog.LevelError
	}

	return obs
}

// logger builds a logger for one-shot commands that do not export telemetry.
func (o *GlobalOptions) logger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(o.observabilityConfig(cfg, observability.ModeCLI))
}

// newLoader resolves source, or the configured dataset source when empty.
func newLoader(cfg *config.Config, source string, logger *slog.Logger) (*dataset.Loader, error) {
	if source == "" {
		source = cfg.Dataset.Source
	}

	maxBytes, err := cfg.Dataset.MaxBytesValue()
	if err != nil {
		return nil, fmt.Errorf("dataset max bytes: %w", err)
	}

	httpClient := &http.Client{Timeout: fetchTimeout}
	newS3 := func() dataset.S3Client {
		return dataset.NewS3Client(dataset.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	}

	loc, err := dataset.ParseLocation(source, httpClient, newS3)
	if err != nil {
		return nil, fmt.Errorf("dataset source: %w", err)
	}

	opts := []dataset.LoaderOption{dataset.WithMaxBytes(maxBytes), dataset.WithLogger(logger)}

	if base := cfg.Dataset.DetailBase; base != "" {
		detail, detailErr := dataset.ParseLocation(strings.TrimSuffix(base, "/")+"/", httpClient, newS3)
		if detailErr != nil {
			return nil, fmt.Errorf("dataset detail base: %w", detailErr)
		}

		opts = append(opts, dataset.WithBlobSource(detail.Source))
	}

	return dataset.NewLoader(loc.Source, loc.Name, opts...), nil
}

// newStore opens the configured series cache backend.
func newStore(ctx context.Context, cfg config.CacheConfig) (seriescache.Store, error) {
	switch cfg.Backend {
	case config.CacheRedis:
		store, err := seriescache.DialRedis(ctx, cfg.Addr, cfg.Prefix, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("series cache: %w", err)
		}

		return store, nil
	case config.CacheNone:
		return seriescache.Discard{}, nil
	default:
		maxSize, err := cfg.MaxSizeValue()
		if err != nil {
			return nil, fmt.Errorf("series cache: %w", err)
		}

		return seriescache.NewMemory(maxSize), nil
	}
}

func plotConfig(cfg *config.Config) plot.Config {
	pc := plot.DefaultConfig()
	pc.MaxPoints = cfg.Condense.MaxPoints
	pc.EvenSpacing = cfg.Condense.EvenSpacing
	pc.HighlightWidth = cfg.UI.HighlightWidth
	pc.TooltipOffset = cfg.UI.TooltipOffset
	pc.DefaultMetric = cfg.UI.DefaultMetric

	return pc
}

func links(cfg *config.Config) tooltip.TemplateLinks {
	return tooltip.TemplateLinks{Commit: cfg.Links.CommitURL, Range: cfg.Links.RangeURL}
}
