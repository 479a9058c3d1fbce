package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/trendscope/pkg/chart"
	"github.com/Sumatoshi-tech/trendscope/pkg/config"
	"github.com/Sumatoshi-tech/trendscope/pkg/observability"
	"github.com/Sumatoshi-tech/trendscope/pkg/server"
)

type serveFlags struct {
	host    string
	port    int
	dataset string
	theme   string
	title   string
}

// NewServeCommand creates the dashboard server command.
func NewServeCommand(opts *GlobalOptions) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactive performance dashboard",
		Long: `Serve the dashboard page and its JSON API over HTTP.

The dataset is fetched once, on the first request, from a local file, an
http(s) URL or an s3://bucket/key location. Condensed series are cached in
memory or in Redis depending on cache.backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			flags.apply(cobraCmd, cfg)

			ctx, stop := signal.NotifyContext(cobraCmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, opts, cfg, flags)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", config.DefaultHost, "listen host")
	cmd.Flags().IntVarP(&flags.port, "port", "p", config.DefaultPort, "listen port")
	cmd.Flags().StringVarP(&flags.dataset, "dataset", "d", "", "dataset location (overrides dataset.source)")
	cmd.Flags().StringVar(&flags.theme, "theme", string(chart.ThemeLight), "page theme (light or dark)")
	cmd.Flags().StringVar(&flags.title, "title", server.DefaultTitle, "page title")

	return cmd
}

// apply overrides configuration values with explicitly set flags.
func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = f.host
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}

	if f.dataset != "" {
		cfg.Dataset.Source = f.dataset
	}
}

func runServe(ctx context.Context, opts *GlobalOptions, cfg *config.Config, flags serveFlags) (err error) {
	obsCfg := opts.observabilityConfig(cfg, observability.ModeServe)
	obsCfg.Prometheus = cfg.Telemetry.Prometheus

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		err = errors.Join(err, providers.Shutdown(context.WithoutCancel(ctx)))
	}()

	logger := providers.Logger

	loader, err := newLoader(cfg, "", logger)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, cfg.Cache)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		SessionTTL:      cfg.Server.SessionTTL,
		MaxSessions:     cfg.Server.MaxSessions,
		Title:           flags.title,
		Theme:           chart.ParseTheme(flags.theme),
		Plot:            plotConfig(cfg),
		Links:           links(cfg),
		Compress:        cfg.Cache.Compress,
	}, server.Deps{
		Loader:         loader,
		Store:          store,
		Tracer:         providers.Tracer,
		Meter:          providers.Meter,
		MetricsHandler: providers.MetricsHandler,
		Logger:         logger,
	})
	if err != nil {
		return errors.Join(err, store.Close())
	}

	defer func() {
		err = errors.Join(err, srv.Close())
	}()

	logger.InfoContext(ctx, "serving dashboard",
		"dataset", loader.Location(),
		"cache", cfg.Cache.Backend,
		"port", strconv.Itoa(cfg.Server.Port))

	return srv.Run(ctx)
}
