package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/trendscope/pkg/mcp"
	"github.com/Sumatoshi-tech/trendscope/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(opts *GlobalOptions) *cobra.Command {
	var (
		debug  bool
		source string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the dashboard's data as tools that AI agents can
discover and invoke:
  - trendscope_series: condensed metric series over a time window
  - trendscope_tooltip: one commit's measurement with delta and gap notes
  - trendscope_viewstate: decode and canonicalize a dashboard URL fragment`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) (err error) {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			obsCfg := opts.observabilityConfig(cfg, observability.ModeMCP)
			// stdout carries the protocol.
			obsCfg.LogOutput = os.Stderr
			obsCfg.LogJSON = true

			if debug {
				obsCfg.LogLevel = slog.LevelDebug
			}

			providers, err := observability.Init(obsCfg)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}

			defer func() {
				err = errors.Join(err, providers.Shutdown(context.WithoutCancel(cobraCmd.Context())))
			}()

			red, err := observability.NewREDMetrics(providers.Meter)
			if err != nil {
				return err
			}

			loader, err := newLoader(cfg, source, providers.Logger)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Loader:  loader,
				Links:   links(cfg),
				Logger:  providers.Logger,
				Metrics: red,
				Tracer:  providers.Tracer,
			})

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	cmd.Flags().StringVarP(&source, "dataset", "d", "", "dataset location (overrides dataset.source)")

	return cmd
}
