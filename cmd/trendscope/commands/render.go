package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/trendscope/pkg/chart"
	"github.com/Sumatoshi-tech/trendscope/pkg/server"
)

const renderFilePerm = 0o600

type renderFlags struct {
	output      string
	fragment    string
	theme       string
	title       string
	interactive bool
}

// NewRenderCommand creates the static page render command.
func NewRenderCommand(opts *GlobalOptions) *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "render [dataset]",
		Short: "Render the dashboard page for a view-state as standalone HTML",
		Long: `Render the dashboard page for one view-state into a single HTML file.

The view-state uses the URL fragment syntax metric;pin,pin;start;stop. Without
--interactive the page carries the chart only and needs no server.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return runRender(cobraCmd, opts, firstArg(args), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&flags.fragment, "fragment", "f", "", "view-state fragment, e.g. build-size;;1000;2000")
	cmd.Flags().StringVar(&flags.theme, "theme", string(chart.ThemeLight), "page theme (light or dark)")
	cmd.Flags().StringVar(&flags.title, "title", server.DefaultTitle, "page title")
	cmd.Flags().BoolVar(&flags.interactive, "interactive", false, "embed the session client that talks to a running server")

	return cmd
}

func runRender(cmd *cobra.Command, opts *GlobalOptions, source string, flags renderFlags) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	logger := opts.logger(cfg)

	loader, err := newLoader(cfg, source, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Title: flags.title,
		Plot:  plotConfig(cfg),
		Links: links(cfg),
	}, server.Deps{Loader: loader, Logger: logger})
	if err != nil {
		return err
	}
	defer srv.Close()

	var buf bytes.Buffer

	renderErr := srv.RenderPage(cmd.Context(), &buf, server.PageOptions{
		Theme:       chart.ParseTheme(flags.theme),
		Fragment:    flags.fragment,
		Interactive: flags.interactive,
	})
	if renderErr != nil && !errors.Is(renderErr, server.ErrPageFailed) {
		return renderErr
	}

	// The error page is still written so the failure is visible in the output.
	err = writeOutput(cmd.OutOrStdout(), flags.output, buf.Bytes())
	if err != nil {
		return err
	}

	return renderErr
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}

		return nil
	}

	err := os.WriteFile(filepath.Clean(path), data, renderFilePerm)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
