// Package main provides the entry point for the trendscope CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/trendscope/cmd/trendscope/commands"
)

func main() {
	var opts commands.GlobalOptions

	rootCmd := &cobra.Command{
		Use:   "trendscope",
		Short: "Trendscope - Interactive benchmark history dashboard",
		Long: `Trendscope plots benchmark results across a commit history.

Commands:
  serve     Interactive dashboard server
  render    Static dashboard page for one view-state
  condense  Condensed series as a table, JSON or YAML
  inspect   Tooltip of one commit's measurements
  validate  Dataset schema check
  mcp       MCP tool server on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.Register(rootCmd)

	rootCmd.AddCommand(commands.NewServeCommand(&opts))
	rootCmd.AddCommand(commands.NewRenderCommand(&opts))
	rootCmd.AddCommand(commands.NewCondenseCommand(&opts))
	rootCmd.AddCommand(commands.NewInspectCommand(&opts))
	rootCmd.AddCommand(commands.NewValidateCommand(&opts))
	rootCmd.AddCommand(commands.NewMCPCommand(&opts))
	rootCmd.AddCommand(commands.NewVersionCommand())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
