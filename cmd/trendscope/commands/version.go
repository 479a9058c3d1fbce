package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/trendscope/pkg/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			info := version.Get()
			out := cobraCmd.OutOrStdout()

			if asJSON {
				return json.NewEncoder(out).Encode(info)
			}

			_, err := fmt.Fprintf(out, "trendscope %s (commit: %s, %s)\n", info.Version, info.GitHash, info.GoVersion)

			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	return cmd
}
