package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
)

// ErrInvalidFiles is returned when at least one file fails validation.
var ErrInvalidFiles = errors.New("dataset validation failed")

// NewValidateCommand creates the dataset validation command.
func NewValidateCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check dataset files against the dataset schema",
		Long: `Check JSON or YAML dataset files against the embedded dataset schema and
report every violation. A valid file is also indexed, which catches duplicate
commits and datasets without commits.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return runValidate(cobraCmd.OutOrStdout(), args, opts.Quiet)
		},
	}

	return cmd
}

func runValidate(w io.Writer, files []string, quiet bool) error {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	var failed int

	for _, name := range files {
		summary, err := validateFile(name)
		if err != nil {
			failed++

			bad.Fprintf(w, "FAIL %s\n", name)
			writeViolations(w, err)

			continue
		}

		if !quiet {
			ok.Fprintf(w, "ok   %s", name)
			fmt.Fprintf(w, "  %s\n", summary)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files", ErrInvalidFiles, failed, len(files))
	}

	return nil
}

func validateFile(name string) (string, error) {
	raw, err := os.ReadFile(filepath.Clean(name))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	ds, err := dataset.Decode(bytes.NewReader(raw), dataset.FormatFromName(name))
	if err != nil {
		return "", err
	}

	idx, err := timeline.FromDataset(ds)
	if err != nil {
		return "", err
	}

	summary := fmt.Sprintf("%d commits, %d tests, %d results", len(ds.Commits), len(ds.Tests), len(ds.Results))
	if n := idx.Dropped(); n > 0 {
		summary += fmt.Sprintf(" (%d results for unknown commits)", n)
	}

	return summary, nil
}

func writeViolations(w io.Writer, err error) {
	var verr *dataset.ValidationError
	if !errors.As(err, &verr) {
		fmt.Fprintf(w, "     %v\n", err)

		return
	}

	for _, v := range verr.Violations {
		fmt.Fprintf(w, "     %s: %s\n", v.Field, v.Description)
	}
}
