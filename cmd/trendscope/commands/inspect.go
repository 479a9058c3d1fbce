package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
)

// ErrNoMeasurements is returned when a commit has no result for any
// requested metric.
var ErrNoMeasurements = errors.New("commit has no measurements")

type inspectFlags struct {
	metrics []string
	json    bool
}

// NewInspectCommand creates the commit inspection command.
func NewInspectCommand(opts *GlobalOptions) *cobra.Command {
	var flags inspectFlags

	cmd := &cobra.Command{
		Use:   "inspect <commit> [dataset]",
		Short: "Show the tooltip of a commit's measurements",
		Long: `Show what the dashboard tooltip reports for one commit: each metric's
value, the change against the previous successful build and any untested or
failed commits in between.

Without --metric every metric measured at the commit is shown.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return runInspect(cobraCmd, opts, args[0], firstArg(args[1:]), flags)
		},
	}

	cmd.Flags().StringSliceVarP(&flags.metrics, "metric", "m", nil, "metric id (repeatable; default every measured metric)")
	cmd.Flags().BoolVar(&flags.json, "json", false, "print the tooltip views as JSON")

	return cmd
}

func runInspect(cmd *cobra.Command, opts *GlobalOptions, rev, source string, flags inspectFlags) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	idx, err := loadIndex(cmd.Context(), cfg, source, opts.logger(cfg))
	if err != nil {
		return err
	}

	presenter, err := tooltip.NewPresenter(idx, links(cfg))
	if err != nil {
		return err
	}

	views, err := presentCommit(idx, presenter, rev, flags.metrics)
	if err != nil {
		return err
	}

	return writeViews(cmd.OutOrStdout(), views, flags.json)
}

// presentCommit builds the views of rev. Explicitly requested metrics must
// all be measured; otherwise unmeasured metrics are skipped.
func presentCommit(idx *timeline.Index, presenter *tooltip.Presenter, rev string, metrics []string) ([]*tooltip.View, error) {
	explicit := len(metrics) > 0

	if !explicit {
		for _, m := range idx.Metrics() {
			metrics = append(metrics, m.ID)
		}
	}

	views := make([]*tooltip.View, 0, len(metrics))

	for _, id := range metrics {
		view, err := presenter.PresentCommit(id, rev)

		switch {
		case err == nil:
			views = append(views, view)
		case !explicit && errors.Is(err, tooltip.ErrNullPoint):
			// Not measured at rev.
		default:
			return nil, fmt.Errorf("inspect %s: %w", id, err)
		}
	}

	if len(views) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMeasurements, rev)
	}

	return views, nil
}

func writeViews(w io.Writer, views []*tooltip.View, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(views)
	}

	for i, v := range views {
		if i > 0 {
			_, err := fmt.Fprintln(w)
			if err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		}

		err := tooltip.WriteText(w, v)
		if err != nil {
			return fmt.Errorf("write tooltip: %w", err)
		}
	}

	return nil
}
