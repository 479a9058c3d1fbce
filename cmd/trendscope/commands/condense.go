package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/config"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/units"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

type condenseFlags struct {
	metrics     []string
	start       float64
	stop        float64
	maxPoints   int
	evenSpacing bool
	format      string
}

// condenseOutput is the json/yaml document written by the condense command.
type condenseOutput struct {
	Range  timeline.Range `json:"range"  yaml:"range"`
	Series []seriesDoc    `json:"series" yaml:"series"`
}

type seriesDoc struct {
	Metric string     `json:"metric" yaml:"metric"`
	Points []pointDoc `json:"points" yaml:"points"`
}

type pointDoc struct {
	Time    float64  `json:"time"              yaml:"time"`
	Value   *float64 `json:"value"             yaml:"value"`
	Rev     string   `json:"rev,omitempty"     yaml:"rev,omitempty"`
	LastRev string   `json:"lastrev,omitempty" yaml:"lastrev,omitempty"`
	NumRevs int      `json:"numrevs,omitempty" yaml:"numrevs,omitempty"`
}

// NewCondenseCommand creates the series condense command.
func NewCondenseCommand(opts *GlobalOptions) *cobra.Command {
	var flags condenseFlags

	cmd := &cobra.Command{
		Use:   "condense [dataset]",
		Short: "Print condensed metric series",
		Long: `Condense metric series over a time window the way the dashboard plots
them and print the points with their build metadata.

Without --start and --stop the full history is condensed. --max-points 0
keeps every commit.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return runCondense(cobraCmd, opts, firstArg(args), flags)
		},
	}

	cmd.Flags().StringSliceVarP(&flags.metrics, "metric", "m", nil, "metric id (repeatable; default the dataset's default metric)")
	cmd.Flags().Float64Var(&flags.start, "start", 0, "window start, seconds since the epoch")
	cmd.Flags().Float64Var(&flags.stop, "stop", 0, "window stop, seconds since the epoch")
	cmd.Flags().IntVar(&flags.maxPoints, "max-points", condense.DefaultMaxPoints, "approximate points per metric")
	cmd.Flags().BoolVar(&flags.evenSpacing, "even-spacing", false, "spread commits evenly by index")
	cmd.Flags().StringVar(&flags.format, "format", FormatTable, "output format: table, json or yaml")

	return cmd
}

func runCondense(cmd *cobra.Command, opts *GlobalOptions, source string, flags condenseFlags) error {
	switch flags.format {
	case FormatJSON, FormatYAML, FormatTable:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, flags.format)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("max-points") {
		flags.maxPoints = cfg.Condense.MaxPoints
	}

	if !cmd.Flags().Changed("even-spacing") {
		flags.evenSpacing = cfg.Condense.EvenSpacing
	}

	logger := opts.logger(cfg)

	idx, err := loadIndex(cmd.Context(), cfg, source, logger)
	if err != nil {
		return err
	}

	condenser, err := condense.NewCondenser(idx, logger)
	if err != nil {
		return err
	}

	ids := flags.metrics
	if len(ids) == 0 {
		ids = []string{idx.DefaultMetric()}
	}

	r := idx.DataRange()
	if cmd.Flags().Changed("start") {
		r.Start = flags.start
	}

	if cmd.Flags().Changed("stop") {
		r.Stop = flags.stop
	}

	series, err := condenser.CondenseWith(ids, r, condense.Options{
		MaxPoints:   flags.maxPoints,
		EvenSpacing: flags.evenSpacing,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	switch flags.format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(newCondenseOutput(r, series))
	case FormatYAML:
		enc := yaml.NewEncoder(out)

		err = enc.Encode(newCondenseOutput(r, series))
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	default:
		return writeSeriesTable(out, idx, series)
	}
}

func newCondenseOutput(r timeline.Range, series []condense.Series) condenseOutput {
	out := condenseOutput{Range: r, Series: make([]seriesDoc, len(series))}

	for i, s := range series {
		doc := seriesDoc{Metric: s.MetricID, Points: make([]pointDoc, len(s.Points))}

		for j, p := range s.Points {
			info := s.Info[j]
			doc.Points[j] = pointDoc{
				Time:    p.Time,
				Value:   p.Value,
				Rev:     info.Rev,
				LastRev: info.LastRev,
				NumRevs: info.NumRevs,
			}
		}

		out.Series[i] = doc
	}

	return out
}

func writeSeriesTable(w io.Writer, idx *timeline.Index, series []condense.Series) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Metric", "Time", "Value", "Commit", "Commits"})

	rows := 0

	for _, s := range series {
		metric, _ := idx.Metric(s.MetricID)

		for j, p := range s.Points {
			info := s.Info[j]

			value, rev, count := "-", "-", ""
			if p.Value != nil {
				value = units.FormatValue(*p.Value, metric.Unit)
				rev = shortRev(info.Rev)
				count = strconv.Itoa(info.NumRevs)
			}

			tbl.AppendRow(table.Row{
				s.MetricID,
				time.Unix(int64(p.Time), 0).UTC().Format(time.DateOnly),
				value,
				rev,
				count,
			})

			rows++
		}
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d points", rows)})
	tbl.Render()

	return nil
}

func shortRev(rev string) string {
	const shortLen = 8

	if len(rev) > shortLen {
		return rev[:shortLen]
	}

	return rev
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}

	return args[0]
}

// loadIndex loads the dataset at source, or the configured source, and
// indexes it.
func loadIndex(ctx context.Context, cfg *config.Config, source string, logger *slog.Logger) (*timeline.Index, error) {
	loader, err := newLoader(cfg, source, logger)
	if err != nil {
		return nil, err
	}

	ds, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	idx, err := timeline.FromDataset(ds)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", loader.Location(), err)
	}

	return idx, nil
}
