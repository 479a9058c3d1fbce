package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
	"github.com/Sumatoshi-tech/trendscope/pkg/viewstate"
)

// Tool name constants.
const (
	ToolNameSeries    = "trendscope_series"
	ToolNameTooltip   = "trendscope_tooltip"
	ToolNameViewState = "trendscope_viewstate"
)

// MaxMetricsPerCall bounds the metrics one series call may condense.
const MaxMetricsPerCall = 32

// Sentinel errors for tool input validation.
var (
	// ErrNoDataset indicates the server was started without a dataset.
	ErrNoDataset = errors.New("no dataset configured")
	// ErrEmptyCommit indicates the commit parameter is empty.
	ErrEmptyCommit = errors.New("commit parameter is required and must not be empty")
	// ErrTooManyMetrics indicates the metrics list exceeds MaxMetricsPerCall.
	ErrTooManyMetrics = errors.New("too many metrics")
	// ErrNegativeMaxPoints indicates a negative max_points.
	ErrNegativeMaxPoints = errors.New("max_points must not be negative")
	// ErrHalfOpenWindow indicates only one of start and stop was given.
	ErrHalfOpenWindow = errors.New("start and stop must be given together")
)

// Input types (auto-generate JSON schemas via struct tags).

// SeriesInput is the input schema for the trendscope_series tool.
type SeriesInput struct {
	EvenSpacing bool     `json:"even_spacing,omitempty" jsonschema:"spread commits evenly by index instead of by time"`
	MaxPoints   *int     `json:"max_points,omitempty"   jsonschema:"approximate points per metric (default 150; 0 keeps every commit)"`
	Metrics     []string `json:"metrics,omitempty"      jsonschema:"metric ids to condense (default: the dataset's default metric)"`
	Start       *float64 `json:"start,omitempty"        jsonschema:"window start in seconds since the epoch"`
	Stop        *float64 `json:"stop,omitempty"         jsonschema:"window stop in seconds since the epoch"`
}

// TooltipInput is the input schema for the trendscope_tooltip tool.
type TooltipInput struct {
	Commit string `json:"commit"           jsonschema:"commit id whose measurement is described"`
	Metric string `json:"metric,omitempty" jsonschema:"metric id (default: the dataset's default metric)"`
}

// ViewStateInput is the input schema for the trendscope_viewstate tool.
type ViewStateInput struct {
	DefaultMetric string `json:"default_metric,omitempty" jsonschema:"metric used when the fragment names none (default: the dataset's default metric)"`
	Fragment      string `json:"fragment"                 jsonschema:"URL fragment with or without the leading #"`
}

// Output types.

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// SeriesResult is the payload of the series tool.
type SeriesResult struct {
	Range  timeline.Range    `json:"range"`
	Series []condense.Series `json:"series"`
}

// TooltipResult is the payload of the tooltip tool.
type TooltipResult struct {
	View *tooltip.View `json:"view"`
	Text string        `json:"text"`
}

// ViewStateResult is the payload of the view-state tool.
type ViewStateResult struct {
	State    viewstate.State `json:"state"`
	Fragment string          `json:"fragment"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// backend lazily derives the timeline, condenser and presenter from the
// dataset on the first tool call that needs them.
type backend struct {
	loader *dataset.Loader
	links  tooltip.LinkFormatter
	logger *slog.Logger

	mu        sync.Mutex
	index     *timeline.Index
	condenser *condense.Condenser
	presenter *tooltip.Presenter
}

func (b *backend) load(ctx context.Context) error {
	if b.loader == nil {
		return ErrNoDataset
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index != nil {
		return nil
	}

	ds, err := b.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	idx, err := timeline.FromDataset(ds)
	if err != nil {
		return fmt.Errorf("index dataset: %w", err)
	}

	condenser, err := condense.NewCondenser(idx, b.logger)
	if err != nil {
		return fmt.Errorf("create condenser: %w", err)
	}

	presenter, err := tooltip.NewPresenter(idx, b.links)
	if err != nil {
		return fmt.Errorf("create presenter: %w", err)
	}

	b.index, b.condenser, b.presenter = idx, condenser, presenter

	return nil
}

// handleSeries processes trendscope_series tool calls.
func (b *backend) handleSeries(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input SeriesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	opts, err := validateSeriesInput(input)
	if err != nil {
		return errorResult(err)
	}

	err = b.load(ctx)
	if err != nil {
		return errorResult(err)
	}

	ids := input.Metrics
	if len(ids) == 0 {
		ids = []string{b.index.DefaultMetric()}
	}

	r := b.index.DataRange()
	if input.Start != nil {
		r = timeline.Range{Start: *input.Start, Stop: *input.Stop}
	}

	series, err := b.condenser.CondenseWith(ids, r, opts)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(SeriesResult{Range: r, Series: series})
}

func validateSeriesInput(input SeriesInput) (condense.Options, error) {
	opts := condense.Options{MaxPoints: condense.DefaultMaxPoints, EvenSpacing: input.EvenSpacing}

	if len(input.Metrics) > MaxMetricsPerCall {
		return opts, fmt.Errorf("%w: %d (max %d)", ErrTooManyMetrics, len(input.Metrics), MaxMetricsPerCall)
	}

	if (input.Start == nil) != (input.Stop == nil) {
		return opts, ErrHalfOpenWindow
	}

	if input.MaxPoints != nil {
		if *input.MaxPoints < 0 {
			return opts, ErrNegativeMaxPoints
		}

		opts.MaxPoints = *input.MaxPoints
	}

	return opts, nil
}

// handleTooltip processes trendscope_tooltip tool calls.
func (b *backend) handleTooltip(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input TooltipInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Commit == "" {
		return errorResult(ErrEmptyCommit)
	}

	err := b.load(ctx)
	if err != nil {
		return errorResult(err)
	}

	metric := input.Metric
	if metric == "" {
		metric = b.index.DefaultMetric()
	}

	view, err := b.presenter.PresentCommit(metric, input.Commit)
	if err != nil {
		return errorResult(err)
	}

	var text bytes.Buffer

	err = tooltip.WriteText(&text, view)
	if err != nil {
		return errorResult(fmt.Errorf("render tooltip: %w", err))
	}

	return jsonResult(TooltipResult{View: view, Text: text.String()})
}

// handleViewState processes trendscope_viewstate tool calls. The dataset is
// consulted only for the default metric and only when one is not given.
func (b *backend) handleViewState(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input ViewStateInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	def := input.DefaultMetric
	if def == "" && b.loader != nil {
		err := b.load(ctx)
		if err != nil {
			return errorResult(err)
		}

		def = b.index.DefaultMetric()
	}

	state := viewstate.Decode(input.Fragment, def)

	return jsonResult(ViewStateResult{State: state, Fragment: viewstate.Encode(state)})
}
