// Package plot implements the interaction controller behind the dashboard
// chart: zooming, hover highlighting, tooltips, metric pinning and view-state
// persistence. Rendering is delegated to a Chart and an Overlay.
package plot

import (
	"github.com/Sumatoshi-tech/trendscope/pkg/axis"
	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
	"github.com/Sumatoshi-tech/trendscope/pkg/units"
)

// Side is the placement of a value axis.
type Side string

// Axis sides.
const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// RenderSeries is one line handed to the chart renderer.
type RenderSeries struct {
	Name      string               `json:"name"`
	Label     string               `json:"label"`
	Data      []condense.Point     `json:"data"`
	BuildInfo []condense.BuildInfo `json:"buildinfo"`
	YAxis     int                  `json:"yaxisIndex"`
}

// ValueAxis is a planned value axis shared by every series of one unit.
type ValueAxis struct {
	Unit  units.Unit  `json:"unit"`
	Side  Side        `json:"side"`
	Ticks []axis.Tick `json:"ticks"`
}

// Frame is everything the chart draws for one state.
type Frame struct {
	Series []RenderSeries `json:"series"`
	XRange timeline.Range `json:"xrange"`
	XTicks []axis.Tick    `json:"xticks"`
	YAxes  []ValueAxis    `json:"yaxes"`
}

// Area is the plot area inside the chart canvas, in pixels.
type Area struct {
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// Item identifies a rendered point under the pointer.
type Item struct {
	SeriesIndex int     `json:"seriesIndex"`
	DataIndex   int     `json:"dataIndex"`
	PageX       float64 `json:"pageX"`
	PageY       float64 `json:"pageY"`
}

// Position is a pointer position in canvas pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Band is the zoom highlight selector: its pixel extent and the time range
// it covers.
type Band struct {
	Left  float64        `json:"left"`
	Width float64        `json:"width"`
	Range timeline.Range `json:"range"`
}

// Chart is the rendering collaborator.
type Chart interface {
	SetData(frame Frame)
	PlotArea() Area
	// PixelToTime converts a pixel offset from the plot area's left edge to
	// a timestamp on the current x axis.
	PixelToTime(px float64) float64
}

// Overlay draws the tooltip, highlight band and page controls.
type Overlay interface {
	ShowTooltip(view *tooltip.View, pos Position, noFade bool)
	HideTooltip()
	// PinTooltip switches the tooltip to build-detail mode.
	PinTooltip(view *tooltip.View, url string)
	ShowHighlight(band Band)
	HideHighlight()
	SetZoomOutVisible(visible bool)
	Alert(msg string)
}

// Scheduler defers work to the next tick of the event loop.
type Scheduler interface {
	Defer(fn func())
}

// TickQueue is a Scheduler that runs deferred work when flushed.
type TickQueue struct {
	pending []func()
}

// Defer queues fn.
func (q *TickQueue) Defer(fn func()) {
	q.pending = append(q.pending, fn)
}

// Len is the number of queued callbacks.
func (q *TickQueue) Len() int {
	return len(q.pending)
}

// Flush runs queued callbacks, including those queued while flushing.
func (q *TickQueue) Flush() {
	for len(q.pending) > 0 {
		fn := q.pending[0]
		q.pending = q.pending[1:]

		fn()
	}
}
