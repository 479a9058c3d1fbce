package plot

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/Sumatoshi-tech/trendscope/pkg/axis"
	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
	"github.com/Sumatoshi-tech/trendscope/pkg/units"
	"github.com/Sumatoshi-tech/trendscope/pkg/viewstate"
)

// Sentinel errors.
var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrNoMetrics     = errors.New("dataset has no metrics")
)

// Defaults for interaction geometry, in pixels.
const (
	DefaultHighlightWidth = 400
	DefaultTooltipOffset  = 10
)

// Config tunes the controller.
type Config struct {
	MaxPoints      int
	EvenSpacing    bool
	HighlightWidth float64
	TooltipOffset  float64
	DefaultMetric  string
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		MaxPoints:      condense.DefaultMaxPoints,
		HighlightWidth: DefaultHighlightWidth,
		TooltipOffset:  DefaultTooltipOffset,
	}
}

// Deps are the controller's collaborators. Fragment and Scheduler are
// optional: without a fragment nothing is persisted, and without a scheduler
// deferred work runs through an internal TickQueue drained by Tick.
type Deps struct {
	Index     *timeline.Index
	Condenser *condense.Condenser
	Presenter *tooltip.Presenter
	Chart     Chart
	Overlay   Overlay
	Scheduler Scheduler
	Fragment  viewstate.Fragment
	Logger    *slog.Logger
}

// AppState is the application state the controller owns.
type AppState struct {
	Metric string
	Pinned []string
	Zoom   timeline.Range
}

// Controller is the single-threaded interaction state machine of one chart.
// Methods must not be called concurrently.
type Controller struct {
	cfg       Config
	index     *timeline.Index
	condenser *condense.Condenser
	presenter *tooltip.Presenter
	chart     Chart
	overlay   Overlay
	scheduler Scheduler
	queue     *TickQueue
	syncer    *viewstate.Syncer
	logger    *slog.Logger

	dataRange timeline.Range
	state     AppState
	series    []condense.Series

	zoomed      bool
	transitions int

	highlighted    bool
	highlightLoc   float64
	highlightWidth float64
	highlightBand  Band

	hovered        *Item
	pendingUnhover bool
	tooltipPinned  bool
}

// NewController validates the collaborators and creates a controller showing
// the full data range. Call Start to render the initial view.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Index == nil:
		return nil, errors.New("plot: nil timeline index")
	case deps.Condenser == nil:
		return nil, errors.New("plot: nil condenser")
	case deps.Presenter == nil:
		return nil, errors.New("plot: nil tooltip presenter")
	case deps.Chart == nil:
		return nil, errors.New("plot: nil chart")
	case deps.Overlay == nil:
		return nil, errors.New("plot: nil overlay")
	}

	if len(deps.Index.Metrics()) == 0 {
		return nil, ErrNoMetrics
	}

	if cfg.HighlightWidth <= 0 {
		cfg.HighlightWidth = DefaultHighlightWidth
	}

	if _, ok := deps.Index.Metric(cfg.DefaultMetric); !ok {
		cfg.DefaultMetric = deps.Index.DefaultMetric()
	}

	c := &Controller{
		cfg:       cfg,
		index:     deps.Index,
		condenser: deps.Condenser,
		presenter: deps.Presenter,
		chart:     deps.Chart,
		overlay:   deps.Overlay,
		scheduler: deps.Scheduler,
		logger:    deps.Logger,
		dataRange: deps.Index.DataRange(),
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.scheduler == nil {
		c.queue = &TickQueue{}
		c.scheduler = c.queue
	}

	c.state = AppState{Metric: cfg.DefaultMetric, Zoom: c.dataRange}

	if deps.Fragment != nil {
		c.syncer = viewstate.NewSyncer(deps.Fragment, cfg.DefaultMetric, c.applyFragment)

		if n, ok := deps.Fragment.(interface{ OnChange(func()) }); ok {
			n.OnChange(c.syncer.HandleChange)
		}
	}

	return c, nil
}

// Start renders the view restored from the fragment, or the defaults.
func (c *Controller) Start() error {
	if c.syncer == nil {
		return c.render()
	}

	return c.ApplyViewState(c.syncer.Read())
}

// State returns a copy of the application state.
func (c *Controller) State() AppState {
	s := c.state
	s.Pinned = slices.Clone(c.state.Pinned)

	return s
}

// ViewState is the serializable projection of the application state.
func (c *Controller) ViewState() viewstate.State {
	s := viewstate.State{Metric: c.state.Metric, Pinned: slices.Clone(c.state.Pinned)}

	if c.zoomed {
		z := c.state.Zoom
		s.Zoom = &z
	}

	return s
}

// DataRange is the full time range of the dataset.
func (c *Controller) DataRange() timeline.Range {
	return c.dataRange
}

// Zoomed reports whether a zoom window narrower than the data range is shown.
func (c *Controller) Zoomed() bool {
	return c.zoomed
}

// Transitions counts zoomed/unzoomed state changes.
func (c *Controller) Transitions() int {
	return c.transitions
}

// Highlighted reports whether the zoom highlight is visible, and its band.
func (c *Controller) Highlighted() (Band, bool) {
	return c.highlightBand, c.highlighted
}

// TooltipPinned reports whether the tooltip is in build-detail mode.
func (c *Controller) TooltipPinned() bool {
	return c.tooltipPinned
}

// Series returns the currently rendered condensed series.
func (c *Controller) Series() []condense.Series {
	return c.series
}

// SelectedMetrics is the current metric followed by the pinned metrics.
func (c *Controller) SelectedMetrics() []string {
	ids := []string{c.state.Metric}

	for _, p := range c.state.Pinned {
		if p != c.state.Metric {
			ids = append(ids, p)
		}
	}

	return ids
}

// SetZoomRange zooms to r; nil zooms back out to the full data range.
// Calling it again with the same range re-renders the same frame without
// further state transitions.
func (c *Controller) SetZoomRange(r *timeline.Range) error {
	return c.setZoomRange(r, true)
}

func (c *Controller) setZoomRange(r *timeline.Range, persist bool) error {
	target := c.dataRange
	if r != nil {
		target = *r
	}

	if target.Start > target.Stop {
		target.Start, target.Stop = target.Stop, target.Start
	}

	zoomOut := target == c.dataRange

	switch {
	case c.zoomed && zoomOut:
		c.zoomed = false
		c.transitions++
		c.overlay.SetZoomOutVisible(false)
	case !c.zoomed && !zoomOut:
		c.zoomed = true
		c.transitions++
		c.overlay.SetZoomOutVisible(true)
	}

	c.state.Zoom = target

	err := c.render()
	if err != nil {
		return err
	}

	// The highlight band covers a different time range on the new axis.
	if c.highlighted {
		c.showHighlight(c.highlightLoc, c.highlightWidth)
	}

	if persist {
		c.persist()
	}

	return nil
}

// UpdateData re-condenses the current range after the metric set changed.
func (c *Controller) UpdateData() error {
	err := c.render()
	if err != nil {
		return err
	}

	c.persist()

	return nil
}

// SelectMetric makes id the primary metric.
func (c *Controller) SelectMetric(id string) error {
	err := c.checkMetric(id)
	if err != nil {
		return err
	}

	c.state.Metric = id

	return c.UpdateData()
}

// Pin keeps id plotted alongside the primary metric.
func (c *Controller) Pin(id string) error {
	err := c.checkMetric(id)
	if err != nil {
		return err
	}

	c.state.Pinned = viewstate.NormalizePins(append(slices.Clone(c.state.Pinned), id))

	return c.UpdateData()
}

// Unpin removes id from the pinned set.
func (c *Controller) Unpin(id string) error {
	err := c.checkMetric(id)
	if err != nil {
		return err
	}

	c.state.Pinned = viewstate.NormalizePins(slices.DeleteFunc(slices.Clone(c.state.Pinned),
		func(p string) bool { return p == id }))

	return c.UpdateData()
}

// ApplyViewState restores a decoded view state. Unknown metrics raise an
// alert and leave the current state untouched.
func (c *Controller) ApplyViewState(s viewstate.State) error {
	for _, id := range append([]string{s.Metric}, s.Pinned...) {
		err := c.checkMetric(id)
		if err != nil {
			return err
		}
	}

	c.state.Metric = s.Metric
	c.state.Pinned = viewstate.NormalizePins(s.Pinned)

	return c.setZoomRange(s.Zoom, false)
}

// HandleFragmentChange is the fragment-change listener for fragments that do
// not support OnChange subscription.
func (c *Controller) HandleFragmentChange() {
	if c.syncer != nil {
		c.syncer.HandleChange()
	}
}

func (c *Controller) applyFragment(s viewstate.State) {
	err := c.ApplyViewState(s)
	if err != nil {
		c.logger.Warn("fragment change rejected", "error", err)
	}
}

// OnHover handles pointer movement. item is nil over empty plot space.
func (c *Controller) OnHover(item *Item, pos Position) {
	if c.tooltipPinned {
		return
	}

	switch {
	case item != nil && !c.sameItem(item):
		c.hideHighlight()
		c.pendingUnhover = false

		view, err := c.present(*item)
		if err != nil {
			// Null or stale point: nothing to show, and no later unhover
			// would clear the previous tooltip.
			c.overlay.HideTooltip()
			c.hovered = nil

			return
		}

		c.overlay.ShowTooltip(view, Position{
			X: item.PageX + c.cfg.TooltipOffset,
			Y: item.PageY + c.cfg.TooltipOffset,
		}, c.hovered != nil)
	case item == nil:
		if c.hovered != nil {
			c.pendingUnhover = true
			c.scheduler.Defer(c.resolveUnhover)
		}

		c.showHighlight(pos.X, c.cfg.HighlightWidth)
	}

	c.hovered = item
}

// Tick drains the internal queue when no external scheduler was supplied.
func (c *Controller) Tick() {
	if c.queue != nil {
		c.queue.Flush()
	}
}

func (c *Controller) resolveUnhover() {
	if !c.pendingUnhover {
		return
	}

	c.pendingUnhover = false

	if c.hovered == nil && !c.tooltipPinned {
		c.overlay.HideTooltip()
	}
}

// OnClick pins the tooltip of a clicked point, or zooms into the highlighted
// band when empty space is clicked.
func (c *Controller) OnClick(item *Item) error {
	if item != nil {
		view, err := c.present(*item)
		if err != nil {
			return err
		}

		c.tooltipPinned = true
		c.overlay.PinTooltip(view, view.URL())

		return nil
	}

	if !c.highlighted {
		return nil
	}

	zoom := c.extendToBuilds(c.highlightBand.Range)

	return c.SetZoomRange(&zoom)
}

// OnMouseOut hides the highlight when the pointer leaves the chart.
func (c *Controller) OnMouseOut() {
	c.hideHighlight()
}

// DismissTooltip closes a pinned tooltip.
func (c *Controller) DismissTooltip() {
	if !c.tooltipPinned {
		return
	}

	c.tooltipPinned = false
	c.hovered = nil
	c.overlay.HideTooltip()
}

func (c *Controller) sameItem(item *Item) bool {
	return c.hovered != nil &&
		c.hovered.SeriesIndex == item.SeriesIndex &&
		c.hovered.DataIndex == item.DataIndex
}

func (c *Controller) present(item Item) (*tooltip.View, error) {
	if item.SeriesIndex < 0 || item.SeriesIndex >= len(c.series) {
		return nil, fmt.Errorf("%w: series %d", tooltip.ErrPointIndex, item.SeriesIndex)
	}

	s := c.series[item.SeriesIndex]

	view, err := c.presenter.Present(s, item.DataIndex, s.MetricID)
	if err != nil && !errors.Is(err, tooltip.ErrNullPoint) {
		c.logger.Warn("tooltip unavailable", "metric", s.MetricID, "index", item.DataIndex, "error", err)
	}

	return view, err
}

// extendToBuilds widens r to the full commit time ranges of the condensed
// points at its edges, so zooming into a point keeps every commit it stands
// for.
func (c *Controller) extendToBuilds(r timeline.Range) timeline.Range {
	if len(c.series) == 0 {
		return r
	}

	info := c.series[0].Info

	first, last := -1, -1

	for i, b := range info {
		if b.Time < r.Start {
			continue
		}

		if b.Time > r.Stop {
			break
		}

		if first < 0 {
			first = i
		}

		last = i
	}

	if first < 0 {
		return r
	}

	lo, hi := info[first].Time, info[last].Time
	if info[first].FirstRev != "" {
		lo = math.Min(lo, info[first].TimeRange[0])
	}

	if info[last].FirstRev != "" {
		hi = math.Max(hi, info[last].TimeRange[1])
	}

	return timeline.Range{Start: math.Min(r.Start, lo), Stop: math.Max(r.Stop, hi)}
}

// showHighlight centres a band of width pixels on loc, kept inside the plot
// area: it is shifted to fit, and only shrunk when wider than the plot.
func (c *Controller) showHighlight(loc, width float64) {
	c.highlightLoc, c.highlightWidth = loc, width

	area := c.chart.PlotArea()

	if width > area.Width {
		width = math.Max(area.Width, 0)
	}

	left := loc - width/2

	switch {
	case left < area.Left:
		left = area.Left
	case left+width > area.Left+area.Width:
		left = area.Left + area.Width - width
	}

	c.highlightBand = Band{
		Left:  left,
		Width: width,
		Range: timeline.Range{
			Start: c.chart.PixelToTime(left - area.Left),
			Stop:  c.chart.PixelToTime(left + width - area.Left),
		},
	}

	c.highlighted = true
	c.overlay.ShowHighlight(c.highlightBand)
}

func (c *Controller) hideHighlight() {
	if !c.highlighted {
		return
	}

	c.highlighted = false
	c.overlay.HideHighlight()
}

func (c *Controller) checkMetric(id string) error {
	if _, ok := c.index.Metric(id); ok {
		return nil
	}

	err := fmt.Errorf("%w: %q", ErrUnknownMetric, id)
	c.overlay.Alert(fmt.Sprintf("Unknown metric %q", id))

	return err
}

func (c *Controller) persist() {
	if c.syncer != nil {
		c.syncer.Write(c.ViewState())
	}
}

// render condenses the selected metrics for the current zoom range and hands
// the frame to the chart.
func (c *Controller) render() error {
	ids := c.SelectedMetrics()

	series, err := c.condenser.CondenseWith(ids, c.state.Zoom, condense.Options{
		MaxPoints:   c.cfg.MaxPoints,
		EvenSpacing: c.cfg.EvenSpacing,
	})
	if err != nil {
		if errors.Is(err, condense.ErrLengthMismatch) {
			c.logger.Error("condensation defect", "error", err)
		}

		c.overlay.Alert(err.Error())

		return err
	}

	c.series = series
	c.chart.SetData(c.frame(series))

	return nil
}

func (c *Controller) frame(series []condense.Series) Frame {
	f := Frame{
		XRange: c.state.Zoom,
		XTicks: axis.PlanTime(c.state.Zoom.Start, c.state.Zoom.Stop),
	}

	axisOf := map[units.Unit]int{}

	type extent struct {
		lo, hi float64
		ok     bool
	}

	var extents []extent

	for _, s := range series {
		m, _ := c.index.Metric(s.MetricID)

		ai, ok := axisOf[m.Unit]
		if !ok {
			ai = len(f.YAxes)
			axisOf[m.Unit] = ai

			side := SideLeft
			if ai%2 == 1 {
				side = SideRight
			}

			f.YAxes = append(f.YAxes, ValueAxis{Unit: m.Unit, Side: side})
			extents = append(extents, extent{})
		}

		if lo, hi, found := s.Extent(); found {
			e := &extents[ai]
			if !e.ok {
				e.lo, e.hi, e.ok = lo, hi, true
			} else {
				e.lo, e.hi = math.Min(e.lo, lo), math.Max(e.hi, hi)
			}
		}

		label := m.Name
		if label == "" {
			label = m.ID
		}

		f.Series = append(f.Series, RenderSeries{
			Name:      s.MetricID,
			Label:     label,
			Data:      s.Points,
			BuildInfo: s.Info,
			YAxis:     ai,
		})
	}

	for i := range f.YAxes {
		lo := math.Min(extents[i].lo, 0)
		f.YAxes[i].Ticks = axis.PlanValue(lo, extents[i].hi, f.YAxes[i].Unit)
	}

	return f
}
