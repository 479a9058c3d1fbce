package plot

import (
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
)

// TooltipState is what the overlay currently shows.
type TooltipState struct {
	View     *tooltip.View `json:"view"`
	Position Position      `json:"position"`
	Pinned   bool          `json:"pinned"`
	URL      string        `json:"url,omitempty"`
	NoFade   bool          `json:"no_fade,omitempty"`
}

// Snapshot is the recorded output of a Recorder.
type Snapshot struct {
	Frame     *Frame        `json:"frame,omitempty"`
	Tooltip   *TooltipState `json:"tooltip,omitempty"`
	Highlight *Band         `json:"highlight,omitempty"`
	ZoomOut   bool          `json:"zoom_out"`
	Alerts    []string      `json:"alerts,omitempty"`
	Renders   int           `json:"renders"`
}

// Recorder is a headless Chart and Overlay. It maps pixels to time linearly
// over the current frame's x range and records everything it is asked to
// draw, for remote clients and tests.
type Recorder struct {
	area Area
	snap Snapshot
}

// NewRecorder creates a recorder with the given plot area.
func NewRecorder(area Area) *Recorder {
	return &Recorder{area: area}
}

// Resize changes the plot area.
func (r *Recorder) Resize(area Area) {
	r.area = area
}

// SetData records the frame.
func (r *Recorder) SetData(frame Frame) {
	r.snap.Frame = &frame
	r.snap.Renders++
}

// PlotArea returns the plot area.
func (r *Recorder) PlotArea() Area {
	return r.area
}

// PixelToTime maps px in [0, width] onto the frame's x range.
func (r *Recorder) PixelToTime(px float64) float64 {
	if r.snap.Frame == nil || r.area.Width <= 0 {
		return 0
	}

	x := r.snap.Frame.XRange

	return x.Start + px/r.area.Width*x.Width()
}

// TimeToPixel is the inverse of PixelToTime, relative to the canvas.
func (r *Recorder) TimeToPixel(t float64) float64 {
	if r.snap.Frame == nil || r.snap.Frame.XRange.Width() == 0 {
		return r.area.Left
	}

	x := r.snap.Frame.XRange

	return r.area.Left + (t-x.Start)/x.Width()*r.area.Width
}

// ShowTooltip records a hover tooltip.
func (r *Recorder) ShowTooltip(view *tooltip.View, pos Position, noFade bool) {
	r.snap.Tooltip = &TooltipState{View: view, Position: pos, NoFade: noFade}
}

// HideTooltip clears the tooltip.
func (r *Recorder) HideTooltip() {
	r.snap.Tooltip = nil
}

// PinTooltip records a pinned tooltip.
func (r *Recorder) PinTooltip(view *tooltip.View, url string) {
	pos := Position{}
	if r.snap.Tooltip != nil {
		pos = r.snap.Tooltip.Position
	}

	r.snap.Tooltip = &TooltipState{View: view, Position: pos, Pinned: true, URL: url}
}

// ShowHighlight records the highlight band.
func (r *Recorder) ShowHighlight(band Band) {
	r.snap.Highlight = &band
}

// HideHighlight clears the highlight band.
func (r *Recorder) HideHighlight() {
	r.snap.Highlight = nil
}

// SetZoomOutVisible records the zoom-out control state.
func (r *Recorder) SetZoomOutVisible(visible bool) {
	r.snap.ZoomOut = visible
}

// Alert records a user-visible alert.
func (r *Recorder) Alert(msg string) {
	r.snap.Alerts = append(r.snap.Alerts, msg)
}

// Snapshot returns the recorded state.
func (r *Recorder) Snapshot() Snapshot {
	return r.snap
}

// TakeAlerts returns and clears the recorded alerts.
func (r *Recorder) TakeAlerts() []string {
	alerts := r.snap.Alerts
	r.snap.Alerts = nil

	return alerts
}
