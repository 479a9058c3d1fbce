// Package tooltip builds the detail view shown when hovering or clicking a
// plotted point.
package tooltip

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/units"
)

// Sentinel errors.
var (
	ErrNullPoint     = errors.New("null point has no tooltip")
	ErrPointIndex    = errors.New("point index out of range")
	ErrUnknownCommit = errors.New("unknown commit")
	ErrUnknownMetric = errors.New("unknown metric")
)

// significantRatio is the relative change above which a delta is flagged.
const significantRatio = 0.02

// Sign classifies a delta.
type Sign string

// Delta signs, used as CSS classes by the HTML renderer.
const (
	SignNegative Sign = "neg"
	SignEqual    Sign = "equ"
	SignPositive Sign = "pos"
)

// Delta is the change against the previous measured commit.
type Delta struct {
	Value       float64 `json:"value"`
	Text        string  `json:"text"`
	Sign        Sign    `json:"sign"`
	Significant bool    `json:"significant"`
	Against     string  `json:"against"`
}

// CommitInfo is the displayed metadata of one commit.
type CommitInfo struct {
	ID       string `json:"id"`
	ShortID  string `json:"short_id"`
	URL      string `json:"url,omitempty"`
	Summary  string `json:"summary"`
	Message  string `json:"message"`
	Time     int64  `json:"time"`
	TimeText string `json:"time_text"`
}

// RangeInfo describes a condensed point covering several commits.
type RangeInfo struct {
	Count int        `json:"count"`
	First CommitInfo `json:"first"`
	Last  CommitInfo `json:"last"`
	URL   string     `json:"url,omitempty"`
}

// GapNote discloses commits hidden between a point and the previous
// measurement: untested commits, or a previous commit that failed or has a
// row without value or error.
type GapNote struct {
	Untested        int         `json:"untested,omitempty"`
	Since           *CommitInfo `json:"since,omitempty"`
	PreviousFailed  bool        `json:"previous_failed,omitempty"`
	PreviousMissing bool        `json:"previous_missing,omitempty"`
	Previous        *CommitInfo `json:"previous,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// Text renders the note as one sentence.
func (g *GapNote) Text() string {
	if g == nil {
		return ""
	}

	var parts []string

	if g.Untested > 0 && g.Since != nil {
		noun := "commits"
		if g.Untested == 1 {
			noun = "commit"
		}

		parts = append(parts, fmt.Sprintf("%d untested %s since %s (%s)", g.Untested, noun, g.Since.ShortID, g.Since.TimeText))
	}

	if g.PreviousFailed && g.Previous != nil {
		msg := "previous commit " + g.Previous.ShortID + " failed to build"
		if g.Error != "" {
			msg += ": " + g.Error
		}

		parts = append(parts, msg+"; its result is not shown")
	}

	if g.PreviousMissing && g.Previous != nil {
		parts = append(parts, "previous commit "+g.Previous.ShortID+" has no result")
	}

	return strings.Join(parts, "; ")
}

// View is the rendered tooltip model of one point.
type View struct {
	MetricID    string      `json:"metric"`
	MetricName  string      `json:"metric_name"`
	Description string      `json:"description,omitempty"`
	Unit        units.Unit  `json:"unit"`
	Time        float64     `json:"time"`
	Value       float64     `json:"value"`
	ValueText   string      `json:"value_text"`
	Delta       *Delta      `json:"delta,omitempty"`
	Commit      *CommitInfo `json:"commit,omitempty"`
	Range       *RangeInfo  `json:"range,omitempty"`
	Gap         *GapNote    `json:"gap,omitempty"`
}

// URL is the link a click on the point opens: the commit, or the range for
// condensed points.
func (v *View) URL() string {
	if v.Range != nil {
		return v.Range.URL
	}

	if v.Commit != nil {
		return v.Commit.URL
	}

	return ""
}

// Presenter builds tooltip views from condensed series.
type Presenter struct {
	index *timeline.Index
	links LinkFormatter
}

// NewPresenter creates a presenter. A nil formatter produces no URLs.
func NewPresenter(idx *timeline.Index, links LinkFormatter) (*Presenter, error) {
	if idx == nil {
		return nil, errors.New("tooltip: nil timeline index")
	}

	if links == nil {
		links = TemplateLinks{}
	}

	return &Presenter{index: idx, links: links}, nil
}

// Present builds the view of the point at pointIndex of series.
func (p *Presenter) Present(series condense.Series, pointIndex int, metricID string) (*View, error) {
	if pointIndex < 0 || pointIndex >= len(series.Points) || pointIndex >= len(series.Info) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPointIndex, pointIndex, len(series.Points))
	}

	point, info := series.Points[pointIndex], series.Info[pointIndex]
	if point.IsNull() || info.FirstRev == "" {
		return nil, ErrNullPoint
	}

	metric, ok := p.index.Metric(metricID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metricID)
	}

	first, ok := p.index.Commit(info.FirstRev)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommit, info.FirstRev)
	}

	plotted := first
	if info.Rev != "" {
		plotted, ok = p.index.Commit(info.Rev)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCommit, info.Rev)
		}
	}

	view := p.base(metric, *point.Value, plotted)
	view.Time = point.Time

	if info.Condensed() {
		last, found := p.index.Commit(info.LastRev)
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCommit, info.LastRev)
		}

		from := first
		if first.Prev != nil {
			from = first.Prev
		}

		view.Range = &RangeInfo{
			Count: info.NumRevs,
			First: p.commitInfo(first),
			Last:  p.commitInfo(last),
			URL:   p.links.RangeURL(from, last),
		}
	} else {
		ci := p.commitInfo(first)
		view.Commit = &ci
	}

	view.Gap = p.gap(first, metricID)

	return view, nil
}

// PresentCommit builds the view of a single commit's measurement.
func (p *Presenter) PresentCommit(metricID, rev string) (*View, error) {
	metric, ok := p.index.Metric(metricID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metricID)
	}

	c, ok := p.index.Commit(rev)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommit, rev)
	}

	v, ok := c.Value(metricID)
	if !ok {
		return nil, ErrNullPoint
	}

	view := p.base(metric, v, c)
	view.Time = float64(c.Time)

	ci := p.commitInfo(c)
	view.Commit = &ci
	view.Gap = p.gap(c, metricID)

	return view, nil
}

func (p *Presenter) base(metric timeline.Metric, value float64, plotted *timeline.Commit) *View {
	view := &View{
		MetricID:    metric.ID,
		MetricName:  metric.Name,
		Description: metric.Description,
		Unit:        metric.Unit,
		Value:       value,
		ValueText:   units.FormatValue(value, metric.Unit),
	}

	if prev, prevValue, ok := plotted.PreviousValue(metric.ID); ok {
		view.Delta = newDelta(value, prevValue, metric.Unit)
		view.Delta.Against = prev.ID
	}

	return view
}

func (p *Presenter) gap(c *timeline.Commit, metricID string) *GapNote {
	prior, skipped := c.PreviousResult(metricID)
	if prior == nil {
		return nil
	}

	r, _ := prior.Result(metricID)

	note := &GapNote{}
	if skipped > 0 {
		ci := p.commitInfo(prior)
		note.Untested = skipped
		note.Since = &ci
	}

	switch {
	case r.Failed:
		ci := p.commitInfo(prior)
		note.PreviousFailed = true
		note.Previous = &ci
		note.Error = r.Error
	case !r.Valid:
		ci := p.commitInfo(prior)
		note.PreviousMissing = true
		note.Previous = &ci
	}

	if note.Untested == 0 && note.Previous == nil {
		return nil
	}

	return note
}

func (p *Presenter) commitInfo(c *timeline.Commit) CommitInfo {
	return CommitInfo{
		ID:       c.ID,
		ShortID:  c.ShortID(),
		URL:      p.links.CommitURL(c),
		Summary:  c.Summary(),
		Message:  c.Message,
		Time:     c.Time,
		TimeText: PrettyDate(c.Time),
	}
}

func newDelta(value, previous float64, unit units.Unit) *Delta {
	d := value - previous

	delta := &Delta{Value: d}

	switch {
	case d < 0:
		delta.Sign = SignNegative
		delta.Text = "Δ -" + units.FormatValue(-d, unit)
	case d == 0:
		delta.Sign = SignEqual
		delta.Text = "Δ " + units.FormatValue(d, unit)
	default:
		delta.Sign = SignPositive
		delta.Text = "Δ " + units.FormatValue(d, unit)
	}

	if value == 0 {
		delta.Significant = d != 0
	} else {
		delta.Significant = math.Abs(d)/math.Abs(value) > significantRatio
	}

	return delta
}

// PrettyDate formats a timestamp in UTC, dropping the clock for exact
// midnights.
func PrettyDate(ts int64) string {
	s := time.Unix(ts, 0).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")

	return strings.TrimSuffix(s, " 00:00:00 GMT")
}
