// Package condense reduces per-commit measurements to a bounded point series
// for a visible time window.
//
// Commits in the window are grouped into time buckets. Each bucket emits at
// most its first, minimum, maximum and last measured values, in timeline
// order, so spikes survive the reduction. Missing or failed measurements show
// up as null points that break the plotted line.
package condense

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
)

// Sentinel errors.
var (
	// ErrLengthMismatch signals a series whose points and build info differ in
	// length. It indicates a defect in the condenser, not in the data.
	ErrLengthMismatch = errors.New("condensed series length mismatch")
	ErrUnknownMetric  = errors.New("unknown metric")
	ErrInvalidRange   = errors.New("invalid condense range")
)

// DefaultMaxPoints is the default per-metric point budget. Zero disables
// grouping entirely.
const DefaultMaxPoints = 150

// Point is one plotted sample. A nil Value is a deliberate line break.
type Point struct {
	Time  float64
	Value *float64
}

// IsNull reports whether the point breaks the line.
func (p Point) IsNull() bool {
	return p.Value == nil
}

// MarshalJSON encodes the point as the renderer's [time, value|null] pair.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Time, p.Value})
}

// UnmarshalJSON decodes a [time, value|null] pair.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]*float64

	err := json.Unmarshal(data, &pair)
	if err != nil {
		return fmt.Errorf("decode point: %w", err)
	}

	if pair[0] == nil {
		return errors.New("decode point: missing time")
	}

	p.Time, p.Value = *pair[0], pair[1]

	return nil
}

// BuildInfo is the commit metadata behind a point. Rev is the commit whose
// value was plotted; FirstRev, LastRev, NumRevs and TimeRange describe every
// measured commit folded into the point's bucket. Null points have no revs.
type BuildInfo struct {
	Time      float64    `json:"time"`
	Rev       string     `json:"rev,omitempty"`
	FirstRev  string     `json:"firstrev,omitempty"`
	LastRev   string     `json:"lastrev,omitempty"`
	NumRevs   int        `json:"numrevs,omitempty"`
	TimeRange [2]float64 `json:"timerange"`
}

// Condensed reports whether the point stands for more than one commit.
func (b BuildInfo) Condensed() bool {
	return b.LastRev != ""
}

// Window is the inclusive commit index range a series was built from.
type Window struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Len is the number of commits in the window.
func (w Window) Len() int {
	return w.Hi - w.Lo + 1
}

// Series is the condensed output for one metric.
type Series struct {
	MetricID string      `json:"metric"`
	Points   []Point     `json:"data"`
	Info     []BuildInfo `json:"buildinfo"`
	Window   Window      `json:"window"`
}

// Extent returns the smallest and largest non-null values. ok is false when
// the series has no values.
func (s Series) Extent() (lo, hi float64, ok bool) {
	for _, p := range s.Points {
		if p.Value == nil {
			continue
		}

		v := *p.Value
		if !ok {
			lo, hi, ok = v, v, true

			continue
		}

		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	return lo, hi, ok
}

// Options selects the grouping mode for a condense call.
type Options struct {
	// MaxPoints is the approximate per-metric point budget; zero keeps every
	// commit in its own bucket.
	MaxPoints int
	// EvenSpacing spreads the windowed commits evenly over the window by
	// index, ignoring their timestamps.
	EvenSpacing bool
}

// Condenser condenses series from one timeline.
type Condenser struct {
	index  *timeline.Index
	logger *slog.Logger
}

// NewCondenser creates a condenser over idx. A nil logger uses slog.Default.
func NewCondenser(idx *timeline.Index, logger *slog.Logger) (*Condenser, error) {
	if idx == nil {
		return nil, errors.New("condense: nil timeline index")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Condenser{index: idx, logger: logger}, nil
}

// Index returns the timeline the condenser reads.
func (c *Condenser) Index() *timeline.Index {
	return c.index
}

// Condense builds one series per metric id for the inclusive window
// [start, stop].
func (c *Condenser) Condense(metricIDs []string, start, stop float64, maxPoints int, evenSpacing bool) ([]Series, error) {
	return c.CondenseWith(metricIDs, timeline.Range{Start: start, Stop: stop},
		Options{MaxPoints: maxPoints, EvenSpacing: evenSpacing})
}

// CondenseWith is Condense taking a range and options.
func (c *Condenser) CondenseWith(metricIDs []string, r timeline.Range, opts Options) ([]Series, error) {
	if r.Start > r.Stop || math.IsNaN(r.Start) || math.IsNaN(r.Stop) {
		return nil, fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, r.Start, r.Stop)
	}

	if opts.MaxPoints < 0 {
		return nil, fmt.Errorf("%w: negative max points %d", ErrInvalidRange, opts.MaxPoints)
	}

	for _, id := range metricIDs {
		if _, ok := c.index.Metric(id); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, id)
		}
	}

	win := c.window(r)
	buckets := c.buckets(win, r, opts)

	out := make([]Series, 0, len(metricIDs))

	for _, id := range metricIDs {
		s := c.reduce(id, win, buckets)

		if len(s.Points) != len(s.Info) {
			c.logger.Error("condensed series length mismatch",
				"metric", id, "points", len(s.Points), "buildinfo", len(s.Info))

			return nil, fmt.Errorf("%w: metric %q has %d points and %d build infos",
				ErrLengthMismatch, id, len(s.Points), len(s.Info))
		}

		out = append(out, s)
	}

	return out, nil
}

// window finds the windowed commits: one commit of overhang before the first
// commit at or after start, and through the first commit after stop.
func (c *Condenser) window(r timeline.Range) Window {
	last := c.index.Len() - 1

	return Window{
		Lo: max(c.index.SearchTime(r.Start)-1, 0),
		Hi: min(c.index.SearchAfter(r.Stop), last),
	}
}

// bucket is a run of windowed commits sharing one quantized time.
type bucket struct {
	time   float64
	lo, hi int // inclusive commit indices
}

func (c *Condenser) buckets(win Window, r timeline.Range, opts Options) []bucket {
	groupDist := 0.0
	if opts.MaxPoints > 0 {
		groupDist = math.Round(r.Width() / float64(opts.MaxPoints))
	}

	groupIn := func(t float64) float64 {
		if groupDist <= 0 {
			return t
		}

		return t - math.Mod(t, groupDist)
	}

	n := win.Len()
	out := make([]bucket, 0, min(n, max(opts.MaxPoints, 1)))

	for i := win.Lo; i <= win.Hi; i++ {
		t := float64(c.index.At(i).Time)
		if opts.EvenSpacing {
			t = r.Start
			if n > 1 {
				t += float64(i-win.Lo) * r.Width() / float64(n-1)
			}
		}

		bt := groupIn(t)

		if len(out) > 0 && out[len(out)-1].time == bt {
			out[len(out)-1].hi = i

			continue
		}

		out = append(out, bucket{time: bt, lo: i, hi: i})
	}

	return out
}

func (c *Condenser) reduce(metricID string, win Window, buckets []bucket) Series {
	s := Series{MetricID: metricID, Window: win}

	for _, b := range buckets {
		c.reduceBucket(&s, metricID, b)
	}

	return s
}

// reduceBucket appends the bucket's boundary samples to s.
func (c *Condenser) reduceBucket(s *Series, metricID string, b bucket) {
	first, last, lo, hi := -1, -1, -1, -1

	var (
		minV, maxV float64
		info       = BuildInfo{Time: b.time}
	)

	for i := b.lo; i <= b.hi; i++ {
		commit := c.index.At(i)

		v, ok := commit.Value(metricID)
		if !ok {
			continue
		}

		if first < 0 {
			first, lo, hi = i, i, i
			minV, maxV = v, v
			info.FirstRev = commit.ID
			info.NumRevs = 1
			info.TimeRange = [2]float64{float64(commit.Time), float64(commit.Time)}
		} else {
			info.LastRev = commit.ID
			info.NumRevs++
			info.TimeRange[1] = float64(commit.Time)

			if v < minV {
				lo, minV = i, v
			}

			if v > maxV {
				hi, maxV = i, v
			}
		}

		last = i
	}

	if first < 0 {
		s.appendNull(b.time)

		return
	}

	var (
		sawNull  bool
		previous *float64
	)

	for i := b.lo; i <= b.hi; i++ {
		commit := c.index.At(i)

		v, ok := commit.Value(metricID)
		if !ok {
			sawNull = true

			continue
		}

		if i != first && i != lo && i != hi && i != last {
			continue
		}

		if sawNull {
			s.appendNull(b.time)

			sawNull, previous = false, nil
		}

		if previous != nil && *previous == v {
			continue
		}

		value := v
		previous = &value

		pointInfo := info
		pointInfo.Rev = commit.ID

		s.Points = append(s.Points, Point{Time: b.time, Value: &value})
		s.Info = append(s.Info, pointInfo)
	}

	if sawNull {
		s.appendNull(b.time)
	}
}

func (s *Series) appendNull(t float64) {
	s.Points = append(s.Points, Point{Time: t})
	s.Info = append(s.Info, BuildInfo{Time: t, TimeRange: [2]float64{t, t}})
}
