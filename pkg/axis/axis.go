// Package axis plans human-legible tick positions for the time and value
// axes of a plot.
package axis

import (
	"math"
	"time"

	"github.com/Sumatoshi-tech/trendscope/pkg/units"
)

// valueTickTarget is the approximate number of value-axis ticks.
const valueTickTarget = 10

// maxTicks bounds every tick plan so a degenerate range cannot loop forever.
const maxTicks = 4096

// Tick is a planned tick with its label.
type Tick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// timeRule is one row of the threshold table: ranges wider than threshold
// seconds round the start down with floor and advance by step.
type timeRule struct {
	threshold float64
	floor     func(time.Time) time.Time
	step      func(time.Time) time.Time
}

// timeRules is ordered from the coarsest granularity to the finest. Flooring
// with a rule also applies every finer rule's floor.
var timeRules = []timeRule{
	{
		threshold: 720 * 24 * 60 * 60,
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), time.January, t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		},
		step: func(t time.Time) time.Time { return t.AddDate(1, 0, 0) },
	},
	{
		threshold: 30 * 24 * 60 * 60,
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		},
		step: func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
	},
	{
		threshold: 24 * 60 * 60,
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, t.Minute(), t.Second(), 0, time.UTC)
		},
		step: func(t time.Time) time.Time { return t.AddDate(0, 0, 1) },
	},
	{
		threshold: 60 * 60,
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, t.Second(), 0, time.UTC)
		},
		step: func(t time.Time) time.Time { return t.Add(time.Hour) },
	},
	{
		threshold: 60,
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
		},
		step: func(t time.Time) time.Time { return t.Add(time.Minute) },
	},
	{
		threshold: 1,
		floor:     func(t time.Time) time.Time { return t.Truncate(time.Second) },
		step:      func(t time.Time) time.Time { return t.Add(time.Second) },
	},
}

// TimeTicks returns calendar-aligned tick timestamps (seconds since epoch)
// inside [lo, hi]. The granularity is the coarsest rule whose threshold the
// range exceeds; ranges of one second or less get no ticks.
func TimeTicks(lo, hi float64) []float64 {
	if !finite(lo) || !finite(hi) {
		return nil
	}

	width := hi - lo

	for i, rule := range timeRules {
		if width <= rule.threshold {
			continue
		}

		t := time.Unix(int64(math.Floor(lo)), 0).UTC()
		for _, finer := range timeRules[i:] {
			t = finer.floor(t)
		}

		var ticks []float64

		for ; len(ticks) < maxTicks; t = rule.step(t) {
			u := float64(t.Unix())
			if u > hi {
				break
			}

			if u >= lo {
				ticks = append(ticks, u)
			}
		}

		return ticks
	}

	return nil
}

// ValueTicks returns evenly spaced round tick values covering [lo, hi] for
// the unit. The axis top is at least the unit's floor, and the interval is
// rounded up to a power of the unit's tick base. Ticks start at zero unless lo
// is negative.
func ValueTicks(lo, hi float64, unit units.Unit) []float64 {
	if !finite(lo) {
		lo = 0
	}

	if !finite(hi) {
		hi = 0
	}

	axisMax := math.Max(hi, unit.AxisFloor())

	interval := roundUpPow(axisMax/valueTickTarget, unit.TickBase())

	top := math.Ceil(axisMax/interval) * interval

	bottom := 0.0
	if lo < 0 {
		bottom = math.Floor(lo/interval) * interval
	}

	n := int(math.Round((top-bottom)/interval)) + 1
	n = min(n, maxTicks)

	ticks := make([]float64, n)
	for k := range ticks {
		ticks[k] = bottom + float64(k)*interval
	}

	return ticks
}

// roundUpPow returns the smallest power of base that is >= v. Multiplying
// keeps exact powers exact where logarithms would not.
func roundUpPow(v, base float64) float64 {
	p := 1.0

	for p < v {
		p *= base
	}

	for p/base >= v {
		p /= base
	}

	return p
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// TimeLabel formats a tick timestamp as "2 Jan 2006" in UTC.
func TimeLabel(ts float64) string {
	return time.Unix(int64(ts), 0).UTC().Format("2 Jan 2006")
}

// ValueLabel formats a value tick on a scale shared by the whole axis.
func ValueLabel(v float64, unit units.Unit, axisMax float64) string {
	return units.Format(v, unit, axisMax)
}

// PlanTime returns labelled time ticks for [lo, hi].
func PlanTime(lo, hi float64) []Tick {
	values := TimeTicks(lo, hi)

	ticks := make([]Tick, len(values))
	for i, v := range values {
		ticks[i] = Tick{Value: v, Label: TimeLabel(v)}
	}

	return ticks
}

// PlanValue returns labelled value ticks for [lo, hi].
func PlanValue(lo, hi float64, unit units.Unit) []Tick {
	values := ValueTicks(lo, hi, unit)
	if len(values) == 0 {
		return nil
	}

	axisMax := values[len(values)-1]

	ticks := make([]Tick, len(values))
	for i, v := range values {
		ticks[i] = Tick{Value: v, Label: ValueLabel(v, unit, axisMax)}
	}

	return ticks
}
