// Package units provides measurement units and their human-readable formatting.
//
// Byte values scale with 1024-based multipliers (B, KiB, MiB, GiB), durations
// in nanoseconds scale by 1000 (ns, μs, ms, s) and every other unit is treated
// as a generic countable amount (plain, K, M).
package units

import (
	"math"

	"github.com/dustin/go-humanize"
)

// Binary size multipliers.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// Decimal multipliers used for durations and amounts.
const (
	thousand = 1000
	million  = thousand * thousand
	billion  = thousand * million
)

// scaleSwitch is how many units of the next scale a reference value must
// reach before the next scale is used. 1500 bytes stays "1,500.00B".
const scaleSwitch = 2

// prettyFormat is the humanize pattern for comma grouping with two decimals.
const prettyFormat = "#,###.##"

// Unit identifies how a metric's values are measured.
type Unit string

// Known units. Any other string is formatted as an Amount.
const (
	Bytes       Unit = "bytes"
	Nanoseconds Unit = "nanoseconds"
	Amount      Unit = "amount"
)

// Parse normalizes a raw unit string from a dataset.
func Parse(raw string) Unit {
	switch Unit(raw) {
	case Bytes:
		return Bytes
	case Nanoseconds:
		return Nanoseconds
	default:
		return Amount
	}
}

// AxisFloor is the minimum value-axis ceiling for the unit. It keeps an axis
// readable when the visible window has no or only tiny values.
func (u Unit) AxisFloor() float64 {
	if u == Bytes {
		return KiB
	}

	return thousand
}

// TickBase is the base whose powers value-axis tick intervals are rounded to.
func (u Unit) TickBase() float64 {
	if u == Bytes {
		return 2
	}

	return 10
}

// PrettyFloat renders a float rounded to two decimals with comma grouping:
// 12039123.439 becomes "12,039,123.44". Values that round to zero are "0".
func PrettyFloat(v float64) string {
	if math.Round(v*100) == 0 {
		return "0"
	}

	return humanize.FormatFloat(prettyFormat, v)
}

// Format renders raw in the given unit, choosing the scale from ref so that a
// set of values (for example axis labels) shares one scale.
func Format(raw float64, unit Unit, ref float64) string {
	ref = math.Abs(ref)

	switch unit {
	case Bytes:
		return formatBytes(raw, ref)
	case Nanoseconds:
		return formatDuration(raw, ref)
	default:
		return formatAmount(raw, ref)
	}
}

// FormatValue renders raw in the given unit using its own magnitude as scale.
func FormatValue(raw float64, unit Unit) string {
	return Format(raw, unit, raw)
}

func formatBytes(raw, ref float64) string {
	switch {
	case ref/KiB < scaleSwitch:
		return PrettyFloat(raw) + "B"
	case ref/MiB < scaleSwitch:
		return PrettyFloat(raw/KiB) + "KiB"
	case ref/GiB < scaleSwitch:
		return PrettyFloat(raw/MiB) + "MiB"
	default:
		return PrettyFloat(raw/GiB) + "GiB"
	}
}

func formatDuration(raw, ref float64) string {
	switch {
	case ref/thousand < scaleSwitch:
		return PrettyFloat(raw) + "ns"
	case ref/million < scaleSwitch:
		return PrettyFloat(raw/thousand) + "μs"
	case ref/billion < scaleSwitch:
		return PrettyFloat(raw/million) + "ms"
	default:
		return PrettyFloat(raw/billion) + "s"
	}
}

func formatAmount(raw, ref float64) string {
	switch {
	case ref/thousand < scaleSwitch:
		return PrettyFloat(raw)
	case ref/million < scaleSwitch:
		return PrettyFloat(raw/thousand) + "K"
	default:
		return PrettyFloat(raw/million) + "M"
	}
}
