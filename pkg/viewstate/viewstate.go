// Package viewstate encodes the dashboard view (selected metric, pinned
// metrics, zoom window) as a URL fragment and keeps the two in sync.
//
// The fragment form is
//
//	#<metric>;<pin1,pin2,...>;<zoomStart>;<zoomStop>
//
// with empty zoom fields meaning the full data range.
package viewstate

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
)

const (
	fieldSep = ";"
	pinSep   = ","
	// fieldCount is the number of fields in a well-formed fragment.
	fieldCount = 4
)

// State is the serializable projection of the dashboard view.
type State struct {
	Metric string          `json:"metric"`
	Pinned []string        `json:"pinned,omitempty"`
	Zoom   *timeline.Range `json:"zoom,omitempty"`
}

// Default is the state with the given metric, no pins and no zoom.
func Default(metric string) State {
	return State{Metric: metric}
}

// Zoomed reports whether the state carries a zoom window.
func (s State) Zoomed() bool {
	return s.Zoom != nil
}

// Equal compares states by value.
func (s State) Equal(o State) bool {
	if s.Metric != o.Metric || !slices.Equal(NormalizePins(s.Pinned), NormalizePins(o.Pinned)) {
		return false
	}

	if s.Zoom == nil || o.Zoom == nil {
		return s.Zoom == nil && o.Zoom == nil
	}

	return *s.Zoom == *o.Zoom
}

// NormalizePins returns the pins sorted and deduplicated, nil when empty.
func NormalizePins(pins []string) []string {
	out := make([]string, 0, len(pins))

	for _, p := range pins {
		if p != "" {
			out = append(out, p)
		}
	}

	if len(out) == 0 {
		return nil
	}

	slices.Sort(out)

	return slices.Compact(out)
}

// Encode renders the state as a fragment without the leading '#'.
func Encode(s State) string {
	pins := NormalizePins(s.Pinned)

	escaped := make([]string, len(pins))
	for i, p := range pins {
		escaped[i] = url.PathEscape(p)
	}

	var start, stop string
	if s.Zoom != nil {
		start = formatNumber(s.Zoom.Start)
		stop = formatNumber(s.Zoom.Stop)
	}

	return strings.Join([]string{
		url.PathEscape(s.Metric),
		strings.Join(escaped, pinSep),
		start,
		stop,
	}, fieldSep)
}

// Decode parses a fragment, with or without its leading '#'. Empty or
// malformed fragments yield the default state; unparsable zoom fields leave
// the view unzoomed.
func Decode(fragment, defaultMetric string) State {
	fragment = strings.TrimPrefix(fragment, "#")

	fields := strings.Split(fragment, fieldSep)
	if fragment == "" || len(fields) < fieldCount {
		return Default(defaultMetric)
	}

	s := State{Metric: unescape(fields[0])}
	if s.Metric == "" {
		s.Metric = defaultMetric
	}

	if fields[1] != "" {
		var pins []string
		for _, p := range strings.Split(fields[1], pinSep) {
			pins = append(pins, unescape(p))
		}

		s.Pinned = NormalizePins(pins)
	}

	start, errStart := strconv.ParseFloat(fields[2], 64)
	stop, errStop := strconv.ParseFloat(fields[3], 64)

	if errStart == nil && errStop == nil && start <= stop {
		s.Zoom = &timeline.Range{Start: start, Stop: stop}
	}

	return s
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func unescape(s string) string {
	u, err := url.PathUnescape(s)
	if err != nil {
		return s
	}

	return u
}
