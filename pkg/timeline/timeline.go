// Package timeline builds the ordered, linked commit index every other
// component reads from.
package timeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/units"
)

// ErrNoCommits is returned when a dataset has no commits, so no data range
// exists to plot.
var ErrNoCommits = errors.New("dataset has no commits")

// singlePointPad is added on both sides of the data range when every commit
// shares one timestamp.
const singlePointPad = 7 * 24 * 60 * 60

// Range is an inclusive [Start, Stop] window of commit timestamps.
type Range struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
}

// Width returns Stop - Start.
func (r Range) Width() float64 {
	return r.Stop - r.Start
}

// Contains reports whether t lies inside the range.
func (r Range) Contains(t float64) bool {
	return t >= r.Start && t <= r.Stop
}

// Result is one metric measurement on one commit. Valid is set for a
// successful numeric measurement; Failed for a non-null error payload.
type Result struct {
	Value  float64
	Valid  bool
	Failed bool
	Error  string
}

// Commit is one measured revision linked to its neighbours.
type Commit struct {
	ID      string
	Time    int64
	Message string
	Index   int
	Prev    *Commit
	Next    *Commit

	results map[string]Result
}

// Result returns the commit's result for a metric and whether one was filed.
func (c *Commit) Result(metricID string) (Result, bool) {
	r, ok := c.results[metricID]

	return r, ok
}

// Value returns the metric's measured value, or false when there is no data
// (missing row, null value or failed build).
func (c *Commit) Value(metricID string) (float64, bool) {
	r, ok := c.results[metricID]
	if !ok || !r.Valid {
		return 0, false
	}

	return r.Value, true
}

// Summary is the first line of the commit message.
func (c *Commit) Summary() string {
	first, _, _ := strings.Cut(c.Message, "\n")

	return strings.TrimSpace(first)
}

// ShortID is the first twelve characters of the revision id.
func (c *Commit) ShortID() string {
	const shortLen = 12

	if len(c.ID) <= shortLen {
		return c.ID
	}

	return c.ID[:shortLen]
}

// PreviousResult walks back from c to the nearest earlier commit that has a
// result row for the metric. skipped counts the commits in between without
// one. found is nil when no earlier commit has a result.
func (c *Commit) PreviousResult(metricID string) (found *Commit, skipped int) {
	for p := c.Prev; p != nil; p = p.Prev {
		if _, ok := p.results[metricID]; ok {
			return p, skipped
		}

		skipped++
	}

	return nil, skipped
}

// PreviousValue walks back to the nearest earlier commit with a valid value.
func (c *Commit) PreviousValue(metricID string) (*Commit, float64, bool) {
	for p := c.Prev; p != nil; p = p.Prev {
		if v, ok := p.Value(metricID); ok {
			return p, v, true
		}
	}

	return nil, 0, false
}

// MetricDelimiter separates the levels of a hierarchical metric name.
const MetricDelimiter = " - "

// Metric is a named, unit-tagged quantity.
type Metric struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Unit        units.Unit `json:"unit"`
	Description string     `json:"description"`
}

// Path splits the hierarchical name. A metric without a name uses its id.
func (m Metric) Path() []string {
	name := m.Name
	if name == "" {
		name = m.ID
	}

	return strings.Split(name, MetricDelimiter)
}

// Index is the immutable commit timeline built once per dataset.
type Index struct {
	commits   []*Commit
	byID      map[string]*Commit
	metrics   []Metric
	metricIDs map[string]int
	stats     dataset.Stats
	dropped   int
}

// FromDataset builds an index from a decoded dataset.
func FromDataset(ds *dataset.Dataset) (*Index, error) {
	idx, err := Build(ds.Commits, ds.Tests, ds.Results)
	if err != nil {
		return nil, err
	}

	idx.stats = ds.Stats

	return idx, nil
}

// Build files every result row into its commit and links commits in input
// order. Rows referencing unknown commits are dropped and counted; a later
// row for the same (commit, metric) pair replaces an earlier one.
func Build(commits []dataset.Commit, tests []dataset.Test, results []dataset.Result) (*Index, error) {
	if len(commits) == 0 {
		return nil, ErrNoCommits
	}

	idx := &Index{
		commits:   make([]*Commit, len(commits)),
		byID:      make(map[string]*Commit, len(commits)),
		metrics:   make([]Metric, 0, len(tests)),
		metricIDs: make(map[string]int, len(tests)),
	}

	var prev *Commit

	for i, raw := range commits {
		if _, dup := idx.byID[raw.Commit]; dup {
			return nil, fmt.Errorf("%w: duplicate commit %q", dataset.ErrInvalidDataset, raw.Commit)
		}

		c := &Commit{
			ID:      raw.Commit,
			Time:    raw.Time,
			Message: raw.Message,
			Index:   i,
			Prev:    prev,
			results: make(map[string]Result),
		}

		if prev != nil {
			prev.Next = c
		}

		idx.commits[i] = c
		idx.byID[c.ID] = c
		prev = c
	}

	for _, t := range tests {
		if _, dup := idx.metricIDs[t.ID]; dup {
			continue
		}

		idx.metricIDs[t.ID] = len(idx.metrics)
		idx.metrics = append(idx.metrics, Metric{
			ID:          t.ID,
			Name:        t.Name,
			Unit:        units.Parse(t.Unit),
			Description: t.Description,
		})
	}

	for _, raw := range results {
		c, ok := idx.byID[raw.Commit]
		if !ok {
			idx.dropped++

			continue
		}

		r := Result{Failed: raw.Failed(), Error: raw.ErrorText()}
		if raw.Value != nil && !r.Failed {
			r.Value = *raw.Value
			r.Valid = true
		}

		c.results[raw.TestID] = r
	}

	return idx, nil
}

// Len is the number of commits.
func (idx *Index) Len() int {
	return len(idx.commits)
}

// At returns the i-th commit in timeline order.
func (idx *Index) At(i int) *Commit {
	return idx.commits[i]
}

// Commits returns the ordered commits. Callers must not modify the slice.
func (idx *Index) Commits() []*Commit {
	return idx.commits
}

// Commit looks a commit up by id.
func (idx *Index) Commit(id string) (*Commit, bool) {
	c, ok := idx.byID[id]

	return c, ok
}

// Metric looks a metric up by id.
func (idx *Index) Metric(id string) (Metric, bool) {
	i, ok := idx.metricIDs[id]
	if !ok {
		return Metric{}, false
	}

	return idx.metrics[i], true
}

// Metrics returns metrics in dataset order.
func (idx *Index) Metrics() []Metric {
	return idx.metrics
}

// DefaultMetric is the first metric of the dataset, or "" when it has none.
func (idx *Index) DefaultMetric() string {
	if len(idx.metrics) == 0 {
		return ""
	}

	return idx.metrics[0].ID
}

// Dropped is the number of result rows whose commit was not in the timeline.
func (idx *Index) Dropped() int {
	return idx.dropped
}

// Stats returns the dataset's display statistics.
func (idx *Index) Stats() dataset.Stats {
	return idx.stats
}

// SearchTime returns the first index whose commit time is >= t, or Len().
func (idx *Index) SearchTime(t float64) int {
	return sort.Search(len(idx.commits), func(i int) bool {
		return float64(idx.commits[i].Time) >= t
	})
}

// SearchAfter returns the first index whose commit time is > t, or Len().
func (idx *Index) SearchAfter(t float64) int {
	return sort.Search(len(idx.commits), func(i int) bool {
		return float64(idx.commits[i].Time) > t
	})
}

// DataRange is the full time range of the timeline. A timeline whose commits
// all share one timestamp is padded by a week on each side.
func (idx *Index) DataRange() Range {
	r := Range{
		Start: float64(idx.commits[0].Time),
		Stop:  float64(idx.commits[len(idx.commits)-1].Time),
	}

	if r.Start == r.Stop {
		r.Start -= singlePointPad
		r.Stop += singlePointPad
	}

	return r
}
