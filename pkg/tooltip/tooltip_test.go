package tooltip_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/tooltip"
)

func f(v float64) *float64 { return &v }

var links = tooltip.TemplateLinks{
	Commit: "https://git.example/commit/{rev}",
	Range:  "https://git.example/compare/{from}..{to}",
}

// fixture: c0=1000, c1 untested, c2 failed, c3=1010, c4=2000, c5=2000.
func fixture(t *testing.T) (*timeline.Index, *condense.Condenser, *tooltip.Presenter) {
	t.Helper()

	ds := &dataset.Dataset{
		Commits: []dataset.Commit{
			{Commit: "c0", Time: 0, Message: "base"},
			{Commit: "c1", Time: 86400, Message: "docs only"},
			{Commit: "c2", Time: 2 * 86400, Message: "broken"},
			{Commit: "c3", Time: 3 * 86400, Message: "fix build\n\ndetails"},
			{Commit: "c4", Time: 4*86400 + 3600, Message: "grow"},
			{Commit: "c5", Time: 5 * 86400, Message: "same"},
		},
		Tests: []dataset.Test{{ID: "size", Name: "Build - Size", Unit: "bytes"}},
		Results: []dataset.Result{
			{Commit: "c0", TestID: "size", Value: f(1000)},
			{Commit: "c2", TestID: "size", Error: json.RawMessage(`"link error"`)},
			{Commit: "c3", TestID: "size", Value: f(1010)},
			{Commit: "c4", TestID: "size", Value: f(2000)},
			{Commit: "c5", TestID: "size", Value: f(2000)},
		},
	}

	idx, err := timeline.FromDataset(ds)
	require.NoError(t, err)

	c, err := condense.NewCondenser(idx, nil)
	require.NoError(t, err)

	p, err := tooltip.NewPresenter(idx, links)
	require.NoError(t, err)

	return idx, c, p
}

func pointFor(t *testing.T, s condense.Series, rev string) int {
	t.Helper()

	for i, info := range s.Info {
		if info.Rev == rev {
			return i
		}
	}

	require.FailNow(t, "no point for "+rev)

	return -1
}

func TestPresent_SingleCommitWithFailedPredecessor(t *testing.T) {
	t.Parallel()

	idx, c, p := fixture(t)

	r := idx.DataRange()
	out, err := c.Condense([]string{"size"}, r.Start, r.Stop, 0, false)
	require.NoError(t, err)

	view, err := p.Present(out[0], pointFor(t, out[0], "c3"), "size")
	require.NoError(t, err)

	assert.Equal(t, "1,010.00B", view.ValueText)
	require.NotNil(t, view.Commit)
	assert.Equal(t, "https://git.example/commit/c3", view.Commit.URL)
	assert.Equal(t, "fix build", view.Commit.Summary)
	assert.Equal(t, "Sun, 04 Jan 1970", view.Commit.TimeText)
	assert.Nil(t, view.Range)

	// Delta skips the failed and untested commits back to c0.
	require.NotNil(t, view.Delta)
	assert.Equal(t, "c0", view.Delta.Against)
	assert.Equal(t, tooltip.SignPositive, view.Delta.Sign)
	assert.False(t, view.Delta.Significant, "1% change is below the threshold")

	require.NotNil(t, view.Gap)
	assert.True(t, view.Gap.PreviousFailed)
	assert.Equal(t, "c2", view.Gap.Previous.ID)
	assert.Equal(t, "link error", view.Gap.Error)
	assert.Contains(t, view.Gap.Text(), "failed to build")
	assert.Equal(t, view.Commit.URL, view.URL())
}

func TestPresent_PredecessorWithoutResultIsNotAFailure(t *testing.T) {
	t.Parallel()

	ds := &dataset.Dataset{
		Commits: []dataset.Commit{
			{Commit: "a0", Time: 0, Message: "base"},
			{Commit: "a1", Time: 86400, Message: "skipped run"},
			{Commit: "a2", Time: 2 * 86400, Message: "next"},
		},
		Tests: []dataset.Test{{ID: "size", Name: "Build - Size", Unit: "bytes"}},
		Results: []dataset.Result{
			{Commit: "a0", TestID: "size", Value: f(1000)},
			{Commit: "a1", TestID: "size"},
			{Commit: "a2", TestID: "size", Value: f(1100)},
		},
	}

	idx, err := timeline.FromDataset(ds)
	require.NoError(t, err)

	p, err := tooltip.NewPresenter(idx, links)
	require.NoError(t, err)

	view, err := p.PresentCommit("size", "a2")
	require.NoError(t, err)

	require.NotNil(t, view.Gap)
	assert.False(t, view.Gap.PreviousFailed)
	assert.True(t, view.Gap.PreviousMissing)
	assert.Equal(t, "a1", view.Gap.Previous.ID)
	assert.Contains(t, view.Gap.Text(), "previous commit a1 has no result")
	assert.NotContains(t, view.Gap.Text(), "failed to build")
}

func TestPresentCommit(t *testing.T) {
	t.Parallel()

	_, _, p := fixture(t)

	view, err := p.PresentCommit("size", "c2")
	require.ErrorIs(t, err, tooltip.ErrNullPoint)
	assert.Nil(t, view)

	// c3 directly precedes c4 with a valid value: no gap to disclose.
	view, err = p.PresentCommit("size", "c4")
	require.NoError(t, err)
	assert.Nil(t, view.Gap)
	require.NotNil(t, view.Delta)
	assert.True(t, view.Delta.Significant)
	assert.Equal(t, "Δ 990.00B", view.Delta.Text)
}

func TestPresent_UntestedCommitsNote(t *testing.T) {
	t.Parallel()

	commits := []dataset.Commit{{Commit: "a", Time: 0}, {Commit: "b", Time: 1}, {Commit: "c", Time: 2}, {Commit: "d", Time: 3}}
	results := []dataset.Result{
		{Commit: "a", TestID: "m", Value: f(10)},
		{Commit: "d", TestID: "m", Value: f(9)},
	}

	idx, err := timeline.Build(commits, []dataset.Test{{ID: "m", Name: "M"}}, results)
	require.NoError(t, err)

	p, err := tooltip.NewPresenter(idx, nil)
	require.NoError(t, err)

	view, err := p.PresentCommit("m", "d")
	require.NoError(t, err)

	require.NotNil(t, view.Gap)
	assert.Equal(t, 2, view.Gap.Untested)
	assert.Equal(t, "a", view.Gap.Since.ID)
	assert.False(t, view.Gap.PreviousFailed)
	assert.Contains(t, view.Gap.Text(), "2 untested commits since a")

	require.NotNil(t, view.Delta)
	assert.Equal(t, tooltip.SignNegative, view.Delta.Sign)
	assert.Equal(t, "Δ -1.00", view.Delta.Text)
	assert.True(t, view.Delta.Significant)
	assert.Empty(t, view.Commit.URL, "no templates, no links")
}

func TestPresent_CondensedRange(t *testing.T) {
	t.Parallel()

	idx, c, p := fixture(t)

	r := idx.DataRange()
	out, err := c.Condense([]string{"size"}, r.Start, r.Stop+86400*10, 1, false)
	require.NoError(t, err)

	s := out[0]
	i := pointFor(t, s, "c4")

	view, err := p.Present(s, i, "size")
	require.NoError(t, err)

	require.NotNil(t, view.Range)
	assert.Nil(t, view.Commit)
	assert.Equal(t, 4, view.Range.Count)
	assert.Equal(t, "c0", view.Range.First.ID)
	assert.Equal(t, "c5", view.Range.Last.ID)
	assert.Equal(t, "https://git.example/compare/c0..c5", view.Range.URL, "first commit has no predecessor")
	assert.Equal(t, view.Range.URL, view.URL())

	// Delta is computed on the plotted commit, not the bucket's first commit.
	require.NotNil(t, view.Delta)
	assert.Equal(t, "c3", view.Delta.Against)
}

func TestPresent_RangeURLIsHalfOpen(t *testing.T) {
	t.Parallel()

	commits := []dataset.Commit{{Commit: "a", Time: 0}, {Commit: "b", Time: 100}, {Commit: "c", Time: 101}}
	results := []dataset.Result{
		{Commit: "a", TestID: "m", Value: f(1)},
		{Commit: "b", TestID: "m", Value: f(2)},
		{Commit: "c", TestID: "m", Value: f(3)},
	}

	idx, err := timeline.Build(commits, []dataset.Test{{ID: "m"}}, results)
	require.NoError(t, err)

	c, err := condense.NewCondenser(idx, nil)
	require.NoError(t, err)

	out, err := c.Condense([]string{"m"}, 0, 200, 2, false)
	require.NoError(t, err)

	p, err := tooltip.NewPresenter(idx, links)
	require.NoError(t, err)

	view, err := p.Present(out[0], pointFor(t, out[0], "c"), "m")
	require.NoError(t, err)
	require.NotNil(t, view.Range)
	assert.Equal(t, "https://git.example/compare/a..c", view.Range.URL)
}

func TestPresent_Errors(t *testing.T) {
	t.Parallel()

	idx, c, p := fixture(t)

	r := idx.DataRange()
	out, err := c.Condense([]string{"size"}, r.Start, r.Stop, 0, false)
	require.NoError(t, err)

	s := out[0]

	nullIdx := -1

	for i, pt := range s.Points {
		if pt.IsNull() {
			nullIdx = i

			break
		}
	}

	require.GreaterOrEqual(t, nullIdx, 0)

	_, err = p.Present(s, nullIdx, "size")
	require.ErrorIs(t, err, tooltip.ErrNullPoint)

	_, err = p.Present(s, len(s.Points), "size")
	require.ErrorIs(t, err, tooltip.ErrPointIndex)

	_, err = p.Present(s, pointFor(t, s, "c0"), "nope")
	require.ErrorIs(t, err, tooltip.ErrUnknownMetric)

	_, err = p.PresentCommit("size", "zzz")
	require.ErrorIs(t, err, tooltip.ErrUnknownCommit)

	_, err = tooltip.NewPresenter(nil, nil)
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	t.Parallel()

	_, _, p := fixture(t)

	view, err := p.PresentCommit("size", "c3")
	require.NoError(t, err)

	var html bytes.Buffer
	require.NoError(t, tooltip.RenderHTML(&html, view))
	assert.Contains(t, html.String(), `class="delta pos"`)
	assert.Contains(t, html.String(), `href="https://git.example/commit/c3"`)
	assert.Contains(t, html.String(), "failed to build")

	var text bytes.Buffer
	require.NoError(t, tooltip.WriteText(&text, view))
	assert.Contains(t, text.String(), "Build - Size")
	assert.Contains(t, text.String(), "value: 1,010.00B")
	assert.Contains(t, text.String(), "commit c3")
	assert.Contains(t, text.String(), "note: previous commit c2 failed to build")
}

func TestPrettyDate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Thu, 01 Jan 1970", tooltip.PrettyDate(0))
	assert.Equal(t, "Thu, 01 Jan 1970 01:00:00 GMT", tooltip.PrettyDate(3600))
}
