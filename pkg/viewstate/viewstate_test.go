package viewstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/viewstate"
)

func TestDecode_Fragment(t *testing.T) {
	t.Parallel()

	s := viewstate.Decode("#build-size;;1000;2000", "default")

	assert.Equal(t, "build-size", s.Metric)
	assert.Empty(t, s.Pinned)
	require.NotNil(t, s.Zoom)
	assert.Equal(t, timeline.Range{Start: 1000, Stop: 2000}, *s.Zoom)
}

func TestDecode_Tolerant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fragment string
		want     viewstate.State
	}{
		{"empty", "", viewstate.Default("def")},
		{"hash only", "#", viewstate.Default("def")},
		{"too few fields", "#size;a,b", viewstate.Default("def")},
		{"bad zoom", "#size;;abc;2000", viewstate.State{Metric: "size"}},
		{"empty zoom", "size;b,a;;", viewstate.State{Metric: "size", Pinned: []string{"a", "b"}}},
		{"inverted zoom", "size;;5;1", viewstate.State{Metric: "size"}},
		{"empty metric", ";;;", viewstate.Default("def")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := viewstate.Decode(tt.fragment, "def")
			assert.True(t, tt.want.Equal(got), "got %+v", got)
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	s := viewstate.State{
		Metric: "size",
		Pinned: []string{"time", "mem", "time"},
		Zoom:   &timeline.Range{Start: 1000.5, Stop: 2000},
	}

	assert.Equal(t, "size;mem,time;1000.5;2000", viewstate.Encode(s))
	assert.Equal(t, "size;;;", viewstate.Encode(viewstate.Default("size")))
	assert.Equal(t, "a%3Bb;c%2Cd;;", viewstate.Encode(viewstate.State{Metric: "a;b", Pinned: []string{"c,d"}}))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	states := []viewstate.State{
		viewstate.Default("size"),
		{Metric: "size", Pinned: []string{"b", "a"}},
		{Metric: "Build - Size", Pinned: []string{"x;y", "p,q"}, Zoom: &timeline.Range{Start: -5, Stop: 1.25e9}},
		{Metric: "m", Zoom: &timeline.Range{Start: 1, Stop: 1}},
	}

	for _, s := range states {
		got := viewstate.Decode("#"+viewstate.Encode(s), "other")
		assert.True(t, s.Equal(got), "state %+v decoded as %+v", s, got)
	}
}

func TestState_Equal(t *testing.T) {
	t.Parallel()

	a := viewstate.State{Metric: "m", Pinned: []string{"x"}}
	assert.True(t, a.Equal(viewstate.State{Metric: "m", Pinned: []string{"x", "x"}}))
	assert.False(t, a.Equal(viewstate.State{Metric: "m"}))
	assert.False(t, a.Equal(viewstate.State{Metric: "m", Pinned: []string{"x"}, Zoom: &timeline.Range{}}))
	assert.False(t, a.Zoomed())
}

func TestNormalizePins(t *testing.T) {
	t.Parallel()

	assert.Nil(t, viewstate.NormalizePins(nil))
	assert.Nil(t, viewstate.NormalizePins([]string{""}))
	assert.Equal(t, []string{"a", "b"}, viewstate.NormalizePins([]string{"b", "a", "b", ""}))
}
