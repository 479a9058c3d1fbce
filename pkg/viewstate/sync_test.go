package viewstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
	"github.com/Sumatoshi-tech/trendscope/pkg/viewstate"
)

func TestSyncer_WriteDoesNotReapply(t *testing.T) {
	t.Parallel()

	frag := viewstate.NewMemoryFragment("")

	var applied []viewstate.State

	syncer := viewstate.NewSyncer(frag, "size", func(s viewstate.State) { applied = append(applied, s) })
	frag.OnChange(syncer.HandleChange)

	syncer.Write(viewstate.State{Metric: "time", Zoom: &timeline.Range{Start: 1, Stop: 2}})

	assert.Equal(t, "time;;1;2", frag.Get())
	assert.Empty(t, applied, "programmatic writes must not reach the listener")
	assert.False(t, syncer.Updating())
}

func TestSyncer_NavigationApplies(t *testing.T) {
	t.Parallel()

	frag := viewstate.NewMemoryFragment("")

	var applied []viewstate.State

	syncer := viewstate.NewSyncer(frag, "size", func(s viewstate.State) { applied = append(applied, s) })
	frag.OnChange(syncer.HandleChange)

	frag.Set("#mem;size;10;20")

	require.Len(t, applied, 1)
	assert.Equal(t, "mem", applied[0].Metric)
	assert.Equal(t, []string{"size"}, applied[0].Pinned)

	frag.Set("#mem;size;10;20")
	assert.Len(t, applied, 1, "unchanged fragments do not notify")

	assert.Equal(t, "mem", syncer.Read().Metric)
}

func TestSyncer_GuardHeldDuringSet(t *testing.T) {
	t.Parallel()

	frag := viewstate.NewMemoryFragment("")

	var sawGuard bool

	syncer := viewstate.NewSyncer(frag, "size", func(viewstate.State) {})
	frag.OnChange(func() {
		sawGuard = syncer.Updating()
		syncer.HandleChange()
	})

	syncer.Write(viewstate.Default("x"))
	assert.True(t, sawGuard)
}
