package axis_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/trendscope/pkg/axis"
	"github.com/Sumatoshi-tech/trendscope/pkg/units"
)

func ts(year int, month time.Month, day, hour, minute int) float64 {
	return float64(time.Date(year, month, day, hour, minute, 0, 0, time.UTC).Unix())
}

func TestTimeTicks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		lo, hi float64
		want   []float64
	}{
		{
			name: "yearly",
			lo:   ts(2020, time.June, 1, 0, 0),
			hi:   ts(2023, time.June, 1, 0, 0),
			want: []float64{ts(2021, time.January, 1, 0, 0), ts(2022, time.January, 1, 0, 0), ts(2023, time.January, 1, 0, 0)},
		},
		{
			name: "monthly",
			lo:   ts(2024, time.January, 15, 0, 0),
			hi:   ts(2024, time.April, 15, 0, 0),
			want: []float64{ts(2024, time.February, 1, 0, 0), ts(2024, time.March, 1, 0, 0), ts(2024, time.April, 1, 0, 0)},
		},
		{
			name: "daily includes the upper bound",
			lo:   ts(2024, time.January, 1, 12, 0),
			hi:   ts(2024, time.January, 4, 0, 0),
			want: []float64{ts(2024, time.January, 2, 0, 0), ts(2024, time.January, 3, 0, 0), ts(2024, time.January, 4, 0, 0)},
		},
		{
			name: "hourly",
			lo:   ts(2024, time.January, 1, 0, 30),
			hi:   ts(2024, time.January, 1, 3, 0),
			want: []float64{ts(2024, time.January, 1, 1, 0), ts(2024, time.January, 1, 2, 0), ts(2024, time.January, 1, 3, 0)},
		},
		{
			name: "minutely",
			lo:   ts(2024, time.January, 1, 0, 0) + 30,
			hi:   ts(2024, time.January, 1, 0, 2),
			want: []float64{ts(2024, time.January, 1, 0, 1), ts(2024, time.January, 1, 0, 2)},
		},
		{
			name: "degenerate",
			lo:   100,
			hi:   100.5,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, axis.TimeTicks(tt.lo, tt.hi))
		})
	}
}

func TestTimeTicks_WithinBounds(t *testing.T) {
	t.Parallel()

	lo, hi := ts(2019, time.March, 3, 7, 0), ts(2019, time.March, 29, 7, 0)

	ticks := axis.TimeTicks(lo, hi)
	require.NotEmpty(t, ticks)

	for _, v := range ticks {
		assert.GreaterOrEqual(t, v, lo)
		assert.LessOrEqual(t, v, hi)
	}
}

func TestValueTicks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float64{0, 1000, 2000, 3000, 4000, 5000}, axis.ValueTicks(0, 5000, units.Amount))

	bytes := axis.ValueTicks(0, 0, units.Bytes)
	require.Len(t, bytes, 9)
	assert.InDelta(t, 128.0, bytes[1], 0)
	assert.InDelta(t, 1024.0, bytes[8], 0)

	floor := axis.ValueTicks(0, 3, units.Nanoseconds)
	require.Len(t, floor, 11)
	assert.InDelta(t, 1000.0, floor[10], 0)

	neg := axis.ValueTicks(-250, 800, units.Amount)
	require.Len(t, neg, 14)
	assert.InDelta(t, -300.0, neg[0], 0)
	assert.InDelta(t, 1000.0, neg[13], 0)

	mib := axis.ValueTicks(0, 3*units.MiB, units.Bytes)
	require.Len(t, mib, 7)
	assert.InDelta(t, 512.0*units.KiB, mib[1], 0)
}

func TestPlanValue_SharedScale(t *testing.T) {
	t.Parallel()

	ticks := axis.PlanValue(0, 3*units.MiB, units.Bytes)
	require.Len(t, ticks, 7)
	assert.Equal(t, "0MiB", ticks[0].Label)
	assert.Equal(t, "0.50MiB", ticks[1].Label)
	assert.Equal(t, "3.00MiB", ticks[6].Label)
}

func TestPlanTime_Labels(t *testing.T) {
	t.Parallel()

	ticks := axis.PlanTime(ts(2024, time.January, 1, 12, 0), ts(2024, time.January, 3, 0, 0))
	require.Len(t, ticks, 2)
	assert.Equal(t, "2 Jan 2024", ticks[0].Label)
	assert.Equal(t, "3 Jan 2024", ticks[1].Label)
}
