package chart

import (
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/trendscope/pkg/axis"
	"github.com/Sumatoshi-tech/trendscope/pkg/plot"
)

// Grid margins in pixels. Every axis past the first on a side needs its own
// strip.
const (
	gridLeft        = 80
	gridRight       = 30
	gridAxisWidth   = 70
	gridTop         = 50
	gridBottom      = 40
	axisLabelMargin = 8
)

// ChartOpts provides themed chart options.
type ChartOpts struct {
	theme ThemeConfig
}

// NewChartOpts creates chart options for theme.
func NewChartOpts(theme Theme) *ChartOpts {
	return &ChartOpts{theme: GetThemeConfig(theme)}
}

// Init returns initialization options with the themed background.
func (c *ChartOpts) Init(width, height string) opts.Initialization {
	return opts.Initialization{
		ChartID:         ChartID,
		Width:           width,
		Height:          height,
		BackgroundColor: c.theme.ChartBackground,
		AssetsHost:      AssetsHost,
	}
}

// Legend returns legend options with the themed text color.
func (c *ChartOpts) Legend() opts.Legend {
	return opts.Legend{
		Show:      opts.Bool(true),
		Type:      "scroll",
		Top:       "0",
		Left:      "center",
		TextStyle: &opts.TextStyle{Color: c.theme.ChartTextMuted},
	}
}

// Tooltip disables the built-in tooltip; the overlay draws its own.
func (c *ChartOpts) Tooltip() opts.Tooltip {
	return opts.Tooltip{Show: opts.Bool(false)}
}

// Grid reserves a label strip for every axis on each side.
func (c *ChartOpts) Grid(leftAxes, rightAxes int) opts.Grid {
	left := gridLeft + max(leftAxes-1, 0)*gridAxisWidth
	right := gridRight + rightAxes*gridAxisWidth

	return opts.Grid{
		Top:          px(gridTop),
		Bottom:       px(gridBottom),
		Left:         px(left),
		Right:        px(right),
		ContainLabel: opts.Bool(false),
	}
}

// TimeAxis is the shared x axis bounded by the frame's range.
func (c *ChartOpts) TimeAxis(frame plot.Frame) opts.XAxis {
	return opts.XAxis{
		Type:        "time",
		Min:         frame.XRange.Start * msPerSecond,
		Max:         frame.XRange.Stop * msPerSecond,
		SplitNumber: max(len(frame.XTicks)-1, 1),
		AxisLabel:   &opts.AxisLabel{Color: c.theme.ChartTextMuted},
		AxisLine:    &opts.AxisLine{LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
	}
}

// ValueAxis is a y axis bounded by its tick plan. slot counts the axes
// already placed on the same side; later axes push their labels outward
// into the strip Grid reserved for them. Only the first left axis draws
// split lines.
func (c *ChartOpts) ValueAxis(va plot.ValueAxis, slot int) opts.YAxis {
	y := opts.YAxis{
		Type:     "value",
		Name:     string(va.Unit),
		Position: string(va.Side),
		AxisLabel: &opts.AxisLabel{
			Color:  c.theme.ChartTextMuted,
			Margin: float64(axisLabelMargin + slot*gridAxisWidth),
		},
		AxisLine: &opts.AxisLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
		SplitLine: &opts.SplitLine{
			Show:      opts.Bool(va.Side == plot.SideLeft && slot == 0),
			LineStyle: &opts.LineStyle{Color: c.theme.ChartGrid},
		},
	}

	if lo, hi, ok := tickBounds(va.Ticks); ok {
		y.Min = lo
		y.Max = hi
		y.SplitNumber = len(va.Ticks) - 1
	}

	return y
}

func tickBounds(ticks []axis.Tick) (lo, hi float64, ok bool) {
	if len(ticks) < 2 {
		return 0, 0, false
	}

	return ticks[0].Value, ticks[len(ticks)-1].Value, true
}
