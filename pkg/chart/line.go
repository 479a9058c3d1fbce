// Package chart renders controller frames as go-echarts line charts and
// serves them inside the dashboard page.
package chart

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/trendscope/pkg/plot"
)

// Chart constants.
const (
	// ChartID is the DOM id of the chart container.
	ChartID = "trendscope-chart"
	// AssetsHost serves echarts.min.js.
	AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

	chartWidth  = "100%"
	chartHeight = "520px"
	msPerSecond = 1000
	lineWidth   = 2
	symbolSize  = 6
)

// NewLine builds the line chart of frame. Timestamps become milliseconds
// and null points break their line.
func NewLine(frame plot.Frame, theme Theme) *charts.Line {
	co := NewChartOpts(theme)
	tc := GetThemeConfig(theme)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(co.Init(chartWidth, chartHeight)),
		charts.WithTooltipOpts(co.Tooltip()),
		charts.WithLegendOpts(co.Legend()),
		charts.WithGridOpts(co.Grid(axesPerSide(frame.YAxes))),
		charts.WithXAxisOpts(co.TimeAxis(frame)),
	)

	placed := map[plot.Side]int{}
	for i, va := range frame.YAxes {
		y := co.ValueAxis(va, placed[va.Side])
		placed[va.Side]++
		if i == 0 {
			line.SetGlobalOptions(charts.WithYAxisOpts(y))
		} else {
			line.ExtendYAxis(y)
		}
	}

	for i, rs := range frame.Series {
		label := rs.Label
		if label == "" {
			label = rs.Name
		}

		color := tc.SeriesColor(i)

		line.AddSeries(label, lineData(rs),
			charts.WithLineChartOpts(opts.LineChart{
				YAxisIndex:   rs.YAxis,
				ShowSymbol:   opts.Bool(true),
				SymbolSize:   symbolSize,
				ConnectNulls: opts.Bool(false),
			}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth, Color: color}),
		)
	}

	return line
}

func axesPerSide(axes []plot.ValueAxis) (left, right int) {
	for _, va := range axes {
		if va.Side == plot.SideRight {
			right++
		} else {
			left++
		}
	}

	return left, right
}

func lineData(rs plot.RenderSeries) []opts.LineData {
	data := make([]opts.LineData, len(rs.Data))

	for i, p := range rs.Data {
		var v any
		if p.Value != nil {
			v = *p.Value
		}

		data[i] = opts.LineData{Value: []any{p.Time * msPerSecond, v}}
	}

	return data
}

// Fragment renders line and returns only its container and script, ready
// to embed in a page.
func Fragment(line *charts.Line) (template.HTML, error) {
	var buf bytes.Buffer

	err := line.Render(&buf)
	if err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}

	return template.HTML(extractChartContent(buf.String())), nil
}

var styleTag = regexp.MustCompile(`(?s)<style>.*?</style>`)

// extractChartContent cuts the chart container and its script out of a
// full go-echarts page. Fragments pass through unchanged.
func extractChartContent(page string) string {
	trimmed := strings.TrimSpace(page)
	if !strings.HasPrefix(trimmed, "<!DOCTYPE") && !strings.HasPrefix(trimmed, "<html") {
		return page
	}

	start := strings.Index(page, `<div class="container">`)
	end := strings.Index(page, `</body>`)

	if start == -1 || end == -1 || end < start {
		return page
	}

	content := page[start:end]
	content = strings.ReplaceAll(content, `class="container"`, `class="echart-box"`)

	return styleTag.ReplaceAllString(content, "")
}

func px(v int) string {
	return strconv.Itoa(v) + "px"
}
