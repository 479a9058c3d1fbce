package chart

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/trendscope/pkg/dataset"
	"github.com/Sumatoshi-tech/trendscope/pkg/plot"
	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templates     *template.Template
	templatesOnce sync.Once
	errTemplates  error
)

var funcMap = template.FuncMap{
	"isPinned": func(pinned []string, id string) bool {
		return slices.Contains(pinned, id)
	},
	"treeLevel": func(nodes []*timeline.MetricNode, metric string, pinned []string) treeLevel {
		return treeLevel{Nodes: nodes, Metric: metric, Pinned: pinned}
	},
}

// treeLevel is one nesting level of the metric selector.
type treeLevel struct {
	Nodes  []*timeline.MetricNode
	Metric string
	Pinned []string
}

func getTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		var parseErr error

		templates, parseErr = template.New("").
			Funcs(funcMap).
			ParseFS(templateFS, "templates/*.html")
		if parseErr != nil {
			errTemplates = fmt.Errorf("parsing templates: %w", parseErr)
		}
	})

	return templates, errTemplates
}

// Footer is the dataset summary under the chart.
type Footer struct {
	NumCommits      int
	LastCommitTime  string
	NumBuilt        int
	BuiltPercent    int
	CoveragePercent int
}

// NewFooter summarizes stats for a dataset with numTests tests.
func NewFooter(stats dataset.Stats, numTests int) *Footer {
	return &Footer{
		NumCommits:      stats.NumCommits,
		LastCommitTime:  stats.LastCommitTime,
		NumBuilt:        stats.NumCachedCommits,
		BuiltPercent:    stats.BuiltPercent(),
		CoveragePercent: stats.CoveragePercent(numTests),
	}
}

// PageError is a failure shown instead of the chart.
type PageError struct {
	Message string
	URL     string
}

// Page is the dashboard page.
type Page struct {
	Title string
	Theme Theme
	// Frame is the initial chart; nil with Error set renders the error page.
	Frame      *plot.Frame
	MetricTree []*timeline.MetricNode
	Metric     string
	Pinned     []string
	Footer     *Footer
	Error      *PageError
	// Interactive enables the session script that talks to the API.
	Interactive bool
	// Fragment is the view-state the page was rendered for, without "#".
	Fragment string
}

type pageData struct {
	Page

	ThemeConfig ThemeConfig
	DarkClass   string
	Chart       template.HTML
	ChartID     string
	AssetsHost  string
}

// Render writes the full dashboard page.
func (p *Page) Render(w io.Writer) error {
	tmpl, err := getTemplates()
	if err != nil {
		return err
	}

	data := pageData{
		Page:        *p,
		ThemeConfig: GetThemeConfig(p.Theme),
		ChartID:     ChartID,
		AssetsHost:  AssetsHost,
	}

	if p.Theme == ThemeDark {
		data.DarkClass = "dark"
	}

	if p.Error == nil && p.Frame != nil {
		data.Chart, err = Fragment(NewLine(*p.Frame, p.Theme))
		if err != nil {
			return err
		}
	}

	var buf bytes.Buffer

	err = tmpl.ExecuteTemplate(&buf, "page.html", data)
	if err != nil {
		return fmt.Errorf("executing template page.html: %w", err)
	}

	_, err = w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("writing page: %w", err)
	}

	return nil
}
