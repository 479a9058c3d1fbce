package tooltip

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/fatih/color"
)

//go:embed templates/tooltip.html
var templateFS embed.FS

var htmlTemplate = template.Must(template.ParseFS(templateFS, "templates/tooltip.html"))

// RenderHTML writes the tooltip as an HTML fragment.
func RenderHTML(w io.Writer, v *View) error {
	err := htmlTemplate.ExecuteTemplate(w, "tooltip.html", v)
	if err != nil {
		return fmt.Errorf("render tooltip: %w", err)
	}

	return nil
}

// WriteText writes the tooltip for a terminal. Deltas are coloured by sign
// unless color output is disabled globally.
func WriteText(w io.Writer, v *View) error {
	tw := &textWriter{w: w}

	tw.printf("%s\n", v.MetricName)
	tw.printf("  value: %s", v.ValueText)

	if d := v.Delta; d != nil {
		tw.printf(" ")
		tw.colored(deltaColor(d), "%s", d.Text)

		if d.Significant {
			tw.printf(" (significant)")
		}
	}

	tw.printf("\n")

	switch {
	case v.Commit != nil:
		tw.printf("  commit %s  %s\n", v.Commit.ShortID, v.Commit.TimeText)

		if v.Commit.Summary != "" {
			tw.printf("  %s\n", v.Commit.Summary)
		}

		if v.Commit.URL != "" {
			tw.printf("  %s\n", v.Commit.URL)
		}
	case v.Range != nil:
		tw.printf("  commit range (%d commits)\n", v.Range.Count)
		tw.printf("    %s  %s\n", v.Range.First.ShortID, v.Range.First.TimeText)
		tw.printf("    %s  %s\n", v.Range.Last.ShortID, v.Range.Last.TimeText)

		if v.Range.URL != "" {
			tw.printf("  %s\n", v.Range.URL)
		}
	}

	if v.Gap != nil {
		tw.colored(color.New(color.FgYellow), "  note: %s\n", v.Gap.Text())
	}

	return tw.err
}

func deltaColor(d *Delta) *color.Color {
	switch d.Sign {
	case SignNegative:
		return color.New(color.FgGreen)
	case SignPositive:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgCyan)
	}
}

// textWriter keeps the first write error.
type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}

	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *textWriter) colored(c *color.Color, format string, args ...any) {
	if t.err != nil {
		return
	}

	_, t.err = c.Fprintf(t.w, format, args...)
}
