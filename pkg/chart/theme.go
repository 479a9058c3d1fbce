package chart

// Theme is a dashboard color theme.
type Theme string

const (
	// ThemeLight is the light color theme.
	ThemeLight Theme = "light"
	// ThemeDark is the dark color theme.
	ThemeDark Theme = "dark"
)

// ParseTheme maps a name to a theme; unknown names are light.
func ParseTheme(name string) Theme {
	if Theme(name) == ThemeDark {
		return ThemeDark
	}

	return ThemeLight
}

// ThemeConfig holds the theme-specific styling values used by the page and
// chart options.
type ThemeConfig struct {
	Background string
	Surface    string
	Border     string

	TextPrimary string
	TextMuted   string

	Accent      string
	Error       string
	ErrorSubtle string

	ChartBackground string
	ChartGrid       string
	ChartAxis       string
	ChartText       string
	ChartTextMuted  string

	// Highlight is the fill of the zoom selector band.
	Highlight string

	// Series colors, assigned in series order.
	Palette []string
}

// GetThemeConfig returns the configuration for a given theme.
func GetThemeConfig(theme Theme) ThemeConfig {
	if theme == ThemeDark {
		return darkTheme
	}

	return lightTheme
}

// SeriesColor is the palette color of the i-th series.
func (t ThemeConfig) SeriesColor(i int) string {
	if len(t.Palette) == 0 {
		return ""
	}

	return t.Palette[i%len(t.Palette)]
}

var lightTheme = ThemeConfig{
	Background: "#fafaf9", // stone-50.
	Surface:    "#ffffff",
	Border:     "#e7e5e4", // stone-200.

	TextPrimary: "#1c1917", // stone-900.
	TextMuted:   "#78716c", // stone-500.

	Accent:      "#a16207", // amber-700.
	Error:       "#dc2626", // red-600.
	ErrorSubtle: "#fee2e2", // red-100.

	ChartBackground: "transparent",
	ChartGrid:       "#e7e5e4",
	ChartAxis:       "#a8a29e", // stone-400.
	ChartText:       "#44403c", // stone-700.
	ChartTextMuted:  "#78716c",

	Highlight: "#a162071f",

	Palette: []string{
		"#a16207", // amber-700.
		"#0369a1", // sky-700.
		"#4d7c0f", // lime-700.
		"#7c3aed", // violet-600.
		"#be185d", // pink-700.
		"#0891b2", // cyan-600.
		"#c2410c", // orange-700.
		"#4338ca", // indigo-700.
	},
}

var darkTheme = ThemeConfig{
	Background: "#0c0a09", // stone-950.
	Surface:    "#1c1917", // stone-900.
	Border:     "#44403c", // stone-700.

	TextPrimary: "#fafaf9",
	TextMuted:   "#a8a29e",

	Accent:      "#d97706", // amber-600.
	Error:       "#ef4444", // red-500.
	ErrorSubtle: "#450a0a", // red-950.

	ChartBackground: "transparent",
	ChartGrid:       "#44403c",
	ChartAxis:       "#57534e", // stone-600.
	ChartText:       "#d6d3d1", // stone-300.
	ChartTextMuted:  "#a8a29e",

	Highlight: "#fbbf2426",

	Palette: []string{
		"#fbbf24", // amber-400.
		"#38bdf8", // sky-400.
		"#a3e635", // lime-400.
		"#a78bfa", // violet-400.
		"#f472b6", // pink-400.
		"#22d3ee", // cyan-400.
		"#fb923c", // orange-400.
		"#818cf8", // indigo-400.
	},
}
