package tooltip

import (
	"strings"

	"github.com/Sumatoshi-tech/trendscope/pkg/timeline"
)

// LinkFormatter turns commits into browsable URLs.
type LinkFormatter interface {
	CommitURL(c *timeline.Commit) string
	// RangeURL links the half-open range (from, to]: from is the commit just
	// before the first commit of the range.
	RangeURL(from, to *timeline.Commit) string
}

// TemplateLinks substitutes {rev}, {from} and {to} into URL templates. Empty
// templates produce empty URLs.
type TemplateLinks struct {
	Commit string
	Range  string
}

// CommitURL renders the commit template.
func (l TemplateLinks) CommitURL(c *timeline.Commit) string {
	if l.Commit == "" || c == nil {
		return ""
	}

	return strings.ReplaceAll(l.Commit, "{rev}", c.ID)
}

// RangeURL renders the range template.
func (l TemplateLinks) RangeURL(from, to *timeline.Commit) string {
	if l.Range == "" || from == nil || to == nil {
		return ""
	}

	return strings.NewReplacer("{from}", from.ID, "{to}", to.ID).Replace(l.Range)
}
