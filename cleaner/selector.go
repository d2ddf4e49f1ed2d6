package cleaner

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

type candidate struct {
	query string
	sel   cascadia.Selector
}

// mainContentCandidates is tried in order; body is the last resort before
// the whole document.
var mainContentCandidates = compileCandidates(
	"article",
	"main",
	`[role="main"]`,
	".content",
	".post-content",
	".article-content",
	"#content",
	"body",
)

func compileCandidates(queries ...string) []candidate {
	out := make([]candidate, 0, len(queries))
	for _, q := range queries {
		out = append(out, candidate{query: q, sel: cascadia.MustCompile(q)})
	}
	return out
}

// SelectMainContent returns the inner HTML of the first candidate element
// whose inner HTML is longer than the minimum content length. Only the first
// match of each candidate is considered. When no candidate qualifies the
// full page HTML is returned.
func (e *Extractor) SelectMainContent(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	for _, c := range e.candidates {
		match := doc.FindMatcher(c.sel).First()
		if match.Length() == 0 {
			continue
		}
		inner, err := match.Html()
		if err != nil {
			continue
		}
		if utf8.RuneCountInString(inner) > e.cfg.MinContentLength {
			e.logger.Debug("main content selected", "selector", c.query, "chars", utf8.RuneCountInString(inner))
			return inner
		}
	}
	return rawHTML
}
