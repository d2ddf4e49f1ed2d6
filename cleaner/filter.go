package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ApplySelectors narrows rawHTML before main-content isolation. Elements
// matching exclude are removed first; when include is set and matches,
// only the outer HTML of the included elements is kept. Invalid input is
// returned unchanged.
func ApplySelectors(rawHTML string, include, exclude []string) string {
	if len(include) == 0 && len(exclude) == 0 {
		return rawHTML
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	for _, sel := range exclude {
		doc.Find(sel).Remove()
	}

	if len(include) > 0 {
		if matches := doc.Find(strings.Join(include, ", ")); matches.Length() > 0 {
			var buf strings.Builder
			buf.WriteString("<html><body>")
			matches.Each(func(_ int, s *goquery.Selection) {
				if h, err := goquery.OuterHtml(s); err == nil {
					buf.WriteString(h)
				}
			})
			buf.WriteString("</body></html>")
			return buf.String()
		}
	}

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}
