package cleaner

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Signal weights for the block scorer.
const (
	wTextDensity = 3.0
	wLinkDensity = -2.0
	wTag         = 1.5
	wClassID     = 1.0
	wTextLength  = 0.5
)

var (
	contentHints     = []string{"content", "article", "post", "entry", "body", "main", "text"}
	boilerplateHints = []string{
		"sidebar", "ad", "widget", "nav", "menu", "comment", "footer",
		"header", "banner", "popup", "modal", "cookie", "social", "share",
		"related", "recommend", "promo",
	}
)

// blockSignals are the measurements a block is scored on.
type blockSignals struct {
	textDensity float64 // visible text / outer HTML
	linkDensity float64 // anchor text / visible text
	tag         float64
	classID     float64
	textLength  float64 // log10 of visible text length
}

func (s blockSignals) score() float64 {
	return s.textDensity*wTextDensity +
		s.linkDensity*wLinkDensity +
		s.tag*wTag +
		s.classID*wClassID +
		s.textLength*wTextLength
}

// PruneContent keeps the top-level <body> blocks that score above zero and
// joins their outer HTML. ok is false when the document has no body or no
// block scores.
func PruneContent(rawHTML string) (content string, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", false
	}

	var kept []string
	body.Children().Each(func(_ int, el *goquery.Selection) {
		if measure(el).score() <= 0 {
			return
		}
		if outer, err := goquery.OuterHtml(el); err == nil {
			kept = append(kept, outer)
		}
	})
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "\n"), true
}

func measure(el *goquery.Selection) blockSignals {
	outer, err := goquery.OuterHtml(el)
	if err != nil {
		return blockSignals{}
	}
	text := strings.TrimSpace(el.Text())
	textLen := utf8.RuneCountInString(text)
	outerLen := utf8.RuneCountInString(outer)

	var s blockSignals
	if outerLen > 0 {
		s.textDensity = float64(textLen) / float64(outerLen)
	}

	linkLen := 0
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkLen += utf8.RuneCountInString(strings.TrimSpace(a.Text()))
	})
	if textLen > 0 {
		s.linkDensity = float64(linkLen) / float64(textLen)
	}

	switch goquery.NodeName(el) {
	case "article", "main", "section":
		s.tag = 5
	case "nav", "footer", "aside", "header":
		s.tag = -5
	}

	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	attrs := strings.ToLower(class + " " + id)
	if containsAny(attrs, contentHints) {
		s.classID += 3
	}
	if containsAny(attrs, boilerplateHints) {
		s.classID -= 3
	}

	s.textLength = math.Log10(float64(textLen) + 1)
	return s
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
