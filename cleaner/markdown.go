package cleaner

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
)

// newMarkdownConverter creates a reusable, goroutine-safe Converter.
//
//   - base plugin drops script, style, iframe, noscript and head content.
//   - commonmark plugin renders headings, lists, links, code and quotes.
//   - table plugin keeps tables, with minimal cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// Convert applies the cleaning options to an HTML fragment and converts it
// to Markdown. Relative links resolve against sourceURL.
func (e *Extractor) Convert(fragment, sourceURL string) (string, error) {
	md, err := e.conv.ConvertString(e.prepare(fragment), converter.WithDomain(sourceURL))
	if err != nil {
		return "", err
	}
	if e.cfg.Citations && !e.cfg.RemoveLinks {
		md = ConvertToCitations(md)
	}
	if e.cfg.BodyWidth > 0 {
		md = Wrap(md, e.cfg.BodyWidth)
	}
	return md, nil
}

// prepare strips images and unwraps links and emphasis as configured.
func (e *Extractor) prepare(fragment string) string {
	if !e.cfg.RemoveImages && !e.cfg.RemoveLinks && !e.cfg.IgnoreEmphasis {
		return fragment
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	if e.cfg.RemoveImages {
		doc.Find("img, picture, svg").Remove()
	}
	if e.cfg.RemoveLinks {
		unwrap(doc.Find("a"))
	}
	if e.cfg.IgnoreEmphasis {
		unwrap(doc.Find("em, i, strong, b"))
	}

	out, err := doc.Find("body").Html()
	if err != nil {
		return fragment
	}
	return out
}

// unwrap replaces every element in sel with its children. Empty elements
// are removed.
func unwrap(sel *goquery.Selection) {
	sel.Each(func(_ int, s *goquery.Selection) {
		if s.Contents().Length() == 0 {
			s.Remove()
			return
		}
		s.ReplaceWithSelection(s.Contents())
	})
}
