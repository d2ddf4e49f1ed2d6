package cleaner

import (
	nurl "net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

// minReadableText is the minimum visible text readability must find before
// its output is trusted.
const minReadableText = 50

// readable runs the Mozilla Readability algorithm on rawHTML and returns the
// cleaned article HTML. ok is false when the URL does not parse, readability
// fails, or the extracted text is shorter than minReadableText.
func (e *Extractor) readable(rawHTML, sourceURL string) (content string, ok bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		e.logger.Warn("readability: invalid source URL, using selector chain",
			"url", sourceURL, "error", err,
		)
		return "", false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		e.logger.Warn("readability: extraction failed, using selector chain",
			"url", sourceURL, "error", err,
		)
		return "", false
	}

	if n := utf8.RuneCountInString(strings.TrimSpace(article.TextContent)); n < minReadableText {
		e.logger.Warn("readability: extracted content too short, using selector chain",
			"url", sourceURL, "length", n,
		)
		return "", false
	}
	return article.Content, true
}
