package cleaner

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ScrapedLayout is the timestamp layout of the metadata header.
const ScrapedLayout = "2006-01-02 15:04"

var blankRunRe = regexp.MustCompile(`\n\s*\n`)

// Normalize collapses runs of blank lines, trims the document and prefixes
// the metadata header:
//
//	# {title}
//
//	**Source:** {url}
//	**Scraped:** {YYYY-MM-DD HH:MM}
//
//	---
func Normalize(markdown, title, sourceURL string, at time.Time) string {
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	body := strings.TrimSpace(blankRunRe.ReplaceAllString(markdown, "\n\n"))

	header := fmt.Sprintf("# %s\n\n**Source:** %s  \n**Scraped:** %s\n\n---\n\n",
		title, sourceURL, at.Format(ScrapedLayout))
	return header + body
}

// Wrap hard-wraps prose lines at width characters. Headings, table rows and
// fenced code are left untouched.
func Wrap(markdown string, width int) string {
	if width <= 0 {
		return markdown
	}

	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "|") ||
			len([]rune(line)) <= width {
			out = append(out, line)
			continue
		}
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{line}
	}

	var (
		lines []string
		cur   strings.Builder
		n     int
	)
	for _, w := range words {
		wl := len([]rune(w))
		if n > 0 && n+1+wl > width {
			lines = append(lines, cur.String())
			cur.Reset()
			n = 0
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(w)
		n += wl
	}
	if n > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
