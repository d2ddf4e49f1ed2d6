package cleaner

import (
	"fmt"
	"regexp"
	"strings"
)

// inlineLinkRe matches Markdown inline links and images; group 1 is "!" for
// images.
var inlineLinkRe = regexp.MustCompile(`(!?)\[([^\]]+)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)

// ConvertToCitations rewrites inline links as numbered references and
// appends the reference list:
//
//	See [Go](https://go.dev) → See [Go][1] ... [1]: https://go.dev
//
// Repeated URLs share a number. Images are left inline.
func ConvertToCitations(markdown string) string {
	numbers := make(map[string]int)
	var refs []string

	out := inlineLinkRe.ReplaceAllStringFunc(markdown, func(match string) string {
		parts := inlineLinkRe.FindStringSubmatch(match)
		if len(parts) != 4 || parts[1] == "!" {
			return match
		}
		text, target := parts[2], parts[3]

		n, seen := numbers[target]
		if !seen {
			n = len(numbers) + 1
			numbers[target] = n
			refs = append(refs, fmt.Sprintf("[%d]: %s", n, target))
		}
		return fmt.Sprintf("[%s][%d]", text, n)
	})

	if len(refs) == 0 {
		return markdown
	}
	return out + "\n\n---\n" + strings.Join(refs, "\n")
}
