// Package urls finds, filters and names the URLs a research run works on.
package urls

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// urlPattern matches http(s) URLs with a domain, localhost or IPv4 host.
var urlPattern = regexp.MustCompile(`(?i)https?://` +
	`(?:(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}\.?|localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?` +
	`(?:[/?#]\S*)?`)

const trailingPunct = `.,;:!?'")>]`

// skipExtensions are file types that are not web pages.
var skipExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	".exe": true, ".msi": true, ".dmg": true, ".apk": true,
}

// skipPaths mark API and feed endpoints.
var skipPaths = []string{"/api/", "/graphql", "/feed", "/rss"}

// Skipped is a URL rejected by ParseList and the reason.
type Skipped struct {
	URL    string `json:"url" yaml:"url"`
	Reason string `json:"reason" yaml:"reason"`
}

// IsValid reports whether raw is an absolute http or https URL with a host.
func IsValid(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsScrapeable reports whether raw points at a web page worth scraping.
// When it does not, reason says why.
func IsScrapeable(raw string) (ok bool, reason string) {
	if !IsValid(raw) {
		return false, "invalid URL format"
	}
	u, _ := url.Parse(raw)
	p := strings.ToLower(u.Path)

	if ext := path.Ext(p); skipExtensions[ext] {
		return false, "file type " + ext + " not supported"
	}
	for _, s := range skipPaths {
		if strings.Contains(p, s) {
			return false, "API or feed endpoint"
		}
	}
	return true, ""
}

// ExtractFromText returns the URLs embedded in text, in order of first
// appearance, with trailing punctuation removed.
func ExtractFromText(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.TrimRight(m, trailingPunct)
	}
	return Dedupe(matches)
}

// ParseList reads one URL per line. Blank lines and lines starting with
// "#" are ignored; other lines contribute any URLs they contain. URLs that
// are not scrapeable are returned in skipped.
func ParseList(content string) (valid []string, skipped []Skipped) {
	var found []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if (strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://")) && !strings.ContainsAny(line, " \t") {
			if IsValid(line) {
				found = append(found, line)
			} else {
				skipped = append(skipped, Skipped{URL: line, Reason: "invalid URL format"})
			}
			continue
		}
		found = append(found, ExtractFromText(line)...)
	}

	for _, u := range Dedupe(found) {
		if ok, reason := IsScrapeable(u); ok {
			valid = append(valid, u)
		} else {
			skipped = append(skipped, Skipped{URL: u, Reason: reason})
		}
	}
	return valid, skipped
}

// Dedupe drops blank and repeated URLs, keeping the first occurrence.
func Dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, u := range list {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Domain returns the host of raw, or "unknown".
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// GroupByDomain buckets URLs by host, keeping input order within a bucket.
func GroupByDomain(list []string) map[string][]string {
	groups := make(map[string][]string)
	for _, u := range list {
		d := Domain(u)
		groups[d] = append(groups[d], u)
	}
	return groups
}

var (
	reUnsafe      = regexp.MustCompile(`[<>:"/\\|?*]`)
	reUnderscores = regexp.MustCompile(`_+`)
)

// SanitizeFilename builds a file name stem from the last path segment of
// raw, or its domain, at most maxLen characters long.
func SanitizeFilename(raw string, maxLen int) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "page"
	}
	domain := strings.TrimPrefix(u.Host, "www.")
	name := domain
	if p := strings.Trim(u.Path, "/"); p != "" {
		last := p[strings.LastIndex(p, "/")+1:]
		if last != "" && !strings.Contains(last, ".") {
			name = last
		}
	}

	name = reUnsafe.ReplaceAllString(name, "_")
	name = reUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if r := []rune(name); maxLen > 0 && len(r) > maxLen {
		name = string(r[:maxLen])
	}
	if name == "" {
		return "page"
	}
	return name
}
