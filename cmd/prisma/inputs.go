package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/use-agent/prisma/urls"
)

var errNoURLs = errors.New("no URLs given: pass them as arguments or with --file")

// collectURLs merges URL arguments with the URLs found in file. Entries
// that cannot be scraped are reported on w and dropped.
func collectURLs(args []string, file string, w io.Writer) ([]string, error) {
	content := strings.Join(args, "\n")
	if file != "" {
		text, err := urls.ReadFile(file)
		if err != nil {
			return nil, err
		}
		content += "\n" + text
	}

	valid, skipped := urls.ParseList(content)
	for _, s := range skipped {
		fmt.Fprintf(w, "skipping %s (%s)\n", s.URL, s.Reason)
	}
	if len(valid) == 0 {
		return nil, errNoURLs
	}
	return valid, nil
}
