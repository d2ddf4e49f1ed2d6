// Package output writes run artifacts: scraped pages, reports and run
// manifests.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/urls"
)

const (
	stampLayout  = "20060102_150405"
	headerLayout = "2006-01-02 15:04"

	titleStemLen = 30

	// keepFile survives Cleanup.
	keepFile = ".keep"
)

// Writer saves files under one output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithClock overrides time.Now for file names and headers.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates dir if needed and returns a Writer for it.
func NewWriter(dir string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	w := &Writer{dir: dir, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// SaveScrape writes a successful result's markdown to
// scrape_{title}.md and returns the path.
func (w *Writer) SaveScrape(r models.ScrapeResult) (string, error) {
	if !r.Success {
		return "", errors.New("refusing to save a failed scrape")
	}
	stem := titleStem(r.Title)
	if stem == "" {
		stem = urls.SanitizeFilename(r.URL, 50)
	}
	return w.write("scrape_"+stem, ".md", []byte(r.Markdown))
}

// SaveReport writes a synthesized report with a title header to
// report_{timestamp}.md and returns the path.
func (w *Writer) SaveReport(content, title string) (string, error) {
	if title == "" {
		title = "Research Report"
	}
	now := w.now()
	header := fmt.Sprintf("# %s\n\n**Generated by PRISMA** | %s\n\n---\n\n", title, now.Format(headerLayout))
	return w.write("report_"+now.Format(stampLayout), ".md", []byte(header+content))
}

// WriteManifest records run as run_{id}.yaml and returns the path.
func (w *Writer) WriteManifest(run *models.RunSummary) (string, error) {
	data, err := yaml.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return w.write("run_"+run.ID, ".yaml", data)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*models.RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run models.RunSummary
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", filepath.Base(path), err)
	}
	return &run, nil
}

// Files lists regular files in the output directory, optionally only
// those with extension ext (".md").
func (w *Writer) Files(ext string) ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, filepath.Join(w.dir, e.Name()))
	}
	return out, nil
}

// Cleanup removes files last modified more than olderThan ago and returns
// how many were removed. Subdirectories and .keep are left alone.
func (w *Writer) Cleanup(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, err
	}
	threshold := w.now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == keepFile {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if info.ModTime().After(threshold) {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		w.logger.Debug("removed old file", "name", e.Name())
	}
	if removed > 0 {
		w.logger.Info("cleaned up old files", "removed", removed)
	}
	return removed, errors.Join(errs...)
}

// write creates stem+ext, adding -2, -3... when the name is taken.
func (w *Writer) write(stem, ext string, data []byte) (string, error) {
	for i := 1; ; i++ {
		name := stem + ext
		if i > 1 {
			name = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(w.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", name, err)
		}
		w.logger.Info("saved", "file", name)
		return path, nil
	}
}

// titleStem keeps the first 30 characters of title with spaces turned
// into underscores and anything but letters, digits, '_', '.' and '-'
// dropped.
func titleStem(title string) string {
	r := []rune(title)
	if len(r) > titleStemLen {
		r = r[:titleStemLen]
	}
	var b strings.Builder
	for _, c := range r {
		switch {
		case c == ' ':
			b.WriteByte('_')
		case unicode.IsLetter(c), unicode.IsDigit(c), c == '_', c == '.', c == '-':
			b.WriteRune(c)
		}
	}
	return strings.Trim(b.String(), "._")
}
