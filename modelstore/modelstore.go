// Package modelstore keeps track of the local model weights and fetches
// them when missing.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/progress"
)

const (
	chunkSize      = 256 << 10
	lockRetryDelay = 250 * time.Millisecond
)

// ErrCanceled is returned by Download after Cancel.
var ErrCanceled = errors.New("download canceled")

// ModelInfo describes the model weights file.
type ModelInfo struct {
	Name    string
	Repo    string
	File    string
	MinSize int64 // smallest file accepted as complete
}

// DownloadEvent reports download progress. Total is -1 when the server
// does not send a length.
type DownloadEvent struct {
	Downloaded int64
	Total      int64
	Message    string
}

// Percent returns completion in [0, 100], or -1 when Total is unknown.
func (e DownloadEvent) Percent() float64 {
	if e.Total <= 0 {
		return -1
	}
	return float64(e.Downloaded) * 100 / float64(e.Total)
}

// Status summarizes the local model.
type Status struct {
	Available bool   `json:"available"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Store manages one model file under a directory.
type Store struct {
	dir        string
	baseURL    string
	info       ModelInfo
	httpClient *http.Client
	logger     *slog.Logger
	events     *progress.Bus[DownloadEvent]
	canceled   atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.httpClient = c }
}

// New creates a Store from the model settings.
func New(cfg config.ModelConfig, opts ...Option) *Store {
	s := &Store{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		info: ModelInfo{
			Name:    cfg.Name,
			Repo:    cfg.Repo,
			File:    cfg.File,
			MinSize: cfg.MinSizeBytes,
		},
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = progress.NewBus[DownloadEvent](s.logger)
	return s
}

// Info returns the model description.
func (s *Store) Info() ModelInfo { return s.info }

// OnProgress subscribes fn to download progress.
func (s *Store) OnProgress(fn func(DownloadEvent)) {
	s.events.Subscribe(fn)
}

// ModelPath is where the weights live.
func (s *Store) ModelPath() string {
	return filepath.Join(s.dir, s.info.File)
}

// DefaultPath is ModelPath.
func (s *Store) DefaultPath() string {
	return s.ModelPath()
}

// IsAvailable reports whether the weights exist and are large enough to
// be complete.
func (s *Store) IsAvailable() bool {
	fi, err := os.Stat(s.ModelPath())
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Size() >= s.info.MinSize
}

// Status describes the local model.
func (s *Store) Status() Status {
	st := Status{Name: s.info.Name, Path: s.ModelPath()}
	if !s.IsAvailable() {
		return st
	}
	if fi, err := os.Stat(st.Path); err == nil {
		st.Available = true
		st.SizeBytes = fi.Size()
	}
	return st
}

// Delete removes the weights. A missing file is not an error.
func (s *Store) Delete() error {
	err := os.Remove(s.ModelPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete model: %w", err)
	}
	s.logger.Info("model deleted", "path", s.ModelPath())
	return nil
}

// Cancel asks a running Download to stop at its next chunk.
func (s *Store) Cancel() {
	s.canceled.Store(true)
	s.logger.Warn("download cancellation requested")
}

// URL is the download location of the weights.
func (s *Store) URL() string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", s.baseURL, s.info.Repo, s.info.File)
}

// Download fetches the weights unless they are already present, and
// returns their path. Concurrent downloads of the same file, in this or
// another process, wait on a lock file and then find the model present.
func (s *Store) Download(ctx context.Context) (string, error) {
	path := s.ModelPath()
	if s.IsAvailable() {
		return path, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", fmt.Errorf("acquire download lock: %w", err)
	}
	if !ok {
		return "", errors.New("download lock is held by another process")
	}
	defer func() { _ = lock.Unlock() }()

	if s.IsAvailable() {
		return path, nil
	}

	s.canceled.Store(false)
	start := time.Now()
	s.logger.Info("downloading model", "name", s.info.Name, "url", s.URL())
	s.events.Publish(DownloadEvent{Total: -1, Message: "Starting download: " + s.info.Name})

	if err := s.fetch(ctx, path); err != nil {
		if errors.Is(err, ErrCanceled) {
			s.logger.Warn("download canceled", "name", s.info.Name)
		} else {
			s.logger.Error("download failed", "name", s.info.Name, "error", err)
		}
		return "", err
	}

	s.logger.Info("model downloaded", "path", path, "elapsed", time.Since(start).Round(time.Second))
	s.events.Publish(DownloadEvent{Message: "Download complete"})
	return path, nil
}

// fetch streams the weights into path.part and renames it into place.
func (s *Store) fetch(ctx context.Context, path string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(), nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: server returned %d", resp.StatusCode)
	}

	partPath := path + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(partPath)
		}
	}()

	total := resp.ContentLength
	var written int64
	lastPct := -1
	buf := make([]byte, chunkSize)
	for {
		if s.canceled.Load() {
			return ErrCanceled
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write partial file: %w", werr)
			}
			written += int64(n)
			ev := DownloadEvent{Downloaded: written, Total: total}
			if pct := int(ev.Percent()); pct != lastPct || total <= 0 {
				lastPct = pct
				s.events.Publish(ev)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("download: %w", rerr)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}
	if written < s.info.MinSize {
		return fmt.Errorf("download incomplete: got %d bytes, want at least %d", written, s.info.MinSize)
	}
	if err := os.Rename(partPath, path); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}
