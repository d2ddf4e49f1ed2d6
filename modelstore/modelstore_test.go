package modelstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/use-agent/prisma/config"
)

const weightsURL = "https://hf.test/Qwen/Qwen2.5-3B-Instruct-GGUF/resolve/main/qwen.gguf"

func newTestStore(t *testing.T, minSize int64) (*Store, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	cfg := config.ModelConfig{
		Dir:          filepath.Join(t.TempDir(), "models"),
		Name:         "Qwen 2.5 3B Instruct",
		Repo:         "Qwen/Qwen2.5-3B-Instruct-GGUF",
		File:         "qwen.gguf",
		BaseURL:      "https://hf.test/",
		MinSizeBytes: minSize,
	}
	s := New(cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHTTPClient(&http.Client{Transport: transport}),
	)
	return s, transport
}

func TestURL(t *testing.T) {
	s, _ := newTestStore(t, 1)
	if got := s.URL(); got != weightsURL {
		t.Errorf("URL() = %q, want %q", got, weightsURL)
	}
}

func TestDownload_Success(t *testing.T) {
	s, transport := newTestStore(t, 1024)
	body := bytes.Repeat([]byte("g"), 600<<10)
	transport.RegisterResponder(http.MethodGet, weightsURL, httpmock.NewBytesResponder(http.StatusOK, body))

	var events []DownloadEvent
	s.OnProgress(func(ev DownloadEvent) { events = append(events, ev) })

	path, err := s.Download(context.Background())
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if path != s.ModelPath() {
		t.Errorf("path = %q, want %q", path, s.ModelPath())
	}
	got, err := os.ReadFile(path)
	if err != nil || len(got) != len(body) {
		t.Fatalf("weights file: %d bytes, err %v", len(got), err)
	}
	if _, err := os.Stat(path + ".part"); !errors.Is(err, os.ErrNotExist) {
		t.Error("partial file left behind")
	}
	if !s.IsAvailable() {
		t.Error("IsAvailable() = false after download")
	}
	if len(events) < 3 {
		t.Errorf("got %d progress events, want start + chunks + done", len(events))
	}
	if last := events[len(events)-1]; last.Message != "Download complete" {
		t.Errorf("last event = %+v", last)
	}

	// Present weights are not fetched again.
	if _, err := s.Download(context.Background()); err != nil {
		t.Fatalf("second Download() error = %v", err)
	}
	if n := transport.GetTotalCallCount(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestDownload_Failures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"not found", httpmock.NewStringResponder(http.StatusNotFound, "missing")},
		{"too small", httpmock.NewStringResponder(http.StatusOK, "tiny")},
		{"transport", httpmock.NewErrorResponder(errors.New("connection reset"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, transport := newTestStore(t, 1024)
			transport.RegisterResponder(http.MethodGet, weightsURL, tt.responder)

			if _, err := s.Download(context.Background()); err == nil {
				t.Fatal("Download() error = nil")
			}
			if s.IsAvailable() {
				t.Error("IsAvailable() = true after failed download")
			}
			for _, p := range []string{s.ModelPath(), s.ModelPath() + ".part"} {
				if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
					t.Errorf("%s exists after failed download", filepath.Base(p))
				}
			}
		})
	}
}

func TestDownload_Cancel(t *testing.T) {
	s, transport := newTestStore(t, 1024)
	transport.RegisterResponder(http.MethodGet, weightsURL,
		httpmock.NewBytesResponder(http.StatusOK, bytes.Repeat([]byte("g"), 4<<20)))

	s.OnProgress(func(ev DownloadEvent) {
		if ev.Downloaded > 0 {
			s.Cancel()
		}
	})

	_, err := s.Download(context.Background())
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Download() error = %v, want ErrCanceled", err)
	}
	if _, err := os.Stat(s.ModelPath() + ".part"); !errors.Is(err, os.ErrNotExist) {
		t.Error("partial file left after cancel")
	}
	if s.IsAvailable() {
		t.Error("IsAvailable() = true after cancel")
	}
}

func TestAvailabilityAndStatus(t *testing.T) {
	s, _ := newTestStore(t, 8)
	if s.IsAvailable() || s.Status().Available {
		t.Fatal("model reported available before it exists")
	}
	if err := os.MkdirAll(filepath.Dir(s.ModelPath()), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(s.ModelPath(), []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	if s.IsAvailable() {
		t.Error("undersized file reported available")
	}

	if err := os.WriteFile(s.ModelPath(), []byte("complete!"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := s.Status()
	if !st.Available || st.SizeBytes != 9 || st.Path != s.DefaultPath() || st.Name != "Qwen 2.5 3B Instruct" {
		t.Errorf("Status() = %+v", st)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.IsAvailable() {
		t.Error("IsAvailable() = true after Delete")
	}
	if err := s.Delete(); err != nil {
		t.Errorf("Delete() of a missing file = %v", err)
	}
}

func TestDownloadEvent_Percent(t *testing.T) {
	if got := (DownloadEvent{Downloaded: 50, Total: 200}).Percent(); got != 25 {
		t.Errorf("Percent() = %v, want 25", got)
	}
	if got := (DownloadEvent{Downloaded: 50, Total: -1}).Percent(); got != -1 {
		t.Errorf("Percent() with unknown total = %v, want -1", got)
	}
}
