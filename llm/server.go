package llm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/prisma/config"
)

// allLayers is passed to -ngl when every layer should be offloaded.
const allLayers = 999

const healthPollInterval = 500 * time.Millisecond

// ServerBackend runs models on a llama.cpp llama-server. With a configured
// binary it spawns one server per loaded model; otherwise it attaches to
// an already running server at BaseURL.
type ServerBackend struct {
	cfg        config.InferenceConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// ServerOption configures a ServerBackend.
type ServerOption func(*ServerBackend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(b *ServerBackend) { b.logger = l }
}

// WithHTTPClient overrides the client used for health checks and chat.
func WithHTTPClient(c *http.Client) ServerOption {
	return func(b *ServerBackend) { b.httpClient = c }
}

// NewServerBackend creates a backend for the given inference settings.
func NewServerBackend(cfg config.InferenceConfig, opts ...ServerOption) *ServerBackend {
	b := &ServerBackend{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: cfg.RequestTimeout.Std()}
	}
	return b
}

// Load makes the model at params.Path available for chat. It blocks until
// the server reports healthy, ctx is done, or the startup timeout passes.
func (b *ServerBackend) Load(ctx context.Context, params LoadParams) (Model, error) {
	info, err := os.Stat(params.Path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrWeightsMissing, params.Path)
	}

	if b.cfg.ServerBin == "" {
		return b.attach(ctx)
	}
	return b.spawn(ctx, params)
}

func (b *ServerBackend) attach(ctx context.Context) (Model, error) {
	client := NewClient(b.cfg.BaseURL, b.httpClient)
	if err := client.Health(ctx); err != nil {
		return nil, err
	}
	b.logger.Info("attached to inference server", "url", b.cfg.BaseURL)
	return &serverModel{client: client}, nil
}

func (b *ServerBackend) spawn(ctx context.Context, params LoadParams) (Model, error) {
	bin, err := exec.LookPath(b.cfg.ServerBin)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	args := serverArgs(params, b.cfg.Port)
	cmd := exec.Command(bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %w", ErrUnavailable, bin, err)
	}
	b.logger.Info("inference server starting", "bin", bin, "model", params.Path, "port", b.cfg.Port)

	go b.forwardLog(stderr)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	m := &serverModel{
		client: NewClient(fmt.Sprintf("http://127.0.0.1:%d", b.cfg.Port), b.httpClient),
		cmd:    cmd,
		exited: exited,
	}

	if err := b.waitHealthy(ctx, m.client, exited); err != nil {
		_ = m.Close()
		return nil, err
	}
	b.logger.Info("inference server ready", "port", b.cfg.Port)
	return m, nil
}

// waitHealthy polls /health until the server is ready.
func (b *ServerBackend) waitHealthy(ctx context.Context, client *Client, exited <-chan error) error {
	deadline := time.NewTimer(b.cfg.StartupTimeout.Std())
	defer deadline.Stop()
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		if err := client.Health(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: server not ready after %s", ErrUnavailable, b.cfg.StartupTimeout)
		case err := <-exited:
			return fmt.Errorf("%w: server exited during startup: %v", ErrUnavailable, err)
		case <-ticker.C:
		}
	}
}

func (b *ServerBackend) forwardLog(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		b.logger.Debug("llama-server", "line", sc.Text())
	}
}

func serverArgs(p LoadParams, port int) []string {
	layers := p.GPULayers
	if layers < 0 {
		layers = allLayers
	}
	return []string{
		"-m", p.Path,
		"-c", strconv.Itoa(p.ContextSize),
		"-t", strconv.Itoa(p.Threads),
		"-ngl", strconv.Itoa(layers),
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	}
}

// serverModel is a model served by llama-server. cmd is nil when attached.
type serverModel struct {
	client *Client
	cmd    *exec.Cmd
	exited <-chan error

	closeOnce sync.Once
	closeErr  error
}

func (m *serverModel) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return m.client.Chat(ctx, req)
}

// Close stops a spawned server. Attached servers are left running.
func (m *serverModel) Close() error {
	m.closeOnce.Do(func() {
		if m.cmd == nil || m.cmd.Process == nil {
			return
		}
		if err := m.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			m.closeErr = err
			return
		}
		select {
		case <-m.exited:
		case <-time.After(5 * time.Second):
		}
	})
	return m.closeErr
}
