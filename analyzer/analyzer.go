// Package analyzer turns scraped documents into a research report with a
// locally loaded model.
//
// An Analyzer owns at most one loaded model. Inference calls against it
// are serialized, and every prompt is cut to fit the model's context
// window before it is sent.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/use-agent/prisma/config"
	"github.com/use-agent/prisma/llm"
	"github.com/use-agent/prisma/metrics"
	"github.com/use-agent/prisma/models"
	"github.com/use-agent/prisma/progress"
)

// State is the model lifecycle state.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// allowed lists the legal state transitions.
var allowed = map[State][]State{
	StateUnloaded: {StateLoading},
	StateLoading:  {StateLoaded, StateUnloaded},
	StateLoaded:   {StateUnloaded},
}

// ModelLocator resolves the default model file.
type ModelLocator interface {
	IsAvailable() bool
	DefaultPath() string
}

// Analyzer is the report synthesizer.
type Analyzer struct {
	cfg     config.AnalysisConfig
	budget  config.BudgetConfig
	backend llm.Backend
	locator ModelLocator
	metrics *metrics.Metrics
	logger  *slog.Logger
	events  *progress.Bus[progress.Message]
	langs   *languageDetector

	loadMu  sync.Mutex // serializes LoadModel and Unload
	inferMu sync.Mutex // serializes inference against the loaded model

	mu        sync.RWMutex
	state     State
	model     llm.Model
	modelPath string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMetrics records synthesis metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithLocator sets the collaborator used when LoadModel gets no path.
func WithLocator(l ModelLocator) Option {
	return func(a *Analyzer) { a.locator = l }
}

// New creates an Analyzer. backend may be nil, in which case LoadModel
// reports a missing dependency.
func New(cfg config.AnalysisConfig, budget config.BudgetConfig, backend llm.Backend, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := budget.Validate(cfg.ContextSize); err != nil {
		return nil, err
	}
	a := &Analyzer{
		cfg:     cfg,
		budget:  budget,
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.events = progress.NewBus[progress.Message](a.logger)
	a.langs = newLanguageDetector()
	return a, nil
}

// OnProgress subscribes fn to status messages.
func (a *Analyzer) OnProgress(fn func(progress.Message)) {
	a.events.Subscribe(fn)
}

// State returns the current lifecycle state.
func (a *Analyzer) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// ModelPath returns the path of the loaded model, or "".
func (a *Analyzer) ModelPath() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.modelPath
}

// IsLoaded reports whether a model is ready for inference.
func (a *Analyzer) IsLoaded() bool {
	return a.State() == StateLoaded
}

// transition moves to state to. Callers hold a.mu.
func (a *Analyzer) transition(to State) error {
	for _, s := range allowed[a.state] {
		if s == to {
			a.logger.Debug("analyzer state", "from", a.state, "to", to)
			a.state = to
			return nil
		}
	}
	return models.NewError(models.ErrCodeInternal,
		fmt.Sprintf("illegal analyzer transition %s -> %s", a.state, to), nil)
}

func (a *Analyzer) setState(to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transition(to)
}

type loadResult struct {
	model llm.Model
	err   error
}

// LoadModel loads the model at path, or the locator's default when path is
// empty. It returns nil at once when a model is already loaded. The
// blocking load runs on its own goroutine; if ctx ends first LoadModel
// returns CANCELED and the late model, if any, is closed.
func (a *Analyzer) LoadModel(ctx context.Context, path string) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	if a.IsLoaded() {
		return nil
	}
	if a.backend == nil {
		a.logger.Error("inference backend not configured")
		return models.NewError(models.ErrCodeDependencyMissing, "inference runtime is not available", nil)
	}
	if path == "" {
		if a.locator == nil || !a.locator.IsAvailable() {
			a.logger.Error("model weights not found")
			return models.NewError(models.ErrCodeWeightsMissing, "model weights not found; run `prisma model download`", nil)
		}
		path = a.locator.DefaultPath()
	}

	if err := a.setState(StateLoading); err != nil {
		return err
	}
	a.logger.Info("loading model", "path", path, "context_size", a.cfg.ContextSize, "threads", a.cfg.Threads)
	a.events.Publish("Loading model...")

	params := llm.LoadParams{
		Path:        path,
		ContextSize: a.cfg.ContextSize,
		Threads:     a.cfg.Threads,
		GPULayers:   a.cfg.GPULayers,
	}
	done := make(chan loadResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- loadResult{err: fmt.Errorf("panic during model load: %v", r)}
			}
		}()
		m, err := a.backend.Load(ctx, params)
		done <- loadResult{model: m, err: err}
	}()

	var res loadResult
	select {
	case res = <-done:
	case <-ctx.Done():
		_ = a.setState(StateUnloaded)
		go func() {
			if late := <-done; late.model != nil {
				_ = late.model.Close()
			}
		}()
		a.logger.Warn("model load canceled", "path", path)
		return models.NewError(models.ErrCodeCanceled, "model load canceled", ctx.Err())
	}

	if res.err != nil {
		_ = a.setState(StateUnloaded)
		err := classifyLoadError(res.err)
		a.logger.Error("model load failed", "path", path, "error", res.err)
		a.events.Publish(progress.Message("Model load failed: " + models.Describe(err)))
		return err
	}

	a.mu.Lock()
	a.model = res.model
	a.modelPath = path
	err := a.transition(StateLoaded)
	a.mu.Unlock()
	if err != nil {
		return err
	}

	a.logger.Info("model loaded", "path", path)
	a.events.Publish("Model loaded")
	return nil
}

func classifyLoadError(err error) error {
	switch {
	case errors.Is(err, llm.ErrWeightsMissing):
		return models.NewError(models.ErrCodeWeightsMissing, "model weights not found", err)
	case errors.Is(err, llm.ErrUnavailable):
		return models.NewError(models.ErrCodeDependencyMissing, "inference runtime is not available", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.ErrCodeCanceled, "model load canceled", err)
	default:
		return models.NewError(models.ErrCodeInternal, "model load failed", err)
	}
}

// Unload releases the loaded model. It waits for an in-flight inference
// call to finish. Unloading an unloaded Analyzer is a no-op.
func (a *Analyzer) Unload() error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()
	a.inferMu.Lock()
	defer a.inferMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateLoaded {
		return nil
	}
	m := a.model
	a.model = nil
	a.modelPath = ""
	if err := a.transition(StateUnloaded); err != nil {
		return err
	}
	a.logger.Info("model unloaded")
	if m != nil {
		return m.Close()
	}
	return nil
}
