// Package llm is the local inference collaborator: it loads model weights
// into a llama.cpp server and runs chat completions against them.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds returned by backends and models. Check with errors.Is.
var (
	// ErrUnavailable means the inference runtime cannot be reached or
	// started.
	ErrUnavailable = errors.New("inference runtime unavailable")

	// ErrWeightsMissing means the model file does not exist.
	ErrWeightsMissing = errors.New("model weights missing")

	// ErrContextOverflow means the prompt does not fit the context window.
	ErrContextOverflow = errors.New("prompt exceeds context window")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LoadParams describes how to load model weights.
type LoadParams struct {
	Path        string
	ContextSize int
	Threads     int
	GPULayers   int // -1 offloads every layer
}

// ChatRequest is one completion call.
type ChatRequest struct {
	Messages      []Message
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
}

// ChatResponse is the generated text and token usage.
type ChatResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Backend loads models. Load blocks until the model is ready.
type Backend interface {
	Load(ctx context.Context, params LoadParams) (Model, error)
}

// Model is a loaded model. Calls are not designed to run in parallel.
type Model interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Close() error
}

// APIError is an error response from the inference server.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("inference server returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("inference server returned %d: %s", e.StatusCode, e.Message)
}
