package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/use-agent/prisma/config"
)

const testBase = "http://llama.test"

func newMockClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	return NewClient(testBase+"/", &http.Client{Transport: transport}), transport
}

func TestChat_Success(t *testing.T) {
	client, transport := newMockClient(t)

	var got chatRequest
	transport.RegisterResponder(http.MethodPost, testBase+"/v1/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`{"choices":[{"message":{"role":"assistant","content":"the report"}}],"usage":{"prompt_tokens":90,"completion_tokens":30,"total_tokens":120}}`), nil
		})

	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages:      []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
		MaxTokens:     1396,
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text != "the report" || resp.TotalTokens != 120 || resp.PromptTokens != 90 {
		t.Errorf("Chat() = %+v", resp)
	}
	if got.MaxTokens != 1396 || got.TopK != 40 || got.RepeatPenalty != 1.1 || len(got.Messages) != 2 {
		t.Errorf("request body = %+v", got)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		overflow bool
		unavail  bool
	}{
		{
			name:     "structured overflow",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":400,"message":"the request exceeds the available context size","type":"exceed_context_size_error"}}`,
			overflow: true,
		},
		{
			name:     "message overflow",
			status:   http.StatusInternalServerError,
			body:     `{"error":{"message":"Requested tokens exceed context window of 4096","type":"server_error"}}`,
			overflow: true,
		},
		{
			name:     "plain text overflow",
			status:   http.StatusInternalServerError,
			body:     `context size exceeded`,
			overflow: true,
		},
		{
			name:    "loading",
			status:  http.StatusServiceUnavailable,
			body:    `{"error":{"message":"Loading model","type":"unavailable_error"}}`,
			unavail: true,
		},
		{
			name:   "generic",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"boom","type":"server_error"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := newMockClient(t)
			transport.RegisterResponder(http.MethodPost, testBase+"/v1/chat/completions",
				httpmock.NewStringResponder(tt.status, tt.body))

			_, err := client.Chat(context.Background(), ChatRequest{})
			if err == nil {
				t.Fatal("Chat() error = nil")
			}
			if got := errors.Is(err, ErrContextOverflow); got != tt.overflow {
				t.Errorf("errors.Is(ErrContextOverflow) = %v, want %v (%v)", got, tt.overflow, err)
			}
			if got := errors.Is(err, ErrUnavailable); got != tt.unavail {
				t.Errorf("errors.Is(ErrUnavailable) = %v, want %v (%v)", got, tt.unavail, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not an *APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
		})
	}
}

func TestChat_ConnectionFailure(t *testing.T) {
	client, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodPost, testBase+"/v1/chat/completions",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := client.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Chat() error = %v, want ErrUnavailable", err)
	}
}

func TestChat_NoChoices(t *testing.T) {
	client, transport := newMockClient(t)
	transport.RegisterResponder(http.MethodPost, testBase+"/v1/chat/completions",
		httpmock.NewStringResponder(http.StatusOK, `{"choices":[]}`))

	if _, err := client.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("Chat() error = nil, want error for empty choices")
	}
}

func TestIsOverflowMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Requested tokens (5000) exceed context window of 4096", true},
		{"prompt is larger than the Context Size", true},
		{"the request exceeds the available context size", true},
		{"out of memory", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsOverflowMessage(tt.msg); got != tt.want {
			t.Errorf("IsOverflowMessage(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func writeWeights(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, []byte("GGUF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestBackend(cfg config.InferenceConfig) (*ServerBackend, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServerBackend(cfg,
		WithLogger(logger),
		WithHTTPClient(&http.Client{Transport: transport}),
	), transport
}

func TestLoad_WeightsMissing(t *testing.T) {
	b, transport := newTestBackend(config.InferenceConfig{BaseURL: testBase})

	_, err := b.Load(context.Background(), LoadParams{Path: filepath.Join(t.TempDir(), "absent.gguf")})
	if !errors.Is(err, ErrWeightsMissing) {
		t.Errorf("Load() error = %v, want ErrWeightsMissing", err)
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Errorf("server called %d times before weights check", n)
	}
}

func TestLoad_Attach(t *testing.T) {
	b, transport := newTestBackend(config.InferenceConfig{BaseURL: testBase})
	transport.RegisterResponder(http.MethodGet, testBase+"/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))
	transport.RegisterResponder(http.MethodPost, testBase+"/v1/chat/completions",
		httpmock.NewStringResponder(http.StatusOK, `{"choices":[{"message":{"content":"hi"}}],"usage":{"total_tokens":3}}`))

	m, err := b.Load(context.Background(), LoadParams{Path: writeWeights(t), ContextSize: 4096})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer m.Close()

	resp, err := m.ChatCompletion(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if resp.Text != "hi" || resp.TotalTokens != 3 {
		t.Errorf("ChatCompletion() = %+v", resp)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() on attached model = %v", err)
	}
}

func TestLoad_AttachUnreachable(t *testing.T) {
	b, transport := newTestBackend(config.InferenceConfig{BaseURL: testBase})
	transport.RegisterResponder(http.MethodGet, testBase+"/health",
		httpmock.NewErrorResponder(errors.New("dial tcp: connection refused")))

	_, err := b.Load(context.Background(), LoadParams{Path: writeWeights(t)})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Load() error = %v, want ErrUnavailable", err)
	}
}

func TestLoad_MissingBinary(t *testing.T) {
	b, _ := newTestBackend(config.InferenceConfig{
		ServerBin:      "prisma-no-such-llama-server",
		Port:           18081,
		StartupTimeout: config.Duration(time.Second),
	})

	_, err := b.Load(context.Background(), LoadParams{Path: writeWeights(t)})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Load() error = %v, want ErrUnavailable", err)
	}
}

func TestServerArgs(t *testing.T) {
	got := serverArgs(LoadParams{Path: "/m.gguf", ContextSize: 4096, Threads: 4, GPULayers: -1}, 8081)
	want := []string{"-m", "/m.gguf", "-c", "4096", "-t", "4", "-ngl", "999", "--host", "127.0.0.1", "--port", "8081"}
	if !slices.Equal(got, want) {
		t.Errorf("serverArgs() = %v, want %v", got, want)
	}

	got = serverArgs(LoadParams{Path: "/m.gguf", ContextSize: 2048, Threads: 2, GPULayers: 0}, 9000)
	if got[7] != "0" {
		t.Errorf("-ngl = %s, want 0", got[7])
	}
}
