package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/use-agent/prisma/models"
)

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return text.Text, res.IsError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestScrapeURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/scrape" || r.Header.Get("X-API-Key") != "k" {
			t.Errorf("unexpected request %s key=%q", r.URL.Path, r.Header.Get("X-API-Key"))
		}
		var req models.ScrapeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusOK, models.ScrapeResponse{
			Success:   true,
			Total:     2,
			Succeeded: 1,
			Results: []models.ScrapeResult{
				{URL: req.URLs[0], Success: true, Title: "Go", Markdown: "# Go"},
				{URL: req.URLs[1], Error: "page load timed out"},
			},
		})
	}))
	defer srv.Close()

	text, isErr := callTool(t, handleScrapeURLs(newAPIClient(srv.URL, "k")), map[string]any{
		"urls": []any{"https://go.dev/", "https://slow.example/"},
	})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	for _, want := range []string{"--- [1] Go ---\n# Go", "FAILED: https://slow.example/: page load timed out"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestScrapeURLs_MissingArgument(t *testing.T) {
	text, isErr := callTool(t, handleScrapeURLs(newAPIClient("http://unused", "")), map[string]any{})
	if !isErr || !strings.Contains(text, "urls is required") {
		t.Errorf("got (%q, %v)", text, isErr)
	}
}

func TestScrapeURLs_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{
			Error: &models.ErrorDetail{Code: models.ErrCodeUnauthorized, Message: "invalid API key"},
		})
	}))
	defer srv.Close()

	text, isErr := callTool(t, handleScrapeURLs(newAPIClient(srv.URL, "bad")), map[string]any{
		"urls": []any{"https://go.dev/"},
	})
	if !isErr || !strings.Contains(text, "[UNAUTHORIZED] invalid API key") {
		t.Errorf("got (%q, %v)", text, isErr)
	}
}

func TestResearchReport_PollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/research":
			writeJSON(w, http.StatusAccepted, models.ResearchResponse{ID: "research-1", Status: models.JobProcessing, Total: 1})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/research/research-1":
			if polls.Add(1) < 2 {
				writeJSON(w, http.StatusOK, models.ResearchStatusResponse{ID: "research-1", Status: models.JobProcessing})
				return
			}
			writeJSON(w, http.StatusOK, models.ResearchStatusResponse{
				ID:     "research-1",
				Status: models.JobCompleted,
				Summary: &models.RunSummary{
					Total:      1,
					Succeeded:  1,
					ReportPath: "/out/report.md",
					Analysis:   &models.AnalysisResult{Success: true, Summary: "# Report", TokensUsed: 42},
				},
			})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, "")
	c.pollEvery = 5 * time.Millisecond
	text, isErr := callTool(t, handleResearchReport(c), map[string]any{
		"urls":  []any{"https://go.dev/"},
		"topic": "Go",
	})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	if !strings.HasPrefix(text, "# Report") || !strings.Contains(text, "Tokens: 42") || !strings.Contains(text, "/out/report.md") {
		t.Errorf("output:\n%s", text)
	}
	if polls.Load() < 2 {
		t.Errorf("polled %d times", polls.Load())
	}
}

func TestResearchReport_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status models.ResearchStatusResponse
		want   string
	}{
		{
			name: "job failed",
			status: models.ResearchStatusResponse{
				Status: models.JobFailed,
				Error:  &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "no scrapeable URLs"},
			},
			want: "[INVALID_INPUT] no scrapeable URLs",
		},
		{
			name: "no content",
			status: models.ResearchStatusResponse{
				Status:  models.JobCompleted,
				Summary: &models.RunSummary{Total: 1, Results: []models.ScrapeResult{{URL: "https://x.example/", Error: "boom"}}},
			},
			want: "nothing to analyze",
		},
		{
			name: "report failed",
			status: models.ResearchStatusResponse{
				Status: models.JobCompleted,
				Summary: &models.RunSummary{
					Analysis: &models.AnalysisResult{ErrorCode: models.ErrCodeWeightsMissing, Error: "model weights not found"},
				},
			},
			want: "report failed [WEIGHTS_MISSING]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost {
					writeJSON(w, http.StatusAccepted, models.ResearchResponse{ID: "j", Status: models.JobProcessing})
					return
				}
				writeJSON(w, http.StatusOK, tt.status)
			}))
			defer srv.Close()

			c := newAPIClient(srv.URL, "")
			c.pollEvery = time.Millisecond
			text, isErr := callTool(t, handleResearchReport(c), map[string]any{
				"urls":  []any{"https://x.example/"},
				"topic": "x",
			})
			if !isErr || !strings.Contains(text, tt.want) {
				t.Errorf("got (%q, %v), want error containing %q", text, isErr, tt.want)
			}
		})
	}
}
