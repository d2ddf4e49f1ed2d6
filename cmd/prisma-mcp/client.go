package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/prisma/models"
)

// apiClient talks to a running `prisma serve`.
type apiClient struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	pollEvery time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: 10 * time.Minute},
		pollEvery: 2 * time.Second,
	}
}

// do sends a request and decodes a 2xx JSON body into out. Other statuses
// are returned as errors carrying the API's error detail.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr models.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != nil {
			return fmt.Errorf("[%s] %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *apiClient) scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error) {
	var resp models.ScrapeResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/scrape", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// research starts a job and polls it until it leaves the processing state.
func (c *apiClient) research(ctx context.Context, req models.ResearchRequest) (*models.ResearchStatusResponse, error) {
	var started models.ResearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/research", req, &started); err != nil {
		return nil, err
	}
	if started.ID == "" {
		return nil, fmt.Errorf("research job creation failed")
	}

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var status models.ResearchStatusResponse
			if err := c.do(ctx, http.MethodGet, "/api/v1/research/"+started.ID, nil, &status); err != nil {
				return nil, err
			}
			if status.Status != models.JobProcessing && status.Status != models.JobQueued {
				return &status, nil
			}
		}
	}
}
