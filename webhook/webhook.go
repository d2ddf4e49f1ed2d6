// Package webhook notifies external endpoints about research jobs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/prisma/config"
)

// Event types.
const (
	EventResearchCompleted = "research.completed"
	EventResearchFailed    = "research.failed"
)

// SignatureHeader carries the HMAC-SHA256 of the body as "sha256=<hex>".
const SignatureHeader = "X-Prisma-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sender delivers events.
type Sender struct {
	client *http.Client
	secret string
	delays []time.Duration
	logger *slog.Logger
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// WithHTTPClient sets the client used for delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.client = c }
}

// WithRetryDelays replaces the waits before each retry.
func WithRetryDelays(d ...time.Duration) Option {
	return func(s *Sender) { s.delays = d }
}

// NewSender creates a Sender. Retries wait 1s, 5s, then 30s, up to
// cfg.MaxRetries.
func NewSender(cfg config.WebhookConfig, opts ...Option) *Sender {
	s := &Sender{
		client: &http.Client{Timeout: cfg.Timeout.Std()},
		secret: cfg.Secret,
		logger: slog.Default(),
	}
	all := []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}
	s.delays = all[:min(max(cfg.MaxRetries, 0), len(all))]
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends event once. The body is signed when a secret is set.
func (s *Sender) Deliver(ctx context.Context, url string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Prisma-Webhook/1.0")
	if s.secret != "" {
		req.Header.Set(SignatureHeader, Sign(s.secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverWithRetry sends event, retrying after each configured delay. It
// blocks until delivery succeeds, retries run out, or ctx is done.
func (s *Sender) DeliverWithRetry(ctx context.Context, url string, event *Event) error {
	var err error
	for attempt := 0; attempt <= len(s.delays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.delays[attempt-1]):
			}
		}
		if err = s.Deliver(ctx, url, event); err == nil {
			s.logger.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
			)
			return nil
		}
		s.logger.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	s.logger.Error("webhook delivery exhausted all retries",
		"url", url,
		"event", event.Type,
		"job_id", event.JobID,
	)
	return err
}

// DeliverAsync runs DeliverWithRetry in the background.
func (s *Sender) DeliverAsync(url string, event *Event) {
	go func() {
		_ = s.DeliverWithRetry(context.Background(), url, event)
	}()
}
