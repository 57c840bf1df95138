package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/replay/diff"
)

// Webhook POSTs each envelope as JSON, retrying with exponential backoff.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the number of retries after the first attempt.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay; it doubles on each retry.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookClient replaces the HTTP client (10s timeout by default).
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) SendSnapshot(ctx context.Context, snap diff.Snapshot) error {
	return w.post(ctx, snapshotEnvelope(snap))
}

func (w *Webhook) SendBatch(ctx context.Context, batch diff.Batch) error {
	return w.post(ctx, batchEnvelope(batch))
}

func (w *Webhook) Close() error { return nil }

// errPermanent marks a response that retrying cannot fix.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

func (w *Webhook) post(ctx context.Context, e Envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", e.Type, err)
	}

	err = w.attempt(ctx, e.Type, body)
	for i := 0; i < w.maxRetries && err != nil; i++ {
		if _, ok := err.(errPermanent); ok {
			return err
		}
		w.logger.Warn("webhook: delivery failed, retrying",
			"page_id", e.PageID, "type", e.Type, "retry", i+1, "error", err)
		if werr := sleep(ctx, w.backoff<<i); werr != nil {
			return werr
		}
		err = w.attempt(ctx, e.Type, body)
	}
	if err != nil {
		return fmt.Errorf("webhook: giving up after %d retries: %w", w.maxRetries, err)
	}
	return nil
}

// attempt sends body once. 4xx answers other than 429 are permanent.
func (w *Webhook) attempt(ctx context.Context, kind string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errPermanent{fmt.Errorf("webhook: new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Replay-Type", kind)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests:
		return errPermanent{fmt.Errorf("webhook: status %d", code)}
	default:
		return fmt.Errorf("webhook: status %d", code)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
