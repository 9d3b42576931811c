package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/buildkite/roko"
	"github.com/h4mn/skybridge/domainevent"
)

// WebhookChannel POSTs the event as JSON to a configured URL, retrying
// transient failures (5xx, 429, connection errors) with roko: up to 3
// attempts, 2s apart.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel returns a Channel posting to url with a bounded HTTP
// client timeout matching the Sink's per-dispatch budget.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *WebhookChannel) Name() string { return "webhook:" + c.url }

func (c *WebhookChannel) Notify(ctx context.Context, event domainevent.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notification: marshaling event: %w", err)
	}

	return roko.NewRetrier(
		roko.WithMaxAttempts(3),
		roko.WithStrategy(roko.Constant(2*time.Second)),
	).DoWithContext(ctx, func(r *roko.Retrier) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			err := fmt.Errorf("notification: webhook %s returned %d", c.url, resp.StatusCode)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				r.Break()
			}
			return err
		}
		return nil
	})
}
