package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookNotifier POSTs the Alert as JSON, decision included, to a generic
// HTTP endpoint such as a chat bridge or an order router.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string, l zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    l.With().Str("component", "webhook").Logger(),
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.At.IsZero() {
		alert.At = w.now()
	}
	alert.At = alert.At.UTC()
	if err := postJSON(ctx, w.client, w.url, alert); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	w.log.Debug().Str("kind", string(alert.Kind)).Str("title", alert.Title).Msg("sent alert")
	return nil
}

// postJSON sends v and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
