package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// webhookEvent is the JSON body posted for each alert. The alert fields
// sit at the top level so receivers can decode it as an Alert.
type webhookEvent struct {
	Event string `json:"event"`
	Alert
	Sent time.Time `json:"sent_at"`
}

// WebhookNotifier POSTs alerts as JSON to a generic HTTP endpoint. The
// alert ID doubles as the Idempotency-Key so retried deliveries can be
// collapsed by the receiver.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	sent := w.now()
	if alert.Time.IsZero() {
		alert.Time = sent
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(webhookEvent{Event: "portfolio.alert", Alert: alert, Sent: sent}); err != nil {
		return fmt.Errorf("webhook %s: encode: %w", alert.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, &buf)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", alert.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if alert.ID != "" {
		req.Header.Set("Idempotency-Key", alert.ID)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", alert.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		if s := strings.TrimSpace(string(excerpt)); s != "" {
			return fmt.Errorf("webhook %s: unexpected status %d: %s", alert.ID, resp.StatusCode, s)
		}
		return fmt.Errorf("webhook %s: unexpected status %d", alert.ID, resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
