package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type WebhookSender struct {
	client *http.Client
	now    clock
}

func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{client: defaultClient(timeout), now: time.Now}
}

type webhookBody struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	MonitorID  int64  `json:"monitor_id"`
	IncidentID *int64 `json:"incident_id,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func (s *WebhookSender) Send(ctx context.Context, p Payload, cfg map[string]string) (string, error) {
	id := messageID("webhook", s.now)
	endpoint := configValue(cfg, ConfigWebhookURL)
	if endpoint == "" {
		return id, fmt.Errorf("%w: %s", ErrMissingConfig, ConfigWebhookURL)
	}
	raw, err := json.Marshal(webhookBody{
		Title:      p.Title,
		Message:    p.Message,
		MonitorID:  p.TargetID,
		IncidentID: p.IncidentID,
		Timestamp:  s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return id, err
	}
	return id, postJSON(ctx, s.client, endpoint, raw, true)
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, raw []byte, withAgent bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if withAgent {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if is2xx(resp) {
		return nil
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
