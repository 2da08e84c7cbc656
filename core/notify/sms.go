package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"monitor-hub/config"
	"monitor-hub/core/utils"
)

type SMSSender struct {
	cfg    config.SMSConfig
	client *http.Client
	logger *utils.Logger
	now    clock
}

func NewSMSSender(cfg config.SMSConfig, timeout time.Duration, logger *utils.Logger) *SMSSender {
	return &SMSSender{cfg: cfg, client: defaultClient(timeout), logger: logger, now: time.Now}
}

func (s *SMSSender) Send(ctx context.Context, p Payload, cfg map[string]string) (string, error) {
	id := messageID("sms", s.now)
	to := configValue(cfg, ConfigPhoneNumber)
	if to == "" {
		return id, fmt.Errorf("%w: %s", ErrMissingConfig, ConfigPhoneNumber)
	}
	text := p.Title + ": " + p.Message
	gateway := strings.TrimSpace(s.cfg.GatewayURL)
	if gateway == "" {
		s.logger.WithField("to", to).Printf("sms notification (gateway not configured): %s", text)
		return id, nil
	}
	body := map[string]string{"to": to, "message": text}
	if s.cfg.From != "" {
		body["from"] = s.cfg.From
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return id, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gateway, bytes.NewReader(raw))
	if err != nil {
		return id, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return id, err
	}
	defer resp.Body.Close()
	if !is2xx(resp) {
		return id, fmt.Errorf("sms gateway status %d", resp.StatusCode)
	}
	return id, nil
}
