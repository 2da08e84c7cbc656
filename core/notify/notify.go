package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const userAgent = "Monitor-Hub/1.0"

// Channel config keys as stored in alert rules.
const (
	ConfigEmail        = "email"
	ConfigPhoneNumber  = "phoneNumber"
	ConfigWebhookURL   = "webhookUrl"
	ConfigSlackWebhook = "slackWebhookUrl"
)

var (
	ErrUnknownChannel = errors.New("Unknown notification type")
	ErrMissingConfig  = errors.New("channel config incomplete")
)

type Payload struct {
	UserID     int64  `json:"user_id"`
	TargetID   int64  `json:"monitor_id"`
	IncidentID *int64 `json:"incident_id,omitempty"`
	Title      string `json:"title"`
	Message    string `json:"message"`
}

// Sender delivers one payload through one channel. The returned message id
// is reported even when err is non-nil if the sender produced one.
type Sender interface {
	Send(ctx context.Context, p Payload, cfg map[string]string) (string, error)
}

type SenderFunc func(ctx context.Context, p Payload, cfg map[string]string) (string, error)

func (f SenderFunc) Send(ctx context.Context, p Payload, cfg map[string]string) (string, error) {
	return f(ctx, p, cfg)
}

type clock func() time.Time

func messageID(kind string, now clock) string {
	return fmt.Sprintf("%s_%d", kind, now().UnixMilli())
}

func configValue(cfg map[string]string, key string) string {
	if cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg[key])
}

func is2xx(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func defaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
