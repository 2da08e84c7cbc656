package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type SlackSender struct {
	client *http.Client
	now    clock
}

func NewSlackSender(timeout time.Duration) *SlackSender {
	return &SlackSender{client: defaultClient(timeout), now: time.Now}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

// slackColor derives the attachment colour from the alert title.
func slackColor(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "down"):
		return "danger"
	case strings.Contains(lower, "degraded"):
		return "warning"
	default:
		return "good"
	}
}

func (s *SlackSender) Send(ctx context.Context, p Payload, cfg map[string]string) (string, error) {
	id := messageID("slack", s.now)
	endpoint := configValue(cfg, ConfigSlackWebhook)
	if endpoint == "" {
		return id, fmt.Errorf("%w: %s", ErrMissingConfig, ConfigSlackWebhook)
	}
	monitor := "N/A"
	if p.TargetID > 0 {
		monitor = strconv.FormatInt(p.TargetID, 10)
	}
	msg := slackMessage{Attachments: []slackAttachment{{
		Color: slackColor(p.Title),
		Title: p.Title,
		Text:  p.Message,
		Fields: []slackField{
			{Title: "Monitor ID", Value: monitor, Short: true},
			{Title: "Time", Value: s.now().UTC().Format(time.RFC3339), Short: true},
		},
	}}}
	raw, err := json.Marshal(msg)
	if err != nil {
		return id, err
	}
	return id, postJSON(ctx, s.client, endpoint, raw, false)
}
