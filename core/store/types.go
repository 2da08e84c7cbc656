package store

import "time"

const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDegraded = "degraded"

	IncidentOpen     = "open"
	IncidentResolved = "resolved"

	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

const (
	KindWebsite  = "website"
	KindAPI      = "api"
	KindDatabase = "database"
	KindWebhook  = "webhook"
)

const (
	ConditionDown       = "down"
	ConditionSlow       = "slow"
	ConditionStatusCode = "status_code"
)

const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
	ChannelSlack   = "slack"
)

type Target struct {
	ID             int64             `json:"id"`
	UserID         int64             `json:"user_id"`
	Name           string            `json:"name"`
	Kind           string            `json:"kind"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers"`
	Body           *string           `json:"body,omitempty"`
	ExpectedStatus int               `json:"expected_status_code"`
	TimeoutSec     int               `json:"timeout_sec"`
	IntervalMin    int               `json:"interval_min"`
	IsActive       bool              `json:"is_active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type ProbeResult struct {
	ID             int64     `json:"id,omitempty"`
	TargetID       int64     `json:"monitor_id"`
	Status         string    `json:"status"`
	ResponseTimeMs *int      `json:"response_time_ms,omitempty"`
	StatusCode     *int      `json:"status_code,omitempty"`
	Error          *string   `json:"error,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// ActivityCheck is a check joined with the target it belongs to.
type ActivityCheck struct {
	ProbeResult
	TargetName string `json:"monitor_name"`
	TargetKind string `json:"monitor_kind"`
	TargetURL  string `json:"monitor_url"`
}

func (r ProbeResult) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

type Incident struct {
	ID          int64      `json:"id"`
	TargetID    int64      `json:"monitor_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Severity    string     `json:"severity"`
	OpenedAt    time.Time  `json:"opened_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type IncidentFilter struct {
	UserID   int64
	TargetID int64
	Status   string
	Limit    int
}

type ChannelConfig struct {
	Kind   string            `json:"type"`
	Config map[string]string `json:"config"`
}

type AlertRule struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	TargetID       *int64          `json:"monitor_id,omitempty"`
	Name           string          `json:"name"`
	Condition      string          `json:"condition"`
	ThresholdValue *float64        `json:"threshold_value,omitempty"`
	Channels       []ChannelConfig `json:"notification_channels"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

type NotificationRecord struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	TargetID   int64     `json:"monitor_id"`
	IncidentID *int64    `json:"incident_id,omitempty"`
	Channel    string    `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	MessageID  string    `json:"message_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type APIKey struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}
