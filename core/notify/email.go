package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"monitor-hub/config"
	"monitor-hub/core/utils"
)

type EmailSender struct {
	cfg    config.SMTPConfig
	logger *utils.Logger
	now    clock
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg config.SMTPConfig, logger *utils.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, logger: logger, now: time.Now, send: smtp.SendMail}
}

func (s *EmailSender) Send(ctx context.Context, p Payload, cfg map[string]string) (string, error) {
	id := messageID("email", s.now)
	to := configValue(cfg, ConfigEmail)
	if to == "" {
		return id, fmt.Errorf("%w: %s", ErrMissingConfig, ConfigEmail)
	}
	if strings.TrimSpace(s.cfg.Host) == "" {
		s.logger.WithFields(map[string]any{"to": to, "subject": p.Title}).Printf("email notification (smtp not configured): %s", p.Message)
		return id, nil
	}
	if err := ctx.Err(); err != nil {
		return id, err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{to}, buildMail(s.cfg.From, to, p, s.now())); err != nil {
		return id, err
	}
	return id, nil
}

func buildMail(from, to string, p Payload, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(p.Title) + "\r\n")
	b.WriteString("Date: " + now.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(p.Message)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
