// Package notification delivers portfolio alerts (day-change moves, sync
// failures) to log, webhook and Telegram channels.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	ID      string            `json:"id"`
	Level   AlertLevel        `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Time    time.Time         `json:"ts"`
}

// NewAlert stamps a new alert with an ID and the current time.
func NewAlert(level AlertLevel, title, message string) Alert {
	return Alert{
		ID:      uuid.NewString(),
		Level:   level,
		Title:   title,
		Message: message,
		Time:    time.Now().UTC(),
	}
}

// With returns a copy of a with key set in Fields.
func (a Alert) With(key, value string) Alert {
	fields := make(map[string]string, len(a.Fields)+1)
	for k, v := range a.Fields {
		fields[k] = v
	}
	fields[key] = value
	a.Fields = fields
	return a
}

// sortedFields returns field keys in stable order for rendering.
func (a Alert) sortedFields() []string {
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a structured logger.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses the default.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{log: l.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	attrs := []any{slog.String("alert_id", alert.ID), slog.String("title", alert.Title)}
	for _, k := range alert.sortedFields() {
		attrs = append(attrs, slog.String(k, alert.Fields[k]))
	}
	n.log.Log(ctx, level, alert.Message, attrs...)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Channels lists the optional remote alert destinations.
type Channels struct {
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string
}

// Build returns a log notifier plus one notifier per configured channel.
// Telegram needs both the token and the chat id.
func Build(l *slog.Logger, ch Channels) Multi {
	m := Multi{NewLogNotifier(l)}
	if ch.WebhookURL != "" {
		m = append(m, NewWebhookNotifier(ch.WebhookURL))
	}
	if ch.TelegramToken != "" && ch.TelegramChatID != "" {
		m = append(m, NewTelegramNotifier(ch.TelegramToken, ch.TelegramChatID))
	}
	return m
}
