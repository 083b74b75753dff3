// Package application delivers fired nags and celebrations to the
// notification layer and reports the outcome back to the nag schedule.
package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

var (
	// ErrPermissionDenied means the OS or device refused the notification.
	// It is permanent until the user re-enables notifications.
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrNoNotifier       = errors.New("notifier is required")
)

// Kind distinguishes what a notification is for.
type Kind string

const (
	KindNag         Kind = "nag"
	KindCelebration Kind = "celebration"
	KindWithdraw    Kind = "withdraw"
)

// Notification is one message for the user.
type Notification struct {
	Kind      Kind      `json:"kind"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Category  string    `json:"category,omitempty"`
	FireCount int       `json:"fire_count,omitempty"`
	Retry     bool      `json:"retry,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier is the external notification layer.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It is the notifier used in
// local mode and by the CLI.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.logger.InfoContext(ctx, "notify",
		"kind", note.Kind,
		"task_id", note.TaskID,
		"category", note.Category,
		"message", note.Message,
		"fire_count", note.FireCount,
		"retry", note.Retry,
	)
	return nil
}

// WebhookNotifier posts notifications as JSON to a URL. 403 and 410
// answers mean the device has revoked permission.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for url. A nil client gets a
// 10 second timeout.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

func (n *WebhookNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone:
		return ErrPermissionDenied
	default:
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
}
