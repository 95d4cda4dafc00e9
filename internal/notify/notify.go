// Package notify delivers escalation and decision notifications to the
// configured channels.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"signal-arbiter/internal/config"
	"signal-arbiter/internal/models"
)

// Notifier sends pipeline notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendEscalation(ctx context.Context, run *models.RunState) error
	SendDecision(ctx context.Context, run *models.RunState) error
	SendError(ctx context.Context, err error, context string) error
}

// Channel is one delivery mechanism.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification is one message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationEscalation NotificationType = "escalation"
	NotificationDecision   NotificationType = "decision"
	NotificationError      NotificationType = "error"
)

// MultiNotifier fans a notification out to every enabled channel.
type MultiNotifier struct {
	channels []Channel
	mu       sync.RWMutex
}

// NewMultiNotifier builds a notifier from the configuration. A disabled
// configuration yields a notifier with no channels, which sends nothing.
func NewMultiNotifier(cfg *config.NotificationConfig) *MultiNotifier {
	mn := &MultiNotifier{channels: make([]Channel, 0)}
	if !cfg.Enabled {
		return mn
	}

	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookChannel(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramChannel(cfg.Telegram))
	}
	return mn
}

// AddChannel registers an extra channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Send delivers to every enabled channel and aggregates failures.
// Delivery failures never fail the pipeline; callers log and move on.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendEscalation notifies that a run requires human approval.
func (mn *MultiNotifier) SendEscalation(ctx context.Context, run *models.RunState) error {
	title := fmt.Sprintf("Escalation: %s requires human approval", run.Symbol)
	message := fmt.Sprintf(
		"Run: %s\nSymbol: %s\nReason: %s\nStarted: %s",
		run.RunID, run.Symbol, run.FinalReason, run.StartedAt.Format(time.RFC3339),
	)
	return mn.Send(ctx, Notification{
		Type:    NotificationEscalation,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"run_id": run.RunID,
			"symbol": run.Symbol,
			"reason": run.FinalReason,
		},
	})
}

// SendDecision notifies about a completed run.
func (mn *MultiNotifier) SendDecision(ctx context.Context, run *models.RunState) error {
	title := fmt.Sprintf("Decision: %s %s", run.FinalAction, run.Symbol)
	message := fmt.Sprintf(
		"Run: %s\nSymbol: %s\nAction: %s\nSize: %.4f\nReason: %s",
		run.RunID, run.Symbol, run.FinalAction, run.PositionSize, run.FinalReason,
	)
	return mn.Send(ctx, Notification{
		Type:    NotificationDecision,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"run_id": run.RunID,
			"symbol": run.Symbol,
			"action": string(run.FinalAction),
			"size":   run.PositionSize,
		},
	})
}

// SendError notifies about a pipeline error.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, context string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Pipeline error",
		Message: fmt.Sprintf("Context: %s\nError: %v", context, err),
		Data: map[string]interface{}{
			"context": context,
			"error":   err.Error(),
		},
	})
}

// WebhookChannel posts notifications as JSON to a configured URL.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *resty.Client
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  resty.New().SetTimeout(10 * time.Second),
	}
}

// Name returns the channel name.
func (w *WebhookChannel) Name() string { return "webhook" }

// IsEnabled reports whether the channel is configured.
func (w *WebhookChannel) IsEnabled() bool { return w.enabled }

// Send posts the notification payload.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// TelegramChannel sends notifications via a Telegram bot.
type TelegramChannel struct {
	botToken string
	chatID   string
	enabled  bool
	client   *resty.Client
}

// NewTelegramChannel creates a Telegram channel.
func NewTelegramChannel(cfg config.TelegramConfig) *TelegramChannel {
	return &TelegramChannel{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   resty.New().SetTimeout(10 * time.Second),
	}
}

// Name returns the channel name.
func (t *TelegramChannel) Name() string { return "telegram" }

// IsEnabled reports whether the channel is configured.
func (t *TelegramChannel) IsEnabled() bool { return t.enabled }

// Send delivers the notification via the Telegram bot API.
func (t *TelegramChannel) Send(ctx context.Context, n Notification) error {
	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post(url)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode())
	}
	return nil
}

// escapeHTML escapes HTML special characters for Telegram parse mode.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
