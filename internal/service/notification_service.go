package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/config"
	"github.com/nexus-chat/moderation-service/internal/events"
)

const notificationQueueSize = 256

// webhookPayload is the JSON body posted for every audit entry.
type webhookPayload struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Target     string    `json:"target"`
	Actor      string    `json:"actor"`
	Trigger    string    `json:"trigger"`
	Action     string    `json:"action"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Strikes    int       `json:"strikes"`
	Reason     string    `json:"reason,omitempty"`
	Summary    string    `json:"summary"`
}

// NotificationService forwards audit entries to an external webhook.
// Deliveries are queued so a slow endpoint never holds up moderation.
type NotificationService struct {
	dispatcher events.Dispatcher
	client     *http.Client
	logger     *zap.Logger
	cfg        config.NotificationConfig
	queue      chan events.Event
}

// NewNotificationService creates the service. client should retry on its own.
func NewNotificationService(dispatcher events.Dispatcher, client *http.Client, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		client:     client,
		logger:     logger.Named("notifications"),
		cfg:        cfg,
		queue:      make(chan events.Event, notificationQueueSize),
	}
}

// Enabled reports whether a webhook is configured.
func (n *NotificationService) Enabled() bool {
	return strings.TrimSpace(n.cfg.WebhookURL) != ""
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || !n.Enabled() {
		return
	}
	n.dispatcher.Subscribe(events.EventSanctionRecorded, n.enqueue)
}

func (n *NotificationService) enqueue(_ context.Context, event events.Event) error {
	select {
	case n.queue <- event:
		return nil
	default:
		return fmt.Errorf("notification queue full, dropping event %s", event.ID)
	}
}

// Run delivers queued events until ctx is done.
func (n *NotificationService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.queue:
			if err := n.deliver(ctx, event); err != nil {
				n.logger.Warn("webhook delivery failed",
					zap.String("event_id", event.ID),
					zap.String("event_type", string(event.Type)),
					zap.Error(err))
			}
		}
	}
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SanctionRecordedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	ev := payload.Event
	body, err := json.Marshal(webhookPayload{
		Type:       string(event.Type),
		ID:         ev.ID,
		OccurredAt: ev.OccurredAt,
		Target:     ev.Target,
		Actor:      ev.Actor,
		Trigger:    string(ev.Trigger),
		Action:     string(ev.Action),
		DurationMS: ev.Duration.Milliseconds(),
		Strikes:    ev.Strikes,
		Reason:     ev.Reason,
		Summary:    ev.Summary,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	n.logger.Debug("webhook delivered",
		zap.String("event_id", ev.ID),
		zap.String("url", n.cfg.WebhookURL))
	return nil
}
