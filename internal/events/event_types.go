package events

import (
	"time"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSanctionRecorded  EventType = "sanction_recorded"
	EventMessageAccepted   EventType = "message_accepted"
	EventSessionTerminated EventType = "session_terminated"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Subject   string      `json:"subject"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SanctionRecordedPayload carries the audit entry that was just stored.
type SanctionRecordedPayload struct {
	Event domain.SanctionEvent `json:"event"`
}

// MessageAcceptedPayload payload.
type MessageAcceptedPayload struct {
	MessageID   string `json:"message_id"`
	ChannelID   string `json:"channel_id"`
	HasImage    bool   `json:"has_image"`
	BodyPreview string `json:"body_preview"`
}

// SessionTerminatedPayload payload.
type SessionTerminatedPayload struct {
	Reason string `json:"reason"`
}
