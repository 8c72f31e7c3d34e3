package dto

import (
	"math"
	"time"

	"github.com/nexus-chat/moderation-service/internal/audit"
	"github.com/nexus-chat/moderation-service/internal/domain"
)

// PostMessageRequest payload for a text submission.
type PostMessageRequest struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

// CommandRequest payload for an administrative command line.
type CommandRequest struct {
	Command string `json:"command"`
}

// MessageResponse is an accepted chat message.
type MessageResponse struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	System    bool      `json:"system,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessageResponse maps a domain message.
func NewMessageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Sender:    m.Sender,
		Text:      m.Text,
		ImageURL:  m.ImageURL,
		System:    m.System,
		CreatedAt: m.CreatedAt,
	}
}

// NewMessageList maps a page of messages.
func NewMessageList(msgs []domain.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageResponse(m))
	}
	return out
}

// CommandResponse summarizes an executed command.
type CommandResponse struct {
	Kind     string `json:"kind"`
	Summary  string `json:"summary"`
	Affected int    `json:"affected"`
}

// OutcomeResponse is the pipeline decision returned to the client.
type OutcomeResponse struct {
	Outcome          string           `json:"outcome"`
	Code             string           `json:"code,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Category         string           `json:"category,omitempty"`
	Permanent        bool             `json:"permanent,omitempty"`
	Until            *time.Time       `json:"until,omitempty"`
	RemainingSeconds int64            `json:"remaining_seconds,omitempty"`
	Message          *MessageResponse `json:"message,omitempty"`
	Command          *CommandResponse `json:"command,omitempty"`
}

// NewOutcomeResponse maps an outcome; remaining time is rounded up to whole seconds.
func NewOutcomeResponse(o domain.Outcome, now time.Time) OutcomeResponse {
	resp := OutcomeResponse{
		Outcome:   string(o.Kind),
		Code:      o.Code,
		Reason:    o.Reason,
		Permanent: o.Permanent,
		Until:     o.Until,
	}
	if o.Category != "" && o.Category != domain.CategoryNone {
		resp.Category = string(o.Category)
	}
	resp.RemainingSeconds = remainingSeconds(o.Remaining(now))
	if o.Message != nil {
		msg := NewMessageResponse(*o.Message)
		resp.Message = &msg
	}
	if o.Command != nil {
		resp.Command = &CommandResponse{
			Kind:     string(o.Command.Kind),
			Summary:  o.Command.Summary,
			Affected: o.Command.Affected,
		}
	}
	return resp
}

// AuditEntryResponse is one line of the moderation log.
type AuditEntryResponse struct {
	Cursor     string    `json:"cursor"`
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

// NewAuditList maps audit entries.
func NewAuditList(entries []audit.Entry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			Cursor:     e.Cursor,
			ID:         e.Event.ID,
			OccurredAt: e.Event.OccurredAt,
			Target:     e.Event.Target,
			Actor:      e.Event.Actor,
			Trigger:    string(e.Event.Trigger),
			Action:     string(e.Event.Action),
			DurationMS: e.Event.Duration.Milliseconds(),
			Strikes:    e.Event.Strikes,
			Reason:     e.Event.Reason,
			Summary:    e.Event.Summary,
		})
	}
	return out
}

// remainingSeconds rounds up so a sanction that is still active never reports zero.
func remainingSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
