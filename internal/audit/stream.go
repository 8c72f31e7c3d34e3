package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/events"
)

// Entry is one audit event as served to the moderation-log surface. Cursor
// is the position to pass back as "after" when polling.
type Entry struct {
	Cursor string
	Event  domain.SanctionEvent
}

// StreamFeed mirrors audit events into a capped Redis stream.
type StreamFeed struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewStreamFeed returns a feed writing to the stream at key, trimmed to
// roughly maxLen entries.
func NewStreamFeed(client *redis.Client, key string, maxLen int64) *StreamFeed {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &StreamFeed{client: client, key: key, maxLen: maxLen}
}

// Handle is the dispatcher subscription for recorded sanctions.
func (f *StreamFeed) Handle(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SanctionRecordedPayload)
	if !ok {
		return fmt.Errorf("audit stream: unexpected payload %T", event.Payload)
	}
	_, err := f.Append(ctx, payload.Event)
	return err
}

// Append adds one event and returns its stream id.
func (f *StreamFeed) Append(ctx context.Context, event domain.SanctionEvent) (string, error) {
	id, err := f.client.XAdd(ctx, &redis.XAddArgs{
		Stream: f.key,
		MaxLen: f.maxLen,
		Approx: true,
		Values: encodeEvent(event),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", f.key, err)
	}
	return id, nil
}

// List returns up to limit entries after the cursor, oldest first. An
// empty cursor returns the newest entries.
func (f *StreamFeed) List(ctx context.Context, after string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var (
		msgs []redis.XMessage
		err  error
	)
	if after == "" {
		msgs, err = f.client.XRevRangeN(ctx, f.key, "+", "-", int64(limit)).Result()
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	} else {
		// XRANGE is inclusive; read one extra and drop the cursor itself.
		msgs, err = f.client.XRangeN(ctx, f.key, after, "+", int64(limit)+1).Result()
		if len(msgs) > 0 && msgs[0].ID == after {
			msgs = msgs[1:]
		}
		if len(msgs) > limit {
			msgs = msgs[:limit]
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.key, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		ev, err := decodeEvent(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", msg.ID, err)
		}
		entries = append(entries, Entry{Cursor: msg.ID, Event: ev})
	}
	return entries, nil
}

func encodeEvent(e domain.SanctionEvent) map[string]interface{} {
	return map[string]interface{}{
		"id":          e.ID,
		"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"target":      e.Target,
		"actor":       e.Actor,
		"trigger":     string(e.Trigger),
		"action":      string(e.Action),
		"duration_ms": e.Duration.Milliseconds(),
		"strikes":     e.Strikes,
		"reason":      e.Reason,
		"summary":     e.Summary,
	}
}

func decodeEvent(values map[string]interface{}) (domain.SanctionEvent, error) {
	str := func(k string) string {
		s, _ := values[k].(string)
		return s
	}

	occurred, err := time.Parse(time.RFC3339Nano, str("occurred_at"))
	if err != nil {
		return domain.SanctionEvent{}, fmt.Errorf("occurred_at: %w", err)
	}
	durationMS, err := strconv.ParseInt(str("duration_ms"), 10, 64)
	if err != nil {
		return domain.SanctionEvent{}, fmt.Errorf("duration_ms: %w", err)
	}
	strikes, err := strconv.Atoi(str("strikes"))
	if err != nil {
		return domain.SanctionEvent{}, fmt.Errorf("strikes: %w", err)
	}

	return domain.SanctionEvent{
		ID:         str("id"),
		OccurredAt: occurred,
		Target:     str("target"),
		Actor:      str("actor"),
		Trigger:    domain.Trigger(str("trigger")),
		Action:     domain.SanctionAction(str("action")),
		Duration:   time.Duration(durationMS) * time.Millisecond,
		Strikes:    strikes,
		Reason:     str("reason"),
		Summary:    str("summary"),
	}, nil
}
