package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/events"
	"github.com/nexus-chat/moderation-service/internal/observability"
	"github.com/nexus-chat/moderation-service/internal/repository"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

const defaultListLimit = 100

// Log is the append-only moderation record. Entries are stored first and
// then published; subscribers never see an entry the store rejected.
type Log struct {
	repo       repository.SanctionEventRepository
	dispatcher events.Dispatcher
	feed       *StreamFeed
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewLog builds the audit log. dispatcher, feed and metrics may be nil.
func NewLog(repo repository.SanctionEventRepository, dispatcher events.Dispatcher, feed *StreamFeed, metrics *observability.Metrics, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Log{
		repo:       repo,
		dispatcher: dispatcher,
		feed:       feed,
		metrics:    metrics,
		logger:     logger.Named("audit"),
	}
	if dispatcher != nil && feed != nil {
		dispatcher.Subscribe(events.EventSanctionRecorded, feed.Handle)
	}
	return l
}

// Record appends event and publishes it.
func (l *Log) Record(ctx context.Context, event domain.SanctionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := l.repo.Append(ctx, &event); err != nil {
		return apperrors.NewPersistenceUnavailable(err)
	}
	l.metrics.RecordSanction(string(event.Trigger), string(event.Action))
	l.logger.Info("audit event recorded",
		zap.String("event_id", event.ID),
		zap.String("summary", event.Summary),
		zap.String("target", event.Target),
		zap.String("actor", event.Actor),
		zap.String("trigger", string(event.Trigger)),
		zap.String("action", string(event.Action)),
		zap.Int("strikes", event.Strikes))

	if l.dispatcher != nil {
		_ = l.dispatcher.Publish(ctx, events.Event{
			ID:        event.ID,
			Type:      events.EventSanctionRecorded,
			Subject:   domain.UserKey(event.Target),
			Actor:     event.Actor,
			Timestamp: event.OccurredAt,
			Payload:   events.SanctionRecordedPayload{Event: event},
		})
	}
	return nil
}

// List serves the moderation-log surface, oldest first. Without a cursor it
// returns the newest page; with one, the entries that follow it. It reads the
// stream when one is configured and falls back to the store, whose cursors
// are event IDs.
func (l *Log) List(ctx context.Context, after string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	if l.feed != nil {
		entries, err := l.feed.List(ctx, after, limit)
		if err == nil {
			return entries, nil
		}
		l.logger.Warn("audit stream unavailable, reading store", zap.Error(err))
	}

	var (
		stored []domain.SanctionEvent
		err    error
	)
	if after == "" {
		stored, err = l.repo.Recent(ctx, limit)
	} else {
		stored, err = l.repo.After(ctx, after, limit)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceUnavailable(err)
	}
	entries := make([]Entry, 0, len(stored))
	for _, ev := range stored {
		entries = append(entries, Entry{Cursor: ev.ID, Event: ev})
	}
	return entries, nil
}
