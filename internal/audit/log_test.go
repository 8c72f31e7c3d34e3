package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/events"
	"github.com/nexus-chat/moderation-service/internal/repository"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newFeed(t *testing.T) (*StreamFeed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStreamFeed(client, "audit:mod-actions", 1000), mr
}

func spamEvent(i int) domain.SanctionEvent {
	return domain.SanctionEvent{
		ID:         fmt.Sprintf("ev-%d", i),
		OccurredAt: t0.Add(time.Duration(i) * time.Second),
		Target:     "userA",
		Actor:      domain.AutomatedActor,
		Trigger:    domain.TriggerSpam,
		Action:     domain.SanctionTimeout,
		Duration:   time.Minute,
		Reason:     "Spamming",
		Summary:    "AUTO-TIMEOUT: User userA timed out for 1 minute (Spamming).",
	}
}

func TestRecordStoresPublishesAndStreams(t *testing.T) {
	ctx := context.Background()
	feed, _ := newFeed(t)
	repo := repository.NewMemorySanctionEventRepository()
	dispatcher := events.NewInMemoryDispatcher(nil)

	var published []events.Event
	dispatcher.Subscribe(events.EventSanctionRecorded, func(_ context.Context, e events.Event) error {
		published = append(published, e)
		return nil
	})

	log := NewLog(repo, dispatcher, feed, nil, nil)
	require.NoError(t, log.Record(ctx, spamEvent(1)))

	stored, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.Len(t, published, 1)
	assert.Equal(t, "usera", published[0].Subject)

	entries, err := log.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, spamEvent(1), entries[0].Event)
	assert.NotEmpty(t, entries[0].Cursor)
}

func TestRecordFillsIDAndTime(t *testing.T) {
	repo := repository.NewMemorySanctionEventRepository()
	log := NewLog(repo, nil, nil, nil, nil)

	require.NoError(t, log.Record(context.Background(), domain.SanctionEvent{Target: "bob", Action: domain.SanctionReset}))
	stored, _ := repo.Recent(context.Background(), 1)
	require.Len(t, stored, 1)
	assert.NotEmpty(t, stored[0].ID)
	assert.False(t, stored[0].OccurredAt.IsZero())
}

type failingRepo struct{}

func (failingRepo) Append(context.Context, *domain.SanctionEvent) error {
	return errors.New("db down")
}

func (failingRepo) Recent(context.Context, int) ([]domain.SanctionEvent, error) {
	return nil, errors.New("db down")
}

func (failingRepo) After(context.Context, string, int) ([]domain.SanctionEvent, error) {
	return nil, errors.New("db down")
}

func TestRecordStoreFailureSkipsPublish(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	dispatcher.Subscribe(events.EventSanctionRecorded, func(context.Context, events.Event) error {
		t.Fatal("published an unstored event")
		return nil
	})
	log := NewLog(failingRepo{}, dispatcher, nil, nil, nil)

	err := log.Record(context.Background(), spamEvent(1))
	assert.ErrorIs(t, err, apperrors.ErrPersistenceUnavailable)
}

func TestStreamFeedPaging(t *testing.T) {
	ctx := context.Background()
	feed, _ := newFeed(t)

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := feed.Append(ctx, spamEvent(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	newest, err := feed.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "ev-3", newest[0].Event.ID)
	assert.Equal(t, "ev-4", newest[1].Event.ID)

	page, err := feed.List(ctx, ids[1], 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].Cursor)
	assert.Equal(t, "ev-3", page[1].Event.ID)

	tail, err := feed.List(ctx, ids[4], 10)
	require.NoError(t, err)
	assert.Empty(t, tail)
}

func TestListFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	feed, mr := newFeed(t)
	repo := repository.NewMemorySanctionEventRepository()
	log := NewLog(repo, events.NewInMemoryDispatcher(nil), feed, nil, nil)

	require.NoError(t, log.Record(ctx, spamEvent(1)))
	require.NoError(t, log.Record(ctx, spamEvent(2)))
	mr.Close()

	entries, err := log.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ev-1", entries[0].Cursor)
	assert.Equal(t, "ev-2", entries[1].Event.ID)
}

func TestListPagesStoreWithoutStream(t *testing.T) {
	ctx := context.Background()
	log := NewLog(repository.NewMemorySanctionEventRepository(), nil, nil, nil, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Record(ctx, spamEvent(i)))
	}

	newest, err := log.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "ev-3", newest[0].Cursor)
	assert.Equal(t, "ev-4", newest[1].Cursor)

	page, err := log.List(ctx, "ev-1", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "ev-2", page[0].Cursor)
	assert.Equal(t, "ev-3", page[1].Event.ID)

	tail, err := log.List(ctx, "ev-4", 10)
	require.NoError(t, err)
	assert.Empty(t, tail)

	require.NoError(t, log.Record(ctx, spamEvent(5)))
	next, err := log.List(ctx, "ev-4", 10)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "ev-5", next[0].Cursor)

	unknown, err := log.List(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestListStoreFailure(t *testing.T) {
	log := NewLog(failingRepo{}, nil, nil, nil, nil)
	_, err := log.List(context.Background(), "ev-1", 10)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceUnavailable)
}
