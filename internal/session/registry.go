package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"

	"github.com/nexus-chat/moderation-service/internal/domain"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

const sessionExpired = "session expired"

// Registry tracks the single active session of each user.
type Registry interface {
	// Start opens a new session, replacing any previous one.
	Start(ctx context.Context, username string) (string, error)
	// Validate returns an Unauthorized error carrying the termination
	// reason when the session is no longer active.
	Validate(ctx context.Context, username, sessionID string) error
	Terminate(ctx context.Context, username, reason string) error
	IsActive(ctx context.Context, username, sessionID string) (bool, error)
}

type redisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry stores sessions in Redis with the given lifetime.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) Registry {
	return &redisRegistry{client: client, ttl: ttl}
}

func activeKey(username string) string { return "session:" + domain.UserKey(username) }
func endedKey(username string) string  { return "session:ended:" + domain.UserKey(username) }

func (r *redisRegistry) Start(ctx context.Context, username string) (string, error) {
	id := uuid.NewString()
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, endedKey(username))
		p.Set(ctx, activeKey(username), id, r.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

func (r *redisRegistry) Validate(ctx context.Context, username, sessionID string) error {
	current, err := r.client.Get(ctx, activeKey(username)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read session: %w", err)
	}
	if err == nil && current == sessionID {
		return nil
	}

	reason, err := r.client.Get(ctx, endedKey(username)).Result()
	switch {
	case err == nil:
		return apperrors.NewUnauthorized(reason)
	case errors.Is(err, redis.Nil):
		return apperrors.NewUnauthorized(sessionExpired)
	default:
		return fmt.Errorf("read session: %w", err)
	}
}

func (r *redisRegistry) Terminate(ctx context.Context, username, reason string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, activeKey(username))
		p.Set(ctx, endedKey(username), reason, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	return nil
}

func (r *redisRegistry) IsActive(ctx context.Context, username, sessionID string) (bool, error) {
	current, err := r.client.Get(ctx, activeKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read session: %w", err)
	}
	return current == sessionID, nil
}

type memoryEntry struct {
	id      string
	ended   string
	expires time.Time
}

type memoryRegistry struct {
	sessions *xsync.MapOf[string, memoryEntry]
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryRegistry keeps sessions in process memory.
func NewMemoryRegistry(ttl time.Duration) Registry {
	return newMemoryRegistry(ttl, time.Now)
}

func newMemoryRegistry(ttl time.Duration, now func() time.Time) *memoryRegistry {
	return &memoryRegistry{
		sessions: xsync.NewMapOf[string, memoryEntry](),
		ttl:      ttl,
		now:      now,
	}
}

func (m *memoryRegistry) Start(_ context.Context, username string) (string, error) {
	id := uuid.NewString()
	m.sessions.Store(domain.UserKey(username), memoryEntry{id: id, expires: m.now().Add(m.ttl)})
	return id, nil
}

func (m *memoryRegistry) Validate(_ context.Context, username, sessionID string) error {
	entry, ok := m.load(username)
	switch {
	case ok && entry.id != "" && entry.id == sessionID:
		return nil
	case ok && entry.ended != "":
		return apperrors.NewUnauthorized(entry.ended)
	default:
		return apperrors.NewUnauthorized(sessionExpired)
	}
}

func (m *memoryRegistry) Terminate(_ context.Context, username, reason string) error {
	m.sessions.Store(domain.UserKey(username), memoryEntry{ended: reason, expires: m.now().Add(m.ttl)})
	return nil
}

func (m *memoryRegistry) IsActive(_ context.Context, username, sessionID string) (bool, error) {
	entry, ok := m.load(username)
	return ok && entry.id != "" && entry.id == sessionID, nil
}

func (m *memoryRegistry) load(username string) (memoryEntry, bool) {
	key := domain.UserKey(username)
	entry, ok := m.sessions.Load(key)
	if ok && m.now().After(entry.expires) {
		m.sessions.Delete(key)
		return memoryEntry{}, false
	}
	return entry, ok
}
