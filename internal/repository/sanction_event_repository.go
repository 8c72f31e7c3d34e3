package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

// SanctionEventRepository is the append-only store behind the audit log.
type SanctionEventRepository interface {
	Append(ctx context.Context, event *domain.SanctionEvent) error
	// Recent returns up to limit of the newest events, oldest first.
	Recent(ctx context.Context, limit int) ([]domain.SanctionEvent, error)
	// After returns up to limit events appended after the event with ID
	// afterID, oldest first. An unknown afterID yields no events.
	After(ctx context.Context, afterID string, limit int) ([]domain.SanctionEvent, error)
}

type sanctionEventRepository struct {
	pool *pgxpool.Pool
}

// NewSanctionEventRepository returns a Postgres-backed implementation.
func NewSanctionEventRepository(pool *pgxpool.Pool) SanctionEventRepository {
	return &sanctionEventRepository{pool: pool}
}

func (r *sanctionEventRepository) Append(ctx context.Context, event *domain.SanctionEvent) error {
	const query = `
        INSERT INTO sanction_events (id, occurred_at, target, actor, trigger, action,
                                     duration_ms, strikes, reason, summary)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.OccurredAt,
		event.Target,
		event.Actor,
		string(event.Trigger),
		string(event.Action),
		event.Duration.Milliseconds(),
		event.Strikes,
		event.Reason,
		event.Summary,
	)
	return err
}

func (r *sanctionEventRepository) Recent(ctx context.Context, limit int) ([]domain.SanctionEvent, error) {
	const query = `
        SELECT id, occurred_at, target, actor, trigger, action, duration_ms, strikes, reason, summary
        FROM (
            SELECT * FROM sanction_events ORDER BY seq DESC LIMIT $1
        ) recent
        ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSanctionEvent)
}

func (r *sanctionEventRepository) After(ctx context.Context, afterID string, limit int) ([]domain.SanctionEvent, error) {
	const query = `
        SELECT id, occurred_at, target, actor, trigger, action, duration_ms, strikes, reason, summary
        FROM sanction_events
        WHERE seq > (SELECT seq FROM sanction_events WHERE id::text = $1)
        ORDER BY seq ASC
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSanctionEvent)
}

func scanSanctionEvent(row pgx.CollectableRow) (domain.SanctionEvent, error) {
	var (
		event      domain.SanctionEvent
		trigger    string
		action     string
		durationMS int64
	)
	err := row.Scan(
		&event.ID,
		&event.OccurredAt,
		&event.Target,
		&event.Actor,
		&trigger,
		&action,
		&durationMS,
		&event.Strikes,
		&event.Reason,
		&event.Summary,
	)
	event.Trigger = domain.Trigger(trigger)
	event.Action = domain.SanctionAction(action)
	event.Duration = time.Duration(durationMS) * time.Millisecond
	return event, err
}

type memorySanctionEventRepository struct {
	mu     sync.RWMutex
	events []domain.SanctionEvent
}

// NewMemorySanctionEventRepository keeps the log in process memory.
func NewMemorySanctionEventRepository() SanctionEventRepository {
	return &memorySanctionEventRepository{}
}

func (r *memorySanctionEventRepository) Append(_ context.Context, event *domain.SanctionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *memorySanctionEventRepository) Recent(_ context.Context, limit int) ([]domain.SanctionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := 0
	if limit > 0 && len(r.events) > limit {
		start = len(r.events) - limit
	}
	out := make([]domain.SanctionEvent, len(r.events)-start)
	copy(out, r.events[start:])
	return out, nil
}

func (r *memorySanctionEventRepository) After(_ context.Context, afterID string, limit int) ([]domain.SanctionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.events {
		if r.events[i].ID != afterID {
			continue
		}
		rest := r.events[i+1:]
		if limit > 0 && len(rest) > limit {
			rest = rest[:limit]
		}
		out := make([]domain.SanctionEvent, len(rest))
		copy(out, rest)
		return out, nil
	}
	return []domain.SanctionEvent{}, nil
}
