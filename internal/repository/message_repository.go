package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

// MessageRepository stores accepted chat messages per channel.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// ListByChannel returns up to limit of the newest messages, oldest first.
	ListByChannel(ctx context.Context, channelID string, limit int) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository returns a Postgres-backed implementation.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, channel_id, sender, body, image_url, system, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.ChannelID,
		msg.Sender,
		msg.Text,
		msg.ImageURL,
		msg.System,
		msg.CreatedAt,
	)
	return err
}

func (r *messageRepository) ListByChannel(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	const query = `
        SELECT id, channel_id, sender, body, image_url, system, created_at
        FROM (
            SELECT * FROM messages WHERE channel_id=$1 ORDER BY created_at DESC LIMIT $2
        ) recent
        ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, channelID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Message, error) {
		var msg domain.Message
		err := row.Scan(
			&msg.ID,
			&msg.ChannelID,
			&msg.Sender,
			&msg.Text,
			&msg.ImageURL,
			&msg.System,
			&msg.CreatedAt,
		)
		return msg, err
	})
}

type memoryMessageRepository struct {
	channels *xsync.MapOf[string, []domain.Message]
	capacity int
}

// NewMemoryMessageRepository keeps the newest capacity messages per channel.
func NewMemoryMessageRepository(capacity int) MessageRepository {
	if capacity <= 0 {
		capacity = 500
	}
	return &memoryMessageRepository{
		channels: xsync.NewMapOf[string, []domain.Message](),
		capacity: capacity,
	}
}

func (r *memoryMessageRepository) Create(_ context.Context, msg *domain.Message) error {
	r.channels.Compute(msg.ChannelID, func(old []domain.Message, _ bool) ([]domain.Message, bool) {
		start := 0
		if len(old) >= r.capacity {
			start = len(old) - r.capacity + 1
		}
		next := make([]domain.Message, 0, len(old)-start+1)
		next = append(next, old[start:]...)
		next = append(next, *msg)
		return next, false
	})
	return nil
}

func (r *memoryMessageRepository) ListByChannel(_ context.Context, channelID string, limit int) ([]domain.Message, error) {
	msgs, _ := r.channels.Load(channelID)
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]domain.Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out, nil
}
