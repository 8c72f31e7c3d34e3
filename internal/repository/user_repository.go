package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

// UserRepository defines persistence access for chat users and their sanction state.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Update runs fn against the current record and stores the result
	// atomically with respect to other writers of the same key. An error
	// from fn aborts the write.
	Update(ctx context.Context, username string, fn func(*domain.User) error) (*domain.User, error)
	Delete(ctx context.Context, username string) error
	ListUsernames(ctx context.Context) ([]string, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const selectUser = `
        SELECT username, password_hash, coins, strikes, banned, ban_reason,
               timeout_until, timeout_reason, badges, created_at, updated_at
        FROM users`

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user   domain.User
		badges []string
	)
	if err := row.Scan(
		&user.Username,
		&user.PasswordHash,
		&user.Coins,
		&user.Strikes,
		&user.Banned,
		&user.BanReason,
		&user.TimeoutUntil,
		&user.TimeoutReason,
		&badges,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.Badges = domain.NewBadgeSet(badges...)
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (key, username, password_hash, coins, strikes, banned, ban_reason,
                           timeout_until, timeout_reason, badges)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Key(),
		user.Username,
		user.PasswordHash,
		user.Coins,
		user.Strikes,
		user.Banned,
		user.BanReason,
		user.TimeoutUntil,
		user.TimeoutReason,
		user.Badges.Sorted(),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE key=$1`, domain.UserKey(username)))
}

func (r *userRepository) Update(ctx context.Context, username string, fn func(*domain.User) error) (*domain.User, error) {
	const query = `
        UPDATE users SET password_hash=$1, coins=$2, strikes=$3, banned=$4, ban_reason=$5,
                         timeout_until=$6, timeout_reason=$7, badges=$8, updated_at=NOW()
        WHERE key=$9
        RETURNING updated_at`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin user update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	user, err := scanUser(tx.QueryRow(ctx, selectUser+` WHERE key=$1 FOR UPDATE`, domain.UserKey(username)))
	if err != nil {
		return nil, err
	}
	if err := fn(user); err != nil {
		return nil, err
	}

	if err := tx.QueryRow(ctx, query,
		user.PasswordHash,
		user.Coins,
		user.Strikes,
		user.Banned,
		user.BanReason,
		user.TimeoutUntil,
		user.TimeoutReason,
		user.Badges.Sorted(),
		user.Key(),
	).Scan(&user.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit user update: %w", err)
	}
	return user, nil
}

func (r *userRepository) Delete(ctx context.Context, username string) error {
	const query = `DELETE FROM users WHERE key=$1`

	cmd, err := r.pool.Exec(ctx, query, domain.UserKey(username))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) ListUsernames(ctx context.Context) ([]string, error) {
	const query = `SELECT username FROM users ORDER BY key`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type memoryUserRepository struct {
	users *xsync.MapOf[string, *domain.User]
}

// NewMemoryUserRepository returns a process-local implementation used when
// no database is configured and in tests.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: xsync.NewMapOf[string, *domain.User]()}
}

func (r *memoryUserRepository) Create(_ context.Context, user *domain.User) error {
	now := time.Now().UTC()
	stored := user.Clone()
	if stored.Badges == nil {
		stored.Badges = domain.NewBadgeSet()
	}
	stored.CreatedAt, stored.UpdatedAt = now, now
	if _, loaded := r.users.LoadOrStore(user.Key(), stored); loaded {
		return ErrConflict
	}
	user.CreatedAt, user.UpdatedAt = now, now
	return nil
}

func (r *memoryUserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	user, ok := r.users.Load(domain.UserKey(username))
	if !ok {
		return nil, ErrNotFound
	}
	return user.Clone(), nil
}

func (r *memoryUserRepository) Update(_ context.Context, username string, fn func(*domain.User) error) (*domain.User, error) {
	var (
		updated *domain.User
		fnErr   error
	)
	r.users.Compute(domain.UserKey(username), func(old *domain.User, loaded bool) (*domain.User, bool) {
		if !loaded {
			fnErr = ErrNotFound
			return nil, true
		}
		next := old.Clone()
		if err := fn(next); err != nil {
			fnErr = err
			return old, false
		}
		next.UpdatedAt = time.Now().UTC()
		updated = next
		return next, false
	})
	if fnErr != nil {
		return nil, fnErr
	}
	return updated.Clone(), nil
}

func (r *memoryUserRepository) Delete(_ context.Context, username string) error {
	if _, loaded := r.users.LoadAndDelete(domain.UserKey(username)); !loaded {
		return ErrNotFound
	}
	return nil
}

func (r *memoryUserRepository) ListUsernames(_ context.Context) ([]string, error) {
	names := make([]string, 0, r.users.Size())
	r.users.Range(func(_ string, user *domain.User) bool {
		names = append(names, user.Username)
		return true
	})
	sort.Slice(names, func(i, j int) bool {
		return domain.UserKey(names[i]) < domain.UserKey(names[j])
	})
	return names, nil
}
