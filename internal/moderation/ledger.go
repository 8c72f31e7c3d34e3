package moderation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/repository"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

// errNoChange lets a Mutate callback abort the write without failing. The
// callback must not have modified the record when returning it.
var errNoChange = errors.New("no change")

// Ledger is the authoritative per-user sanction state. Writes are serialized
// per user key; reads come from a snapshot cache and never wait on writers.
type Ledger struct {
	users    repository.UserRepository
	locks    *xsync.MapOf[string, *sync.Mutex]
	snapshot *xsync.MapOf[string, *domain.User]
	logger   *zap.Logger
}

// NewLedger wraps the durable user store.
func NewLedger(users repository.UserRepository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		users:    users,
		locks:    xsync.NewMapOf[string, *sync.Mutex](),
		snapshot: xsync.NewMapOf[string, *domain.User](),
		logger:   logger.Named("ledger"),
	}
}

func (l *Ledger) lock(key string) func() {
	mu, _ := l.locks.LoadOrCompute(key, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

// Create stores a new user record.
func (l *Ledger) Create(ctx context.Context, user *domain.User) error {
	if user.Badges == nil {
		user.Badges = domain.NewBadgeSet()
	}
	unlock := l.lock(user.Key())
	defer unlock()

	if err := l.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperrors.NewConflict("username already taken", map[string]any{"username": user.Username})
		}
		return apperrors.NewPersistenceUnavailable(err)
	}
	l.snapshot.Store(user.Key(), user.Clone())
	return nil
}

// Get returns a copy of the user's current record.
func (l *Ledger) Get(ctx context.Context, username string) (*domain.User, error) {
	key := domain.UserKey(username)
	if user, ok := l.snapshot.Load(key); ok {
		return user.Clone(), nil
	}

	user, err := l.users.GetByUsername(ctx, key)
	if err != nil {
		return nil, l.storeError(username, err)
	}
	// A write that finished after the read above already cached a newer record.
	cached, _ := l.snapshot.LoadOrStore(key, user.Clone())
	return cached.Clone(), nil
}

// Mutate applies fn to the user's record as one atomic write. Writers of
// the same user are serialized; other users proceed in parallel.
func (l *Ledger) Mutate(ctx context.Context, username string, fn func(*domain.User) error) (*domain.User, error) {
	key := domain.UserKey(username)
	unlock := l.lock(key)
	defer unlock()

	var (
		fnErr error
		seen  *domain.User
	)
	updated, err := l.users.Update(ctx, key, func(u *domain.User) error {
		if e := fn(u); e != nil {
			fnErr = e
			seen = u.Clone()
			return e
		}
		return nil
	})
	switch {
	case errors.Is(fnErr, errNoChange):
		l.snapshot.Store(key, seen.Clone())
		return seen, nil
	case fnErr != nil:
		return nil, fnErr
	case err != nil:
		return nil, l.storeError(username, err)
	}

	l.snapshot.Store(key, updated.Clone())
	return updated, nil
}

// ApplyTimeout sets or replaces the user's timeout.
func (l *Ledger) ApplyTimeout(ctx context.Context, username string, until time.Time, reason string) (*domain.User, error) {
	return l.Mutate(ctx, username, func(u *domain.User) error {
		u.ApplyTimeout(until, reason)
		return nil
	})
}

// ApplyBan bans the user permanently.
func (l *Ledger) ApplyBan(ctx context.Context, username, reason string) (*domain.User, error) {
	return l.Mutate(ctx, username, func(u *domain.User) error {
		u.ApplyBan(reason)
		return nil
	})
}

// IncrementStrike adds a strike and returns the new count.
func (l *Ledger) IncrementStrike(ctx context.Context, username string) (int, error) {
	user, err := l.Mutate(ctx, username, func(u *domain.User) error {
		u.IncrementStrike()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return user.Strikes, nil
}

// ClearTimeout lifts a timeout. It never lifts a ban.
func (l *Ledger) ClearTimeout(ctx context.Context, username string) (*domain.User, error) {
	return l.Mutate(ctx, username, func(u *domain.User) error {
		if u.Banned || u.TimeoutUntil == nil {
			return errNoChange
		}
		u.ClearTimeout()
		return nil
	})
}

// Reset returns the user to zero strikes with no ban or timeout.
func (l *Ledger) Reset(ctx context.Context, username string) (*domain.User, error) {
	return l.Mutate(ctx, username, func(u *domain.User) error {
		u.Reset()
		return nil
	})
}

// IsCurrentlySanctioned evaluates the sanction state at now.
func (l *Ledger) IsCurrentlySanctioned(ctx context.Context, username string, now time.Time) (domain.SanctionStatus, error) {
	user, err := l.Get(ctx, username)
	if err != nil {
		return domain.SanctionStatus{}, err
	}
	return user.Status(now), nil
}

// AwardCoins credits a message reward. Zero rewards are not written.
func (l *Ledger) AwardCoins(ctx context.Context, username string, amount int64) (*domain.User, error) {
	return l.Mutate(ctx, username, func(u *domain.User) error {
		if !u.AddCoins(amount) {
			return errNoChange
		}
		return nil
	})
}

// GrantCoins is the administrative credit; amount must be positive.
func (l *Ledger) GrantCoins(ctx context.Context, username string, amount int64) (*domain.User, error) {
	if amount <= 0 {
		return nil, apperrors.NewValidationError("coin amount must be positive", map[string]any{"amount": amount})
	}
	return l.AwardCoins(ctx, username, amount)
}

// GrantBadge adds a badge and reports whether the set changed.
func (l *Ledger) GrantBadge(ctx context.Context, username, badge string) (bool, error) {
	added := false
	_, err := l.Mutate(ctx, username, func(u *domain.User) error {
		if u.Badges == nil {
			u.Badges = domain.NewBadgeSet()
		}
		if u.Badges.Has(badge) {
			return errNoChange
		}
		added = u.Badges.Add(badge)
		return nil
	})
	return added, err
}

// Delete removes the user record.
func (l *Ledger) Delete(ctx context.Context, username string) error {
	key := domain.UserKey(username)
	unlock := l.lock(key)
	defer unlock()

	if err := l.users.Delete(ctx, key); err != nil {
		return l.storeError(username, err)
	}
	l.snapshot.Delete(key)
	l.locks.Delete(key)
	return nil
}

// ListUsernames returns every known display name.
func (l *Ledger) ListUsernames(ctx context.Context) ([]string, error) {
	names, err := l.users.ListUsernames(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceUnavailable(err)
	}
	return names, nil
}

func (l *Ledger) storeError(username string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		l.snapshot.Delete(domain.UserKey(username))
		return apperrors.NewNotFound("user", map[string]any{"username": username})
	}
	l.logger.Error("user store failure", zap.String("user", domain.UserKey(username)), zap.Error(err))
	return apperrors.NewPersistenceUnavailable(err)
}
