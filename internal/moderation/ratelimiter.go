package moderation

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

// rateWindow holds the newest submission timestamps of one user.
type rateWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

// RateLimiter detects bursts: size messages whose first and last timestamps
// are at most span apart. Windows live in an LRU so idle users are evicted;
// an evicted window simply starts empty again.
type RateLimiter struct {
	windows *lru.Cache[string, *rateWindow]
	size    int
	span    time.Duration
}

// NewRateLimiter builds a limiter holding up to capacity user windows.
func NewRateLimiter(size int, span time.Duration, capacity int) (*RateLimiter, error) {
	if size < 2 {
		return nil, fmt.Errorf("rate window size must be at least 2, got %d", size)
	}
	if span <= 0 {
		return nil, fmt.Errorf("rate window span must be positive, got %s", span)
	}
	cache, err := lru.New[string, *rateWindow](capacity)
	if err != nil {
		return nil, fmt.Errorf("create rate window cache: %w", err)
	}
	return &RateLimiter{windows: cache, size: size, span: span}, nil
}

// RecordAndCheck appends now to the user's window and reports whether the
// user is still within limits. On a burst the window is cleared.
func (r *RateLimiter) RecordAndCheck(username string, now time.Time) bool {
	w := r.window(domain.UserKey(username))
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.stamps) == r.size {
		copy(w.stamps, w.stamps[1:])
		w.stamps = w.stamps[:r.size-1]
	}
	w.stamps = append(w.stamps, now)

	if len(w.stamps) == r.size && w.stamps[r.size-1].Sub(w.stamps[0]) <= r.span {
		w.stamps = w.stamps[:0]
		return false
	}
	return true
}

// Retract removes the newest timestamp of the user's window when it equals
// at. It undoes a RecordAndCheck whose submission was not accepted.
func (r *RateLimiter) Retract(username string, at time.Time) {
	w, ok := r.windows.Peek(domain.UserKey(username))
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := len(w.stamps); n > 0 && w.stamps[n-1].Equal(at) {
		w.stamps = w.stamps[:n-1]
	}
}

// Forget drops the user's window, used after administrative reset or deletion.
func (r *RateLimiter) Forget(username string) {
	r.windows.Remove(domain.UserKey(username))
}

func (r *RateLimiter) window(key string) *rateWindow {
	if w, ok := r.windows.Get(key); ok {
		return w
	}
	fresh := &rateWindow{stamps: make([]time.Time, 0, r.size)}
	if prev, ok, _ := r.windows.PeekOrAdd(key, fresh); ok {
		return prev
	}
	return fresh
}
