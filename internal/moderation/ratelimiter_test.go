package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFlagsBurst(t *testing.T) {
	rl, err := NewRateLimiter(3, 5*time.Second, 16)
	require.NoError(t, err)

	assert.True(t, rl.RecordAndCheck("alice", t0))
	assert.True(t, rl.RecordAndCheck("alice", t0.Add(time.Second)))
	assert.False(t, rl.RecordAndCheck("alice", t0.Add(2*time.Second)))

	// the window is cleared after a flag
	assert.True(t, rl.RecordAndCheck("alice", t0.Add(2500*time.Millisecond)))
	assert.True(t, rl.RecordAndCheck("alice", t0.Add(3*time.Second)))
}

func TestRateLimiterBoundary(t *testing.T) {
	rl, err := NewRateLimiter(3, 5*time.Second, 16)
	require.NoError(t, err)

	assert.True(t, rl.RecordAndCheck("a", t0))
	assert.True(t, rl.RecordAndCheck("a", t0.Add(2*time.Second)))
	assert.False(t, rl.RecordAndCheck("a", t0.Add(5000*time.Millisecond)), "exactly 5000ms is a burst")

	assert.True(t, rl.RecordAndCheck("b", t0))
	assert.True(t, rl.RecordAndCheck("b", t0.Add(2*time.Second)))
	assert.True(t, rl.RecordAndCheck("b", t0.Add(5001*time.Millisecond)))
}

func TestRateLimiterSlides(t *testing.T) {
	rl, err := NewRateLimiter(3, 5*time.Second, 16)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.RecordAndCheck("slow", t0.Add(time.Duration(i)*3*time.Second)), "message %d", i)
	}
	// the last two stamps are 24s and 27s; a third at 28s spans 4s
	assert.False(t, rl.RecordAndCheck("slow", t0.Add(28*time.Second)))
}

func TestRateLimiterPerUserAndCaseInsensitive(t *testing.T) {
	rl, err := NewRateLimiter(3, 5*time.Second, 16)
	require.NoError(t, err)

	assert.True(t, rl.RecordAndCheck("Alice", t0))
	assert.True(t, rl.RecordAndCheck("bob", t0))
	assert.True(t, rl.RecordAndCheck("alice", t0.Add(time.Millisecond)))
	assert.True(t, rl.RecordAndCheck("bob", t0.Add(time.Millisecond)))
	assert.False(t, rl.RecordAndCheck("ALICE", t0.Add(2*time.Millisecond)))
}

func TestRateLimiterForgetAndEviction(t *testing.T) {
	rl, err := NewRateLimiter(3, 5*time.Second, 2)
	require.NoError(t, err)

	rl.RecordAndCheck("a", t0)
	rl.RecordAndCheck("a", t0)
	rl.Forget("a")
	assert.True(t, rl.RecordAndCheck("a", t0), "forgotten window starts empty")

	rl.RecordAndCheck("b", t0)
	rl.RecordAndCheck("b", t0)
	rl.RecordAndCheck("c", t0)
	rl.RecordAndCheck("d", t0) // evicts b
	assert.True(t, rl.RecordAndCheck("b", t0))
}

func TestRateLimiterRetract(t *testing.T) {
	rl, err := NewRateLimiter(3, 5*time.Second, 8)
	require.NoError(t, err)

	assert.True(t, rl.RecordAndCheck("a", t0))
	assert.True(t, rl.RecordAndCheck("a", t0.Add(time.Second)))
	rl.Retract("a", t0.Add(time.Second))
	rl.Retract("a", t0.Add(time.Hour)) // not the newest entry, ignored
	assert.True(t, rl.RecordAndCheck("a", t0.Add(2*time.Second)))
	assert.False(t, rl.RecordAndCheck("a", t0.Add(3*time.Second)))

	rl.Retract("unknown", t0)
}

func TestNewRateLimiterValidation(t *testing.T) {
	_, err := NewRateLimiter(1, time.Second, 10)
	assert.Error(t, err)
	_, err = NewRateLimiter(3, 0, 10)
	assert.Error(t, err)
	_, err = NewRateLimiter(3, time.Second, 0)
	assert.Error(t, err)
}
