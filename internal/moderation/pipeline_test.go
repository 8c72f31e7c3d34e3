package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-chat/moderation-service/internal/config"
	"github.com/nexus-chat/moderation-service/internal/domain"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

func TestSubmitAcceptsAndRewards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")

	out, err := h.pipeline.Submit(ctx, userSession("alice"), textAction("hello"), t0)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, out.Kind)
	assert.Equal(t, "hello", out.Message.Text)
	assert.Equal(t, "alice", out.Message.Sender)
	assert.Equal(t, "general", out.Message.ChannelID)

	alice, _ := h.ledger.Get(ctx, "alice")
	assert.EqualValues(t, 5, alice.Coins)

	h.pipeline.Multiplier().Store(1.5)
	_, err = h.pipeline.Submit(ctx, userSession("alice"), textAction("again"), t0.Add(10*time.Second))
	require.NoError(t, err)
	alice, _ = h.ledger.Get(ctx, "alice")
	assert.EqualValues(t, 12, alice.Coins)
}

func TestSubmitMasksProfanity(t *testing.T) {
	h := newHarness(t, "", "alice")
	out, err := h.pipeline.Submit(context.Background(), userSession("alice"), textAction("damn"), t0)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, out.Kind)
	assert.Equal(t, "d**n", out.Message.Text)
}

func TestSubmitRejectsUnsafeTextWithoutStrike(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")

	out, err := h.pipeline.Submit(ctx, userSession("alice"), textAction("politics"), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, apperrors.CodePolicyViolation, out.Code)
	assert.Equal(t, domain.CategoryPolitics, out.Category)
	assert.Equal(t, "Nexus Policy (Political Discussion Prohibited): Your message contained prohibited content.", out.Reason)

	alice, _ := h.ledger.Get(ctx, "alice")
	assert.Zero(t, alice.Strikes)
	assert.Zero(t, alice.Coins)
	assert.Empty(t, h.audit.Events())
}

func TestSubmitSpamBurst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "userA")
	s := userSession("userA")

	for i, at := range []time.Duration{0, time.Second} {
		out, err := h.pipeline.Submit(ctx, s, textAction("hello"), t0.Add(at))
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeAccepted, out.Kind, "message %d", i)
	}

	third := t0.Add(2 * time.Second)
	out, err := h.pipeline.Submit(ctx, s, textAction("hello"), third)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSanctioned, out.Kind)
	assert.Equal(t, apperrors.CodeRateExceeded, out.Code)
	assert.Equal(t, time.Minute, out.Remaining(third))
	assert.Equal(t, "Slow down! You've been timed out for 1 minute due to spamming.", out.Reason)

	events := h.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.TriggerSpam, events[0].Trigger)
	assert.Equal(t, "AUTO-TIMEOUT: User userA timed out for 1 minute (Spamming).", events[0].Summary)

	user, _ := h.ledger.Get(ctx, "userA")
	assert.Zero(t, user.Strikes)
	assert.EqualValues(t, 10, user.Coins, "the flagged message earns nothing")
}

func TestSubmitTimeoutExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")
	until := t0.Add(time.Minute)
	_, err := h.ledger.ApplyTimeout(ctx, "alice", until, "Spamming")
	require.NoError(t, err)

	for _, at := range []time.Time{t0, until.Add(-time.Millisecond), until} {
		out, err := h.pipeline.Submit(ctx, userSession("alice"), textAction("hi"), at)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSanctioned, out.Kind)
		assert.Equal(t, apperrors.CodeSanctionActive, out.Code)
		assert.Equal(t, "Spamming", out.Reason)
	}

	out, err := h.pipeline.Submit(ctx, userSession("alice"), textAction("hi"), until.Add(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAccepted, out.Kind)
}

func TestSubmitThreeImageStrikesBan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "userB")
	h.classifier.image = domain.UnsafeVerdict(domain.CategoryAdult)
	s := userSession("userB")

	now := t0
	for strike := 1; strike <= 2; strike++ {
		out, err := h.pipeline.Submit(ctx, s, imageAction(), now)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeSanctioned, out.Kind)
		assert.False(t, out.Permanent)
		assert.Equal(t, 5*time.Minute, out.Remaining(now))
		assert.Equal(t, domain.CategoryAdult, out.Category)
		now = now.Add(6 * time.Minute)
	}

	out, err := h.pipeline.Submit(ctx, s, imageAction(), now)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeSanctioned, out.Kind)
	assert.True(t, out.Permanent)
	assert.Equal(t, StrikeBanReason, out.Reason)

	user, _ := h.ledger.Get(ctx, "userB")
	assert.True(t, user.Banned)
	assert.Equal(t, 3, user.Strikes)

	// sticky regardless of content until reset
	h.classifier.image = domain.SafeVerdict()
	for _, action := range []domain.Action{textAction("hello"), imageAction()} {
		out, err = h.pipeline.Submit(ctx, s, action, now.Add(365*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSanctioned, out.Kind)
		assert.True(t, out.Permanent)
	}

	_, err = h.ledger.Reset(ctx, "userB")
	require.NoError(t, err)
	out, err = h.pipeline.Submit(ctx, s, textAction("hello"), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAccepted, out.Kind)
}

func TestSubmitClassifierFailurePolicy(t *testing.T) {
	ctx := context.Background()

	open := newHarness(t, config.FailOpen, "alice")
	open.classifier.imageErr = errors.New("upstream down")
	out, err := open.pipeline.Submit(ctx, userSession("alice"), imageAction(), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAccepted, out.Kind)
	assert.Equal(t, "data:image/png;base64,aW1n", out.Message.ImageURL)

	closed := newHarness(t, config.FailClosed, "alice")
	closed.classifier.imageErr = errors.New("upstream down")
	out, err = closed.pipeline.Submit(ctx, userSession("alice"), imageAction(), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, apperrors.CodeClassifierUnavailable, out.Code)

	alice, _ := closed.ledger.Get(ctx, "alice")
	assert.Zero(t, alice.Strikes)
}

func TestSubmitClassifierTimeoutFollowsPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy config.FailurePolicy
		want   domain.OutcomeKind
	}{
		{name: "closed rejects", policy: config.FailClosed, want: domain.OutcomeRejected},
		{name: "open accepts", policy: config.FailOpen, want: domain.OutcomeAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.policy, "alice")
			// The classifier neither honours its context nor returns in time.
			h.classifier.delay = 3 * time.Second
			h.classifier.ignoreCtx = true

			start := time.Now()
			out, err := h.pipeline.Submit(context.Background(), userSession("alice"), imageAction(), t0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Kind)
			assert.Less(t, time.Since(start), 2*time.Second)

			alice, err := h.ledger.Get(context.Background(), "alice")
			require.NoError(t, err)
			assert.Zero(t, alice.Strikes)
		})
	}
}

func TestSubmitSanctionSurvivesDisconnect(t *testing.T) {
	h := newHarness(t, "", "alice")
	h.classifier.image = domain.UnsafeVerdict(domain.CategoryAdult)
	h.classifier.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	out, err := h.pipeline.Submit(ctx, userSession("alice"), imageAction(), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSanctioned, out.Kind)

	alice, err := h.ledger.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.Strikes)
	assert.Len(t, h.audit.Events(), 1)
}

func TestSubmitSafeImageDiscardedAfterDisconnect(t *testing.T) {
	h := newHarness(t, "", "alice")
	h.classifier.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := h.pipeline.Submit(ctx, userSession("alice"), imageAction(), t0)
	assert.ErrorIs(t, err, context.Canceled)

	alice, _ := h.ledger.Get(context.Background(), "alice")
	assert.Zero(t, alice.Coins)
}

func TestSubmitPrivilegedCommands(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "Brick", "alice")

	out, err := h.pipeline.Submit(ctx, ownerSession(), textAction("/givebadge alice VIP"), t0)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExecuted, out.Kind)
	assert.Nil(t, out.Message, "commands post nothing")
	require.NotNil(t, out.Command)
	assert.Equal(t, domain.CommandGiveBadge, out.Command.Kind)

	alice, _ := h.ledger.Get(ctx, "alice")
	assert.True(t, alice.Badges.Has("VIP"))
	events := h.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.SanctionGiveBadge, events[0].Action)

	out, err = h.pipeline.Submit(ctx, ownerSession(), textAction("/ban ghost"), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, apperrors.CodeAdminTargetNotFound, out.Code)

	out, err = h.pipeline.Submit(ctx, ownerSession(), textAction("/dance"), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, apperrors.CodeValidation, out.Code)

	out, err = h.pipeline.Submit(ctx, userSession("alice"), textAction("/givecoins alice 1000"), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, out.Kind)
	assert.Equal(t, apperrors.CodeForbidden, out.Code)
	alice, _ = h.ledger.Get(ctx, "alice")
	assert.Zero(t, alice.Coins)
}

func TestSubmitPrivilegedSkipsScreening(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "Brick")
	h.classifier.image = domain.UnsafeVerdict(domain.CategoryAdult)

	for i := 0; i < 5; i++ {
		out, err := h.pipeline.Submit(ctx, ownerSession(), textAction("politics"), t0.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeAccepted, out.Kind)
	}
	out, err := h.pipeline.Submit(ctx, ownerSession(), imageAction(), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAccepted, out.Kind)

	owner, _ := h.ledger.Get(ctx, "brick")
	assert.Zero(t, owner.Strikes)
	assert.EqualValues(t, 30, owner.Coins)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")

	_, err := h.pipeline.Submit(ctx, userSession("alice"), domain.Action{Kind: domain.ActionText, Text: "hi", ChannelID: domain.AuditChannelID}, t0)
	assert.Equal(t, apperrors.CodeValidation, apperrors.ToDomainError(err).Code)

	_, err = h.pipeline.Submit(ctx, userSession("alice"), textAction("   "), t0)
	assert.Equal(t, apperrors.CodeValidation, apperrors.ToDomainError(err).Code)

	_, err = h.pipeline.Submit(ctx, userSession("ghost"), textAction("hi"), t0)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.ToDomainError(err).Code)
}

func TestSubmitConcurrentBurstFlagsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[domain.OutcomeKind]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.pipeline.Submit(ctx, userSession("alice"), textAction("hello"), t0)
			assert.NoError(t, err)
			mu.Lock()
			outcomes[out.Kind]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, outcomes[domain.OutcomeAccepted])
	assert.Equal(t, 8, outcomes[domain.OutcomeSanctioned])
	assert.Len(t, h.audit.Events(), 1, "one burst, one timeout")

	alice, _ := h.ledger.Get(ctx, "alice")
	assert.EqualValues(t, 10, alice.Coins)
}
