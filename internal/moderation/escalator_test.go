package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

func TestEscalatorApplyStateMachine(t *testing.T) {
	e := NewEscalator(nil, nil, nil, Policy{StrikeThreshold: 3, ImageTimeout: 5 * time.Minute, SpamTimeout: time.Minute}, nil)

	tests := []struct {
		name          string
		strikesBefore int
		trigger       domain.Trigger
		action        domain.SanctionAction
		strikesAfter  int
		banned        bool
		summary       string
	}{
		{
			name: "first image strike", strikesBefore: 0, trigger: domain.TriggerUnsafeImage,
			action: domain.SanctionTimeout, strikesAfter: 1,
			summary: "AUTO-TIMEOUT: User Bea timed out for 5 minutes. Violation: adult content (Strike 1/3).",
		},
		{
			name: "second image strike", strikesBefore: 1, trigger: domain.TriggerUnsafeImage,
			action: domain.SanctionTimeout, strikesAfter: 2,
			summary: "AUTO-TIMEOUT: User Bea timed out for 5 minutes. Violation: adult content (Strike 2/3).",
		},
		{
			name: "third image strike bans", strikesBefore: 2, trigger: domain.TriggerUnsafeImage,
			action: domain.SanctionBan, strikesAfter: 3, banned: true,
			summary: "AUTO-BAN: User Bea permanently banned for reaching 3 strikes.",
		},
		{
			name: "spam leaves strikes alone", strikesBefore: 2, trigger: domain.TriggerSpam,
			action: domain.SanctionTimeout, strikesAfter: 2,
			summary: "AUTO-TIMEOUT: User Bea timed out for 1 minute (Spamming).",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := &domain.User{Username: "Bea", Strikes: tc.strikesBefore}
			ev := e.Apply(u, tc.trigger, domain.CategoryAdult, t0)

			assert.Equal(t, tc.action, ev.Action)
			assert.Equal(t, tc.trigger, ev.Trigger)
			assert.Equal(t, tc.strikesAfter, u.Strikes)
			assert.Equal(t, tc.strikesAfter, ev.Strikes)
			assert.Equal(t, tc.banned, u.Banned)
			assert.Equal(t, tc.summary, ev.Summary)
			assert.Equal(t, domain.AutomatedActor, ev.Actor)
			assert.NotEmpty(t, ev.ID)
			if !tc.banned {
				require.NotNil(t, u.TimeoutUntil)
				assert.Equal(t, t0.Add(ev.Duration), *u.TimeoutUntil)
			} else {
				assert.Equal(t, StrikeBanReason, u.BanReason)
			}
		})
	}
}

func TestEscalateRecordsAndTerminatesOnBan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "bea")

	for i := 0; i < 3; i++ {
		_, ev, err := h.escalator.Escalate(ctx, "bea", domain.TriggerUnsafeImage, domain.CategoryAdult, t0)
		require.NoError(t, err)
		require.NotNil(t, ev)
	}
	events := h.audit.Events()
	require.Len(t, events, 3)
	assert.Equal(t, domain.SanctionBan, events[2].Action)

	reason, ok := h.sessions.reason("bea")
	assert.True(t, ok)
	assert.Equal(t, StrikeBanLogout, reason)

	// a banned user accrues nothing further
	user, ev, err := h.escalator.Escalate(ctx, "bea", domain.TriggerUnsafeImage, domain.CategoryAdult, t0)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 3, user.Strikes)
	assert.Len(t, h.audit.Events(), 3)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "5 minutes", humanDuration(5*time.Minute))
	assert.Equal(t, "1m30s", humanDuration(90*time.Second))
}
