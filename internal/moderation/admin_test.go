package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/repository"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

func TestAdminGiveBadge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice", "bob")

	cmd := domain.GiveBadgeCommand{Target: domain.Target{Username: "Alice"}, Badge: "VIP"}
	res, err := h.admin.Execute(ctx, "Brick", cmd, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)
	assert.Equal(t, "Admin Brick granted badge [VIP] to alice.", res.Summary)

	res, err = h.admin.Execute(ctx, "Brick", cmd, t0)
	require.NoError(t, err)
	assert.Zero(t, res.Affected)

	alice, err := h.ledger.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"VIP"}, alice.Badges.Sorted())

	events := h.audit.Events()
	require.Len(t, events, 2, "repeated grants are still audited")
	assert.Equal(t, domain.SanctionGiveBadge, events[0].Action)
	assert.Equal(t, domain.TriggerManual, events[0].Trigger)
	assert.Equal(t, "Brick", events[0].Actor)

	res, err = h.admin.Execute(ctx, "Brick", domain.GiveBadgeCommand{Target: domain.Target{All: true}, Badge: "VIP"}, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected, "only bob changes")
	assert.Equal(t, "Admin Brick granted badge [VIP] to EVERYONE.", res.Summary)
}

func TestAdminGiveCoins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice", "bob")

	res, err := h.admin.Execute(ctx, "Brick", domain.GiveCoinsCommand{Target: domain.Target{All: true}, Amount: 50}, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Affected)
	assert.Equal(t, "Admin Brick granted 50 coins to EVERYONE.", res.Summary)

	_, err = h.admin.Execute(ctx, "Brick", domain.GiveCoinsCommand{Target: domain.Target{Username: "bob"}, Amount: 10}, t0)
	require.NoError(t, err)

	bob, _ := h.ledger.Get(ctx, "bob")
	assert.EqualValues(t, 60, bob.Coins)
	alice, _ := h.ledger.Get(ctx, "alice")
	assert.EqualValues(t, 50, alice.Coins)
}

func TestAdminUnknownTarget(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")

	commands := []domain.Command{
		domain.GiveCoinsCommand{Target: domain.Target{Username: "ghost"}, Amount: 5},
		domain.GiveBadgeCommand{Target: domain.Target{Username: "ghost"}, Badge: "VIP"},
		domain.BanCommand{Username: "ghost", Reason: "x"},
		domain.DeleteAccountCommand{Username: "ghost", Reason: "x"},
		domain.ResetCommand{Username: "ghost"},
	}
	for _, cmd := range commands {
		_, err := h.admin.Execute(ctx, "Brick", cmd, t0)
		assert.ErrorIs(t, err, apperrors.ErrAdminTargetNotFound, string(cmd.Kind()))
	}
	assert.Empty(t, h.audit.Events())
}

func TestAdminBanAndReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")

	_, err := h.ledger.IncrementStrike(ctx, "alice")
	require.NoError(t, err)

	res, err := h.admin.Execute(ctx, "Brick", domain.BanCommand{Username: "alice", Reason: "harassment"}, t0)
	require.NoError(t, err)
	assert.Equal(t, "Admin Brick BANNED user: alice. Reason: harassment", res.Summary)

	reason, ok := h.sessions.reason("alice")
	require.True(t, ok)
	assert.Equal(t, "Banned: harassment", reason)

	status, err := h.ledger.IsCurrentlySanctioned(ctx, "alice", t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, status.Permanent)

	_, err = h.admin.Execute(ctx, "Brick", domain.ResetCommand{Username: "alice"}, t0)
	require.NoError(t, err)

	status, err = h.ledger.IsCurrentlySanctioned(ctx, "alice", t0)
	require.NoError(t, err)
	assert.False(t, status.Active)
	alice, _ := h.ledger.Get(ctx, "alice")
	assert.Zero(t, alice.Strikes)
}

func TestAdminDeleteAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")

	res, err := h.admin.Execute(ctx, "Brick", domain.DeleteAccountCommand{Username: "Alice", Reason: "Admin policy"}, t0)
	require.NoError(t, err)
	assert.Equal(t, "Admin Brick DELETED account: alice. Reason: Admin policy", res.Summary)

	_, err = h.ledger.Get(ctx, "alice")
	assert.Error(t, err)
	reason, ok := h.sessions.reason("alice")
	require.True(t, ok)
	assert.Equal(t, "Your account was deleted! Reason: Admin policy", reason)
}

func TestAdminBroadcastAndMultiplier(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", "alice")

	res, err := h.admin.Execute(ctx, "Brick", domain.BroadcastCommand{Text: "maintenance at noon"}, t0)
	require.NoError(t, err)
	require.Len(t, res.Messages, len(domain.DefaultChannels))
	for i, msg := range res.Messages {
		assert.Equal(t, domain.DefaultChannels[i], msg.ChannelID)
		assert.Equal(t, domain.SystemSender, msg.Sender)
		assert.True(t, msg.System)
		assert.Equal(t, "maintenance at noon", msg.Text)
	}
	assert.Equal(t, `GLOBAL BROADCAST by Admin Brick: "maintenance at noon"`, res.Summary)

	_, err = h.admin.Execute(ctx, "Brick", domain.SetMultiplierCommand{Factor: 2.5}, t0)
	require.NoError(t, err)
	assert.Equal(t, 2.5, h.pipeline.Multiplier().Load())
	assert.EqualValues(t, 12, h.pipeline.Multiplier().Reward(5))

	events := h.audit.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.SanctionBroadcast, events[0].Action)
	assert.Equal(t, domain.SanctionMultiplier, events[1].Action)
}

// stuckUserRepo fails every write to one user.
type stuckUserRepo struct {
	repository.UserRepository
	stuck string
}

func (s stuckUserRepo) Update(ctx context.Context, username string, fn func(*domain.User) error) (*domain.User, error) {
	if domain.UserKey(username) == s.stuck {
		return nil, errors.New("row locked")
	}
	return s.UserRepository.Update(ctx, username, fn)
}

func TestAdminBulkGrantFailurePartwayIsAudited(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryUserRepository()
	ledger := NewLedger(stuckUserRepo{UserRepository: store, stuck: "bob"}, nil)
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, ledger.Create(ctx, &domain.User{Username: name}))
	}
	audit := &recordingAudit{}
	admin := NewAdministrator(ledger, audit, nil, nil, nil, nil)

	_, err := admin.Execute(ctx, "Brick", domain.GiveCoinsCommand{Target: domain.Target{All: true}, Amount: 50}, t0)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceUnavailable)

	alice, err := ledger.Get(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 50, alice.Coins)
	carol, err := ledger.Get(ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, carol.Coins)

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.SanctionGiveCoins, events[0].Action)
	assert.Equal(t, "Brick", events[0].Actor)
	assert.Contains(t, events[0].Summary, "Stopped after 1 users")

	_, err = admin.Execute(ctx, "Brick", domain.GiveCoinsCommand{Target: domain.Target{Username: "bob"}, Amount: 50}, t0)
	require.Error(t, err)
	assert.Len(t, audit.Events(), 1, "nothing changed, nothing audited")
}
