package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/domain"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

// Administrator executes parsed administrative commands. Every command
// writes one audit entry, including no-op badge grants.
type Administrator struct {
	ledger     *Ledger
	audit      AuditRecorder
	sessions   SessionRegistry
	limiter    *RateLimiter
	multiplier *Multiplier
	logger     *zap.Logger
}

// NewAdministrator wires the command executor. sessions and limiter may be nil.
func NewAdministrator(ledger *Ledger, audit AuditRecorder, sessions SessionRegistry, limiter *RateLimiter, multiplier *Multiplier, logger *zap.Logger) *Administrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if multiplier == nil {
		multiplier = NewMultiplier(1)
	}
	return &Administrator{
		ledger:     ledger,
		audit:      audit,
		sessions:   sessions,
		limiter:    limiter,
		multiplier: multiplier,
		logger:     logger.Named("admin"),
	}
}

// Execute runs cmd on behalf of actor.
func (a *Administrator) Execute(ctx context.Context, actor string, cmd domain.Command, now time.Time) (*domain.CommandResult, error) {
	var (
		result *domain.CommandResult
		event  domain.SanctionEvent
		err    error
	)

	switch c := cmd.(type) {
	case domain.GiveCoinsCommand:
		result, event, err = a.giveCoins(ctx, actor, c)
	case domain.GiveBadgeCommand:
		result, event, err = a.giveBadge(ctx, actor, c)
	case domain.BanCommand:
		result, event, err = a.ban(ctx, actor, c)
	case domain.DeleteAccountCommand:
		result, event, err = a.deleteAccount(ctx, actor, c)
	case domain.ResetCommand:
		result, event, err = a.reset(ctx, actor, c)
	case domain.BroadcastCommand:
		result, event = a.broadcast(actor, c, now)
	case domain.SetMultiplierCommand:
		a.multiplier.Store(c.Factor)
		event = domain.SanctionEvent{
			Target:  "EVERYONE",
			Action:  domain.SanctionMultiplier,
			Summary: fmt.Sprintf("Admin %s set the coin multiplier to %gx.", actor, c.Factor),
		}
		result = &domain.CommandResult{Kind: c.Kind()}
	default:
		return nil, apperrors.NewValidationError("unsupported command", nil)
	}
	if err != nil {
		// A bulk grant that failed partway still changed some users.
		if result != nil && result.Affected > 0 {
			event.Summary = fmt.Sprintf("%s Stopped after %d users: %v", event.Summary, result.Affected, err)
			a.record(ctx, cmd.Kind(), actor, event, now)
		}
		return nil, err
	}

	event = a.record(ctx, cmd.Kind(), actor, event, now)
	result.Summary = event.Summary
	result.ExecutedAt = now.UTC()
	a.logger.Info("command executed",
		zap.String("actor", actor),
		zap.String("command", string(cmd.Kind())),
		zap.Int("affected", result.Affected))
	return result, nil
}

// record stamps event as a manual action by actor and writes it to the audit log.
func (a *Administrator) record(ctx context.Context, kind domain.CommandKind, actor string, event domain.SanctionEvent, now time.Time) domain.SanctionEvent {
	event.ID = uuid.NewString()
	event.OccurredAt = now.UTC()
	event.Actor = actor
	event.Trigger = domain.TriggerManual
	if a.audit != nil {
		if err := a.audit.Record(ctx, event); err != nil {
			a.logger.Error("audit record failed",
				zap.String("command", string(kind)),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
	return event
}

func (a *Administrator) giveCoins(ctx context.Context, actor string, c domain.GiveCoinsCommand) (*domain.CommandResult, domain.SanctionEvent, error) {
	affected, err := a.forTargets(ctx, c.Target, func(name string) (bool, error) {
		_, err := a.ledger.GrantCoins(ctx, name, c.Amount)
		return err == nil, err
	})
	event := domain.SanctionEvent{
		Target:  c.Target.String(),
		Action:  domain.SanctionGiveCoins,
		Reason:  fmt.Sprintf("%d coins", c.Amount),
		Summary: fmt.Sprintf("Admin %s granted %d coins to %s.", actor, c.Amount, c.Target),
	}
	return &domain.CommandResult{Kind: c.Kind(), Affected: affected}, event, err
}

func (a *Administrator) giveBadge(ctx context.Context, actor string, c domain.GiveBadgeCommand) (*domain.CommandResult, domain.SanctionEvent, error) {
	affected, err := a.forTargets(ctx, c.Target, func(name string) (bool, error) {
		return a.ledger.GrantBadge(ctx, name, c.Badge)
	})
	event := domain.SanctionEvent{
		Target:  c.Target.String(),
		Action:  domain.SanctionGiveBadge,
		Reason:  c.Badge,
		Summary: fmt.Sprintf("Admin %s granted badge [%s] to %s.", actor, c.Badge, c.Target),
	}
	return &domain.CommandResult{Kind: c.Kind(), Affected: affected}, event, err
}

func (a *Administrator) ban(ctx context.Context, actor string, c domain.BanCommand) (*domain.CommandResult, domain.SanctionEvent, error) {
	user, err := a.ledger.ApplyBan(ctx, c.Username, c.Reason)
	if err != nil {
		return nil, domain.SanctionEvent{}, targetError(c.Username, err)
	}
	a.terminate(ctx, user.Username, "Banned: "+c.Reason)
	event := domain.SanctionEvent{
		Target:  user.Username,
		Action:  domain.SanctionBan,
		Strikes: user.Strikes,
		Reason:  c.Reason,
		Summary: fmt.Sprintf("Admin %s BANNED user: %s. Reason: %s", actor, user.Key(), c.Reason),
	}
	return &domain.CommandResult{Kind: c.Kind(), Affected: 1}, event, nil
}

func (a *Administrator) deleteAccount(ctx context.Context, actor string, c domain.DeleteAccountCommand) (*domain.CommandResult, domain.SanctionEvent, error) {
	if err := a.ledger.Delete(ctx, c.Username); err != nil {
		return nil, domain.SanctionEvent{}, targetError(c.Username, err)
	}
	key := domain.UserKey(c.Username)
	a.terminate(ctx, key, "Your account was deleted! Reason: "+c.Reason)
	if a.limiter != nil {
		a.limiter.Forget(key)
	}
	event := domain.SanctionEvent{
		Target:  key,
		Action:  domain.SanctionDeleteAccount,
		Reason:  c.Reason,
		Summary: fmt.Sprintf("Admin %s DELETED account: %s. Reason: %s", actor, key, c.Reason),
	}
	return &domain.CommandResult{Kind: c.Kind(), Affected: 1}, event, nil
}

func (a *Administrator) reset(ctx context.Context, actor string, c domain.ResetCommand) (*domain.CommandResult, domain.SanctionEvent, error) {
	user, err := a.ledger.Reset(ctx, c.Username)
	if err != nil {
		return nil, domain.SanctionEvent{}, targetError(c.Username, err)
	}
	if a.limiter != nil {
		a.limiter.Forget(user.Key())
	}
	event := domain.SanctionEvent{
		Target:  user.Username,
		Action:  domain.SanctionReset,
		Summary: fmt.Sprintf("Admin %s RESET user: %s. Strikes, ban and timeout cleared.", actor, user.Key()),
	}
	return &domain.CommandResult{Kind: c.Kind(), Affected: 1}, event, nil
}

func (a *Administrator) broadcast(actor string, c domain.BroadcastCommand, now time.Time) (*domain.CommandResult, domain.SanctionEvent) {
	msgs := make([]domain.Message, 0, len(domain.DefaultChannels))
	for _, ch := range domain.DefaultChannels {
		msgs = append(msgs, domain.Message{
			ID:        uuid.NewString(),
			ChannelID: ch,
			Sender:    domain.SystemSender,
			Text:      c.Text,
			System:    true,
			CreatedAt: now.UTC(),
		})
	}
	event := domain.SanctionEvent{
		Target:  "EVERYONE",
		Action:  domain.SanctionBroadcast,
		Reason:  c.Text,
		Summary: fmt.Sprintf("GLOBAL BROADCAST by Admin %s: %q", actor, c.Text),
	}
	return &domain.CommandResult{Kind: c.Kind(), Affected: len(msgs), Messages: msgs}, event
}

// forTargets applies fn to one user or to every user. For "all", users
// deleted while the loop runs are skipped.
func (a *Administrator) forTargets(ctx context.Context, target domain.Target, fn func(name string) (bool, error)) (int, error) {
	if !target.All {
		changed, err := fn(target.Username)
		if err != nil {
			return 0, targetError(target.Username, err)
		}
		if changed {
			return 1, nil
		}
		return 0, nil
	}

	names, err := a.ledger.ListUsernames(ctx)
	if err != nil {
		return 0, err
	}
	affected := 0
	for _, name := range names {
		changed, err := fn(name)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return affected, err
		}
		if changed {
			affected++
		}
	}
	return affected, nil
}

func (a *Administrator) terminate(ctx context.Context, username, reason string) {
	if a.sessions == nil {
		return
	}
	if err := a.sessions.Terminate(ctx, username, reason); err != nil {
		a.logger.Warn("terminate session failed", zap.String("target", username), zap.Error(err))
	}
}

func targetError(username string, err error) error {
	if isNotFound(err) {
		return apperrors.NewAdminTargetNotFound(domain.UserKey(username))
	}
	return err
}

func isNotFound(err error) bool {
	var de *apperrors.DomainError
	return errors.As(err, &de) && de.Code == apperrors.CodeNotFound
}
