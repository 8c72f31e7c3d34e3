package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/config"
	"github.com/nexus-chat/moderation-service/internal/domain"
)

// Reasons and notices shown to sanctioned users.
const (
	StrikeBanReason     = "3 Strike Policy: Persistent Image Safety Violations."
	StrikeBanLogout     = "Account Permanently Banned: Excessive safety violations."
	SpamTimeoutReason   = "Spamming"
	SpamTimeoutNotice   = "Slow down! You've been timed out for %s due to spamming."
	imageTimeoutReason  = "Image Policy Violation (%s)"
	imageTimeoutNotice  = "STRIKE %d/%d: Your image was removed for containing %s content. You have been timed out for %s."
	autoBanSummary      = "AUTO-BAN: User %s permanently banned for reaching %d strikes."
	imageTimeoutSummary = "AUTO-TIMEOUT: User %s timed out for %s. Violation: %s content (Strike %d/%d)."
	spamTimeoutSummary  = "AUTO-TIMEOUT: User %s timed out for %s (Spamming)."
)

// AuditRecorder persists and publishes audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, event domain.SanctionEvent) error
}

// SessionRegistry is the part of the session store moderation needs.
type SessionRegistry interface {
	Terminate(ctx context.Context, username, reason string) error
	IsActive(ctx context.Context, username, sessionID string) (bool, error)
}

// Policy holds the escalation constants.
type Policy struct {
	StrikeThreshold int
	ImageTimeout    time.Duration
	SpamTimeout     time.Duration
}

// PolicyFromConfig reads the escalation constants from config.
func PolicyFromConfig(cfg config.ModerationConfig) Policy {
	return Policy{
		StrikeThreshold: cfg.StrikeThreshold,
		ImageTimeout:    cfg.ImageTimeout,
		SpamTimeout:     cfg.SpamTimeout,
	}
}

// Escalator turns violations into sanctions:
// Clear -> Warned(1) -> Warned(2) -> Banned on unsafe images, and a fixed
// timeout on spam bursts that leaves strikes untouched.
type Escalator struct {
	ledger   *Ledger
	audit    AuditRecorder
	sessions SessionRegistry
	policy   Policy
	logger   *zap.Logger
}

// NewEscalator wires the state machine to its collaborators. sessions may be nil.
func NewEscalator(ledger *Ledger, audit AuditRecorder, sessions SessionRegistry, policy Policy, logger *zap.Logger) *Escalator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.StrikeThreshold <= 0 {
		policy.StrikeThreshold = 3
	}
	return &Escalator{
		ledger:   ledger,
		audit:    audit,
		sessions: sessions,
		policy:   policy,
		logger:   logger.Named("escalator"),
	}
}

// Apply mutates u for one violation and returns the audit entry describing
// it. It performs no I/O so callers can run it inside a ledger write.
func (e *Escalator) Apply(u *domain.User, trigger domain.Trigger, category domain.Category, now time.Time) domain.SanctionEvent {
	event := domain.SanctionEvent{
		ID:         uuid.NewString(),
		OccurredAt: now.UTC(),
		Target:     u.Username,
		Actor:      domain.AutomatedActor,
		Trigger:    trigger,
	}

	if trigger == domain.TriggerSpam {
		u.ApplyTimeout(now.Add(e.policy.SpamTimeout), SpamTimeoutReason)
		event.Action = domain.SanctionTimeout
		event.Duration = e.policy.SpamTimeout
		event.Strikes = u.Strikes
		event.Reason = SpamTimeoutReason
		event.Summary = fmt.Sprintf(spamTimeoutSummary, u.Username, humanDuration(e.policy.SpamTimeout))
		return event
	}

	strikes := u.IncrementStrike()
	event.Strikes = strikes
	if strikes >= e.policy.StrikeThreshold {
		u.ApplyBan(StrikeBanReason)
		event.Action = domain.SanctionBan
		event.Reason = StrikeBanReason
		event.Summary = fmt.Sprintf(autoBanSummary, u.Username, e.policy.StrikeThreshold)
		return event
	}

	u.ApplyTimeout(now.Add(e.policy.ImageTimeout), fmt.Sprintf(imageTimeoutReason, category))
	event.Action = domain.SanctionTimeout
	event.Duration = e.policy.ImageTimeout
	event.Reason = u.TimeoutReason
	event.Summary = fmt.Sprintf(imageTimeoutSummary,
		u.Username, humanDuration(e.policy.ImageTimeout), category, strikes, e.policy.StrikeThreshold)
	return event
}

// Escalate applies a violation to the stored record, then records it. A
// user that is already banned is left untouched and no event is produced.
func (e *Escalator) Escalate(ctx context.Context, username string, trigger domain.Trigger, category domain.Category, now time.Time) (*domain.User, *domain.SanctionEvent, error) {
	var event *domain.SanctionEvent
	user, err := e.ledger.Mutate(ctx, username, func(u *domain.User) error {
		if u.Banned {
			return errNoChange
		}
		ev := e.Apply(u, trigger, category, now)
		event = &ev
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if event != nil {
		e.Record(ctx, *event)
	}
	return user, event, nil
}

// Record writes the event to the audit log and ends the target's session
// when the event is a ban. Failures are logged; the sanction itself is
// already committed.
func (e *Escalator) Record(ctx context.Context, event domain.SanctionEvent) {
	if e.audit != nil {
		if err := e.audit.Record(ctx, event); err != nil {
			e.logger.Error("audit record failed",
				zap.String("event_id", event.ID),
				zap.String("target", event.Target),
				zap.Error(err))
		}
	}
	if event.Action == domain.SanctionBan && e.sessions != nil {
		if err := e.sessions.Terminate(ctx, event.Target, StrikeBanLogout); err != nil {
			e.logger.Warn("terminate session failed", zap.String("target", event.Target), zap.Error(err))
		}
	}
}

// Notice renders the message shown to the sanctioned user for an event.
func (e *Escalator) Notice(event domain.SanctionEvent, category domain.Category) string {
	switch {
	case event.Action == domain.SanctionBan:
		return StrikeBanLogout
	case event.Trigger == domain.TriggerSpam:
		return fmt.Sprintf(SpamTimeoutNotice, humanDuration(event.Duration))
	default:
		return fmt.Sprintf(imageTimeoutNotice, event.Strikes, e.policy.StrikeThreshold, category, humanDuration(event.Duration))
	}
}

// humanDuration renders whole minutes the way audit lines expect.
func humanDuration(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}

