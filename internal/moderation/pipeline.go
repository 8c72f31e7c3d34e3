package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/config"
	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/observability"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

const (
	policyRejection     = "Nexus Policy (%s): Your message contained prohibited content."
	commandsRestricted  = "commands are restricted to administrators"
	classifierRejection = "Your image could not be checked right now. Please try again later."
)

// ContentClassifier decides whether content is safe to post.
type ContentClassifier interface {
	ClassifyText(text string) domain.Verdict
	ClassifyImage(ctx context.Context, image []byte, contentType string) (domain.Verdict, error)
}

// MessageStore persists accepted messages.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) error
}

// PipelineConfig carries the pipeline's tunables.
type PipelineConfig struct {
	ClassifierTimeout time.Duration
	FailurePolicy     config.FailurePolicy
	BaseReward        int64
}

// Pipeline decides, for every submitted action, whether it is accepted,
// rejected or sanctioned, and applies the consequences.
type Pipeline struct {
	classifier ContentClassifier
	ledger     *Ledger
	limiter    *RateLimiter
	escalator  *Escalator
	admin      *Administrator
	sessions   SessionRegistry
	messages   MessageStore
	multiplier *Multiplier
	cfg        PipelineConfig
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// PipelineDeps bundles the pipeline's collaborators.
type PipelineDeps struct {
	Classifier ContentClassifier
	Ledger     *Ledger
	Limiter    *RateLimiter
	Escalator  *Escalator
	Admin      *Administrator
	Sessions   SessionRegistry
	Messages   MessageStore
	Multiplier *Multiplier
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewPipeline builds the pipeline.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClassifierTimeout <= 0 {
		cfg.ClassifierTimeout = 10 * time.Second
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = config.FailOpen
	}
	multiplier := deps.Multiplier
	if multiplier == nil {
		multiplier = NewMultiplier(1)
	}
	return &Pipeline{
		classifier: deps.Classifier,
		ledger:     deps.Ledger,
		limiter:    deps.Limiter,
		escalator:  deps.Escalator,
		admin:      deps.Admin,
		sessions:   deps.Sessions,
		messages:   deps.Messages,
		multiplier: multiplier,
		cfg:        cfg,
		metrics:    deps.Metrics,
		logger:     logger.Named("pipeline"),
	}
}

// Submit runs one action through the sanction gate, command dispatch,
// classification, escalation, rate limiting and acceptance, in that order.
func (p *Pipeline) Submit(ctx context.Context, session domain.Session, action domain.Action, now time.Time) (domain.Outcome, error) {
	outcome, err := p.submit(ctx, session, action, now)
	if err != nil {
		code := apperrors.ToDomainError(err).Code
		p.metrics.RecordOutcome(string(action.Kind), "error", code)
		return domain.Outcome{}, err
	}
	p.metrics.RecordOutcome(string(action.Kind), string(outcome.Kind), outcome.Code)
	return outcome, nil
}

func (p *Pipeline) submit(ctx context.Context, session domain.Session, action domain.Action, now time.Time) (domain.Outcome, error) {
	user, err := p.ledger.Get(ctx, session.Username)
	if err != nil {
		return domain.Outcome{}, err
	}
	if outcome, sanctioned := sanctionOutcome(user, now); sanctioned {
		return outcome, nil
	}

	if action.Kind == domain.ActionText && IsCommand(action.Text) {
		if !session.Privileged {
			return domain.Rejected(apperrors.CodeForbidden, domain.CategoryNone, commandsRestricted), nil
		}
		return p.executeCommand(ctx, session, action.Text, now)
	}

	if err := validateAction(action); err != nil {
		return domain.Outcome{}, err
	}

	text := action.Text
	if !session.Privileged {
		switch action.Kind {
		case domain.ActionText:
			verdict := p.classifier.ClassifyText(action.Text)
			if !verdict.Safe {
				return domain.Rejected(apperrors.CodePolicyViolation, verdict.Category,
					fmt.Sprintf(policyRejection, verdict.Category.DisplayReason())), nil
			}
			text = verdict.Sanitized

		case domain.ActionImage:
			outcome, done, err := p.screenImage(ctx, session, action, now)
			if err != nil || done {
				return outcome, err
			}
		}
	}

	return p.commit(ctx, session, action, text, now)
}

// screenImage classifies an image and escalates on a violation. done is
// true when the submission ends here.
func (p *Pipeline) screenImage(ctx context.Context, session domain.Session, action domain.Action, now time.Time) (domain.Outcome, bool, error) {
	verdict, err := p.classifyImage(ctx, action)
	if err != nil {
		p.metrics.RecordClassifierFailure(p.providerName(), string(p.cfg.FailurePolicy))
		p.logger.Warn("image classification failed",
			zap.String("user", session.Key()),
			zap.String("policy", string(p.cfg.FailurePolicy)),
			zap.Error(err))
		if p.cfg.FailurePolicy == config.FailClosed {
			return domain.Rejected(apperrors.CodeClassifierUnavailable, domain.CategoryNone, classifierRejection), true, nil
		}
		verdict = domain.SafeVerdict()
	}

	// The caller may have gone away while the classifier ran; the sanction
	// must still land, so the escalation runs on a detached context.
	detached := context.WithoutCancel(ctx)
	if !verdict.Safe {
		user, event, err := p.escalator.Escalate(detached, session.Username, domain.TriggerUnsafeImage, verdict.Category, now)
		if err != nil {
			return domain.Outcome{}, true, err
		}
		outcome, _ := sanctionOutcome(user, now)
		outcome.Category = verdict.Category
		if event != nil {
			outcome.Code = apperrors.CodePolicyViolation
			outcome.Event = event
			if event.Action == domain.SanctionTimeout {
				outcome.Reason = p.escalator.Notice(*event, verdict.Category)
			}
		}
		return outcome, true, nil
	}

	if err := ctx.Err(); err != nil {
		return domain.Outcome{}, true, err
	}
	if p.sessions != nil && session.ID != "" {
		active, err := p.sessions.IsActive(detached, session.Username, session.ID)
		if err == nil && !active {
			return domain.Outcome{}, true, apperrors.NewUnauthorized("session ended")
		}
	}
	return domain.Outcome{}, false, nil
}

// classifyImage runs the classifier in its own goroutine with a bounded
// timeout that does not depend on the caller's context.
func (p *Pipeline) classifyImage(ctx context.Context, action domain.Action) (domain.Verdict, error) {
	type result struct {
		verdict domain.Verdict
		err     error
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ClassifierTimeout)
	defer cancel()
	done := make(chan result, 1)
	go func() {
		v, err := p.classifier.ClassifyImage(cctx, action.Image, action.ContentType)
		done <- result{verdict: v, err: err}
	}()
	select {
	case r := <-done:
		return r.verdict, r.err
	case <-cctx.Done():
		select {
		case r := <-done:
			return r.verdict, r.err
		default:
		}
		// The goroutine finishes on its own; done is buffered.
		return domain.Verdict{}, fmt.Errorf("image classifier: %w", cctx.Err())
	}
}

// commit re-checks sanctions and the rate window under the user's ledger
// lock, then stores the message and pays the reward in the same write. A
// failed store leaves neither the reward nor the rate window entry behind.
func (p *Pipeline) commit(ctx context.Context, session domain.Session, action domain.Action, text string, now time.Time) (domain.Outcome, error) {
	var (
		outcome  domain.Outcome
		spam     *domain.SanctionEvent
		recorded bool
	)
	reward := p.multiplier.Reward(p.cfg.BaseReward)
	msg := &domain.Message{
		ID:        uuid.NewString(),
		ChannelID: action.ChannelID,
		Text:      text,
		ImageURL:  action.ImageRef,
		CreatedAt: now.UTC(),
	}

	_, err := p.ledger.Mutate(ctx, session.Username, func(u *domain.User) error {
		if o, sanctioned := sanctionOutcome(u, now); sanctioned {
			outcome = o
			return errNoChange
		}
		if !session.Privileged && p.limiter != nil {
			if !p.limiter.RecordAndCheck(u.Key(), now) {
				ev := p.escalator.Apply(u, domain.TriggerSpam, domain.CategoryNone, now)
				spam = &ev
				outcome = domain.SanctionedUntil(apperrors.CodeRateExceeded, *u.TimeoutUntil, p.escalator.Notice(ev, domain.CategoryNone))
				outcome.Event = spam
				return nil
			}
			recorded = true
		}
		msg.Sender = u.Username
		if p.messages != nil {
			if err := p.messages.Create(context.WithoutCancel(ctx), msg); err != nil {
				p.logger.Error("store message failed", zap.String("message_id", msg.ID), zap.Error(err))
				return apperrors.NewPersistenceUnavailable(err)
			}
		}
		u.AddCoins(reward)
		outcome = domain.Accepted(msg)
		return nil
	})
	if err != nil {
		if recorded {
			p.limiter.Retract(session.Username, now)
		}
		return domain.Outcome{}, err
	}
	if spam != nil {
		p.escalator.Record(context.WithoutCancel(ctx), *spam)
	}
	return outcome, nil
}

func (p *Pipeline) executeCommand(ctx context.Context, session domain.Session, text string, now time.Time) (domain.Outcome, error) {
	cmd, err := ParseCommand(text)
	if err != nil {
		return rejectedFromError(err)
	}
	result, err := p.admin.Execute(ctx, session.Username, cmd, now)
	if err != nil {
		return rejectedFromError(err)
	}
	return domain.Executed(result), nil
}

func (p *Pipeline) providerName() string {
	if named, ok := p.classifier.(interface{ ImageProvider() string }); ok {
		return named.ImageProvider()
	}
	return "unknown"
}

// Multiplier exposes the live reward factor.
func (p *Pipeline) Multiplier() *Multiplier {
	return p.multiplier
}

// rejectedFromError turns validation and unknown-target errors into a
// Rejected outcome; anything else stays an error.
func rejectedFromError(err error) (domain.Outcome, error) {
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case apperrors.CodeValidation, apperrors.CodeAdminTargetNotFound:
			return domain.Rejected(de.Code, domain.CategoryNone, de.Message), nil
		}
	}
	return domain.Outcome{}, err
}

// sanctionOutcome reports the active sanction of u at now, if any.
func sanctionOutcome(u *domain.User, now time.Time) (domain.Outcome, bool) {
	status := u.Status(now)
	if !status.Active {
		return domain.Outcome{}, false
	}
	if status.Permanent {
		return domain.SanctionedPermanently(apperrors.CodeSanctionActive, status.Reason), true
	}
	return domain.SanctionedUntil(apperrors.CodeSanctionActive, *status.Until, status.Reason), true
}

func validateAction(action domain.Action) error {
	if !domain.IsPostableChannel(action.ChannelID) {
		return apperrors.NewValidationError("unknown or read-only channel", map[string]any{"channel": action.ChannelID})
	}
	switch action.Kind {
	case domain.ActionText:
		if strings.TrimSpace(action.Text) == "" {
			return apperrors.NewValidationError("message text is required", nil)
		}
	case domain.ActionImage:
		if len(action.Image) == 0 {
			return apperrors.NewValidationError("image payload is required", nil)
		}
	default:
		return apperrors.NewValidationError("unsupported action kind", map[string]any{"kind": action.Kind})
	}
	return nil
}
