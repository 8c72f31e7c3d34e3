package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/events"
	"github.com/nexus-chat/moderation-service/internal/moderation"
	"github.com/nexus-chat/moderation-service/internal/repository"
	"github.com/nexus-chat/moderation-service/internal/session"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	previewLength       = 80
)

// ChatService posts content through the moderation pipeline and keeps
// channel history.
type ChatService struct {
	pipeline   *moderation.Pipeline
	ledger     *moderation.Ledger
	messages   repository.MessageRepository
	sessions   session.Registry
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// ChatDependencies bundles collaborators of the chat service.
type ChatDependencies struct {
	Pipeline   *moderation.Pipeline
	Ledger     *moderation.Ledger
	Messages   repository.MessageRepository
	Sessions   session.Registry
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewChatService creates the service.
func NewChatService(deps ChatDependencies) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		pipeline:   deps.Pipeline,
		ledger:     deps.Ledger,
		messages:   deps.Messages,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("chat"),
		now:        time.Now,
	}
}

// PostText submits a text message or, for the owner, a command line.
func (s *ChatService) PostText(ctx context.Context, sess domain.Session, channelID, text string) (domain.Outcome, error) {
	return s.submit(ctx, sess, domain.Action{
		Kind:      domain.ActionText,
		Text:      text,
		ChannelID: channelID,
	})
}

// PostImage submits an image upload. Accepted images are stored inline as
// data URLs.
func (s *ChatService) PostImage(ctx context.Context, sess domain.Session, channelID string, image []byte, contentType string) (domain.Outcome, error) {
	return s.submit(ctx, sess, domain.Action{
		Kind:        domain.ActionImage,
		Image:       image,
		ContentType: contentType,
		ImageRef:    dataURL(contentType, image),
		ChannelID:   channelID,
	})
}

// ExecuteCommand runs an administrative command line on behalf of sess.
func (s *ChatService) ExecuteCommand(ctx context.Context, sess domain.Session, line string) (domain.Outcome, error) {
	if !moderation.IsCommand(line) {
		return domain.Outcome{}, apperrors.NewValidationError("commands start with /", nil)
	}
	return s.PostText(ctx, sess, domain.DefaultChannels[0], line)
}

// ResetUser clears a user's strikes, ban and timeout.
func (s *ChatService) ResetUser(ctx context.Context, sess domain.Session, username string) (domain.Outcome, error) {
	return s.ExecuteCommand(ctx, sess, "/reset "+username)
}

// History returns the newest messages of a postable channel.
func (s *ChatService) History(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	if !domain.IsPostableChannel(channelID) {
		return nil, apperrors.NewNotFound("channel", map[string]any{"channel": channelID})
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	msgs, err := s.messages.ListByChannel(ctx, channelID, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceUnavailable(err)
	}
	return msgs, nil
}

// SanctionStatus reports whether the user may currently act.
func (s *ChatService) SanctionStatus(ctx context.Context, username string) (domain.SanctionStatus, *domain.User, error) {
	user, err := s.ledger.Get(ctx, username)
	if err != nil {
		return domain.SanctionStatus{}, nil, err
	}
	return user.Status(s.now()), user, nil
}

func (s *ChatService) submit(ctx context.Context, sess domain.Session, action domain.Action) (domain.Outcome, error) {
	now := s.now()
	action.SubmittedAt = now
	outcome, err := s.pipeline.Submit(ctx, sess, action, now)
	if err != nil {
		return domain.Outcome{}, err
	}

	switch outcome.Kind {
	case domain.OutcomeAccepted:
		s.publishAccepted(ctx, sess, outcome.Message)
	case domain.OutcomeExecuted:
		if outcome.Command != nil {
			for i := range outcome.Command.Messages {
				if err := s.store(ctx, &outcome.Command.Messages[i]); err != nil {
					return domain.Outcome{}, err
				}
			}
		}
	case domain.OutcomeRejected, domain.OutcomeSanctioned:
		s.logger.Info("submission blocked",
			zap.String("user", sess.Key()),
			zap.String("kind", string(action.Kind)),
			zap.String("outcome", string(outcome.Kind)),
			zap.String("code", outcome.Code),
			zap.String("category", string(outcome.Category)))
		if outcome.Permanent {
			s.endBannedSession(ctx, sess, outcome.Reason)
		}
	}
	return outcome, nil
}

// endBannedSession logs a banned user out.
func (s *ChatService) endBannedSession(ctx context.Context, sess domain.Session, banReason string) {
	if s.sessions == nil {
		return
	}
	reason := "Banned: " + banReason
	if banReason == moderation.StrikeBanReason {
		reason = moderation.StrikeBanLogout
	}
	if err := s.sessions.Terminate(context.WithoutCancel(ctx), sess.Username, reason); err != nil {
		s.logger.Warn("terminate session failed", zap.String("user", sess.Key()), zap.Error(err))
	}
}

func (s *ChatService) store(ctx context.Context, msg *domain.Message) error {
	if msg == nil {
		return nil
	}
	if err := s.messages.Create(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Error("store message failed", zap.String("message_id", msg.ID), zap.Error(err))
		return apperrors.NewPersistenceUnavailable(err)
	}
	return nil
}

func (s *ChatService) publishAccepted(ctx context.Context, sess domain.Session, msg *domain.Message) {
	if s.dispatcher == nil || msg == nil {
		return
	}
	preview := []rune(msg.Text)
	if len(preview) > previewLength {
		preview = preview[:previewLength]
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        msg.ID,
		Type:      events.EventMessageAccepted,
		Subject:   sess.Key(),
		Actor:     msg.Sender,
		Timestamp: msg.CreatedAt,
		Payload: events.MessageAcceptedPayload{
			MessageID:   msg.ID,
			ChannelID:   msg.ChannelID,
			HasImage:    msg.ImageURL != "",
			BodyPreview: string(preview),
		},
	})
}

func dataURL(contentType string, image []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))
}
