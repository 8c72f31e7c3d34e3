package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/auth"
	"github.com/nexus-chat/moderation-service/internal/config"
	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/moderation"
	"github.com/nexus-chat/moderation-service/internal/session"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

const (
	minPasswordLength = 6
	logoutReason      = "Logged out"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// UsernameChecker screens display names at registration.
type UsernameChecker interface {
	CheckUsername(name string) domain.Verdict
}

// AuthToken is the issued bearer token of a session.
type AuthToken struct {
	Value     string
	SessionID string
	ExpiresAt time.Time
}

// AuthService coordinates registration, login and logout.
type AuthService struct {
	ledger     *moderation.Ledger
	names      UsernameChecker
	sessions   session.Registry
	tokenMgr   *auth.TokenManager
	bcryptCost int
	ownerName  string
	logger     *zap.Logger
}

// AuthDependencies encapsulates the collaborators of the auth service.
type AuthDependencies struct {
	Ledger   *moderation.Ledger
	Names    UsernameChecker
	Sessions session.Registry
	Tokens   *auth.TokenManager
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		ledger:     deps.Ledger,
		names:      deps.Names,
		sessions:   deps.Sessions,
		tokenMgr:   deps.Tokens,
		bcryptCost: cfg.BcryptCost,
		ownerName:  cfg.OwnerName,
		logger:     logger.Named("auth"),
	}
}

// IsOwner reports whether username is the privileged account.
func (s *AuthService) IsOwner(username string) bool {
	return s.ownerName != "" && strings.EqualFold(strings.TrimSpace(username), s.ownerName)
}

// Register creates an account and opens its first session.
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.User, AuthToken, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, AuthToken{}, apperrors.NewValidationError("username must be 3-20 letters, digits or underscores", nil)
	}
	if len(password) < minPasswordLength {
		return nil, AuthToken{}, apperrors.NewValidationError("password must be at least 6 characters", nil)
	}
	if s.names != nil {
		if verdict := s.names.CheckUsername(username); !verdict.Safe {
			return nil, AuthToken{}, apperrors.NewValidationError("username is not allowed",
				map[string]any{"reason": verdict.Category.DisplayReason()})
		}
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, AuthToken{}, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Badges:       domain.NewBadgeSet(),
	}
	if err := s.ledger.Create(ctx, user); err != nil {
		return nil, AuthToken{}, err
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		return nil, AuthToken{}, err
	}
	s.logger.Info("user registered", zap.String("user", user.Key()))
	return user, token, nil
}

// Login authenticates the user and replaces any previous session. Banned
// accounts cannot log in; timed out users can.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, AuthToken, error) {
	user, err := s.ledger.Get(ctx, username)
	if err != nil {
		var de *apperrors.DomainError
		if errors.As(err, &de) && de.Code == apperrors.CodeNotFound {
			return nil, AuthToken{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, AuthToken{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, AuthToken{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if user.Banned {
		return nil, AuthToken{}, apperrors.NewForbidden("Banned: " + user.BanReason)
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		return nil, AuthToken{}, err
	}
	return user, token, nil
}

// Logout ends the caller's session.
func (s *AuthService) Logout(ctx context.Context, sess domain.Session) error {
	if err := s.sessions.Terminate(ctx, sess.Username, logoutReason); err != nil {
		return apperrors.NewPersistenceUnavailable(err)
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, user *domain.User) (AuthToken, error) {
	sid, err := s.sessions.Start(ctx, user.Username)
	if err != nil {
		return AuthToken{}, apperrors.NewPersistenceUnavailable(err)
	}
	value, exp, err := s.tokenMgr.GenerateToken(domain.Session{
		ID:         sid,
		Username:   user.Username,
		Privileged: s.IsOwner(user.Username),
	})
	if err != nil {
		return AuthToken{}, apperrors.NewInternalError(err)
	}
	return AuthToken{Value: value, SessionID: sid, ExpiresAt: exp}, nil
}
