package dto

import (
	"time"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

// RegisterRequest payload for new users.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public view of a user record.
type UserResponse struct {
	Username string   `json:"username"`
	Coins    int64    `json:"coins"`
	Strikes  int      `json:"strikes"`
	Banned   bool     `json:"banned"`
	Badges   []string `json:"badges"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		Username: u.Username,
		Coins:    u.Coins,
		Strikes:  u.Strikes,
		Banned:   u.Banned,
		Badges:   u.Badges.Sorted(),
	}
}

// SanctionStatusResponse answers GET /me/sanction.
type SanctionStatusResponse struct {
	Sanctioned       bool       `json:"sanctioned"`
	Permanent        bool       `json:"permanent"`
	Reason           string     `json:"reason,omitempty"`
	Until            *time.Time `json:"until,omitempty"`
	RemainingSeconds int64      `json:"remaining_seconds,omitempty"`
	Strikes          int        `json:"strikes"`
}

// NewSanctionStatusResponse maps the sanction view at now.
func NewSanctionStatusResponse(status domain.SanctionStatus, u *domain.User, now time.Time) SanctionStatusResponse {
	return SanctionStatusResponse{
		Sanctioned:       status.Active,
		Permanent:        status.Permanent,
		Reason:           status.Reason,
		Until:            status.Until,
		RemainingSeconds: remainingSeconds(status.Remaining(now)),
		Strikes:          u.Strikes,
	}
}
