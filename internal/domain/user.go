package domain

import (
	"strings"
	"time"
)

// User is the persisted identity and sanction record for a chat participant.
type User struct {
	Username      string
	PasswordHash  string
	Coins         int64
	Strikes       int
	Banned        bool
	BanReason     string
	TimeoutUntil  *time.Time
	TimeoutReason string
	Badges        BadgeSet
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserKey normalizes a username to its storage key.
func UserKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Key returns the lowercase storage key of the user.
func (u *User) Key() string {
	return UserKey(u.Username)
}

// Clone returns a deep copy so snapshots never alias a record under mutation.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.TimeoutUntil != nil {
		until := *u.TimeoutUntil
		out.TimeoutUntil = &until
	}
	out.Badges = u.Badges.Clone()
	return &out
}

// TimedOutAt reports whether the timeout window still covers now. A user
// sanctioned until T is timed out at T and clear strictly after it.
func (u *User) TimedOutAt(now time.Time) bool {
	return u.TimeoutUntil != nil && !now.After(*u.TimeoutUntil)
}

// ApplyTimeout replaces any existing timeout window.
func (u *User) ApplyTimeout(until time.Time, reason string) {
	until = until.UTC()
	u.TimeoutUntil = &until
	u.TimeoutReason = reason
}

// ClearTimeout removes the timeout window unless the user is banned; ban
// supersedes timeout and is only lifted by Reset.
func (u *User) ClearTimeout() bool {
	if u.Banned {
		return false
	}
	u.TimeoutUntil = nil
	u.TimeoutReason = ""
	return true
}

// ApplyBan marks the user permanently banned.
func (u *User) ApplyBan(reason string) {
	u.Banned = true
	u.BanReason = reason
}

// IncrementStrike records one more image violation and returns the new count.
func (u *User) IncrementStrike() int {
	u.Strikes++
	return u.Strikes
}

// Reset is the administrative path back to a clean record.
func (u *User) Reset() {
	u.Strikes = 0
	u.Banned = false
	u.BanReason = ""
	u.TimeoutUntil = nil
	u.TimeoutReason = ""
}

// AddCoins applies a non-negative balance change.
func (u *User) AddCoins(amount int64) bool {
	if amount <= 0 {
		return false
	}
	u.Coins += amount
	return true
}

// Status derives the sanction view of the record at now.
func (u *User) Status(now time.Time) SanctionStatus {
	switch {
	case u.Banned:
		return SanctionStatus{Active: true, Permanent: true, Reason: u.BanReason}
	case u.TimedOutAt(now):
		until := *u.TimeoutUntil
		return SanctionStatus{Active: true, Reason: u.TimeoutReason, Until: &until}
	default:
		return SanctionStatus{}
	}
}

// SanctionStatus answers "is this user currently allowed to act".
type SanctionStatus struct {
	Active    bool
	Permanent bool
	Reason    string
	Until     *time.Time
}

// Remaining returns the time left on a timeout; zero for bans and clear users.
func (s SanctionStatus) Remaining(now time.Time) time.Duration {
	if !s.Active || s.Until == nil {
		return 0
	}
	return s.Until.Sub(now)
}
