package domain

import "time"

// Trigger names what caused a sanction event.
type Trigger string

const (
	TriggerSpam        Trigger = "spam"
	TriggerUnsafeText  Trigger = "unsafe-text"
	TriggerUnsafeImage Trigger = "unsafe-image"
	TriggerManual      Trigger = "manual"
)

// SanctionAction names the consequence recorded in an audit entry.
type SanctionAction string

const (
	SanctionTimeout       SanctionAction = "timeout"
	SanctionBan           SanctionAction = "ban"
	SanctionGiveCoins     SanctionAction = "givecoins"
	SanctionGiveBadge     SanctionAction = "givebadge"
	SanctionDeleteAccount SanctionAction = "deleteaccount"
	SanctionReset         SanctionAction = "reset"
	SanctionBroadcast     SanctionAction = "broadcast"
	SanctionMultiplier    SanctionAction = "setmultiplier"
)

// AutomatedActor is recorded as the actor of pipeline-driven events.
const AutomatedActor = "automod"

// SanctionEvent is an immutable audit log entry.
type SanctionEvent struct {
	ID         string
	OccurredAt time.Time
	Target     string
	Actor      string
	Trigger    Trigger
	Action     SanctionAction
	Duration   time.Duration
	Strikes    int
	Reason     string
	// Summary is the human-readable line shown on the moderation log surface.
	Summary string
}
