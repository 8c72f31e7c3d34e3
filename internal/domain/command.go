package domain

import "time"

// CommandKind tags an administrative command variant.
type CommandKind string

const (
	CommandGiveCoins     CommandKind = "givecoins"
	CommandGiveBadge     CommandKind = "givebadge"
	CommandBan           CommandKind = "ban"
	CommandDeleteAccount CommandKind = "deleteaccount"
	CommandReset         CommandKind = "reset"
	CommandBroadcast     CommandKind = "broadcast"
	CommandSetMultiplier CommandKind = "setmultiplier"
)

// Command is the closed set of administrative commands.
type Command interface {
	Kind() CommandKind
}

// Target addresses one user or everyone.
type Target struct {
	All      bool
	Username string
}

// String renders the target the way it appears in audit lines.
func (t Target) String() string {
	if t.All {
		return "EVERYONE"
	}
	return UserKey(t.Username)
}

// GiveCoinsCommand credits coins to one user or everyone.
type GiveCoinsCommand struct {
	Target Target
	Amount int64
}

// GiveBadgeCommand adds a badge to one user or everyone.
type GiveBadgeCommand struct {
	Target Target
	Badge  string
}

// BanCommand bans a user permanently.
type BanCommand struct {
	Username string
	Reason   string
}

// DeleteAccountCommand removes a user record and ends the session.
type DeleteAccountCommand struct {
	Username string
	Reason   string
}

// ResetCommand returns a user to a clean record.
type ResetCommand struct {
	Username string
}

// BroadcastCommand posts a system message to every channel.
type BroadcastCommand struct {
	Text string
}

// SetMultiplierCommand changes the coin reward factor.
type SetMultiplierCommand struct {
	Factor float64
}

// Kind implementations tag each variant.
func (GiveCoinsCommand) Kind() CommandKind     { return CommandGiveCoins }
func (GiveBadgeCommand) Kind() CommandKind     { return CommandGiveBadge }
func (BanCommand) Kind() CommandKind           { return CommandBan }
func (DeleteAccountCommand) Kind() CommandKind { return CommandDeleteAccount }
func (ResetCommand) Kind() CommandKind         { return CommandReset }
func (BroadcastCommand) Kind() CommandKind     { return CommandBroadcast }
func (SetMultiplierCommand) Kind() CommandKind { return CommandSetMultiplier }

// CommandResult summarizes an executed command.
type CommandResult struct {
	Kind     CommandKind
	Summary  string
	Affected int
	// Messages holds system messages the command posted (broadcasts).
	Messages   []Message
	ExecutedAt time.Time
}
