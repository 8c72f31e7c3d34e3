package domain

import "time"

// OutcomeKind enumerates pipeline results.
type OutcomeKind string

const (
	OutcomeAccepted   OutcomeKind = "accepted"
	OutcomeRejected   OutcomeKind = "rejected"
	OutcomeSanctioned OutcomeKind = "sanctioned"
	OutcomeExecuted   OutcomeKind = "executed"
)

// Outcome is the result of one submission.
type Outcome struct {
	Kind OutcomeKind
	// Code is the error taxonomy code for rejected and sanctioned outcomes.
	Code     string
	Reason   string
	Category Category
	Message  *Message
	// Until is nil for permanent sanctions.
	Until     *time.Time
	Permanent bool
	Command   *CommandResult
	// Event is the audit entry produced by this submission, if any.
	Event *SanctionEvent
}

// Accepted wraps an accepted message.
func Accepted(msg *Message) Outcome {
	return Outcome{Kind: OutcomeAccepted, Message: msg}
}

// Rejected drops the submission with a categorized reason.
func Rejected(code string, category Category, reason string) Outcome {
	return Outcome{Kind: OutcomeRejected, Code: code, Category: category, Reason: reason}
}

// SanctionedUntil reports a time-bounded sanction.
func SanctionedUntil(code string, until time.Time, reason string) Outcome {
	u := until
	return Outcome{Kind: OutcomeSanctioned, Code: code, Until: &u, Reason: reason}
}

// SanctionedPermanently reports a ban.
func SanctionedPermanently(code, reason string) Outcome {
	return Outcome{Kind: OutcomeSanctioned, Code: code, Permanent: true, Reason: reason}
}

// Executed wraps the result of an administrative command.
func Executed(result *CommandResult) Outcome {
	return Outcome{Kind: OutcomeExecuted, Command: result}
}

// Remaining returns the time left on a timed sanction.
func (o Outcome) Remaining(now time.Time) time.Duration {
	if o.Until == nil {
		return 0
	}
	return o.Until.Sub(now)
}
