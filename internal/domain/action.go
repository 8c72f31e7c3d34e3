package domain

import "time"

// ActionKind distinguishes text messages from image uploads.
type ActionKind string

const (
	ActionText  ActionKind = "text"
	ActionImage ActionKind = "image"
)

// Action is one unit of submitted content. It lives only for a single submission.
type Action struct {
	Kind        ActionKind
	Text        string
	Image       []byte
	ContentType string
	// ImageRef is what an accepted image message points at (data URL or storage key).
	ImageRef    string
	ChannelID   string
	SubmittedAt time.Time
}
