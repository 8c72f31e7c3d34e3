package domain

import "time"

// SystemSender is the sender name used for messages the service posts itself.
const SystemSender = "SYSTEM"

// Message is an accepted chat message.
type Message struct {
	ID        string
	ChannelID string
	Sender    string
	Text      string
	ImageURL  string
	System    bool
	CreatedAt time.Time
}
