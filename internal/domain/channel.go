package domain

// AuditChannelID is the read-only channel that surfaces the audit log.
const AuditChannelID = "mod-actions"

// DefaultChannels lists the channels a user may post into.
var DefaultChannels = []string{"general", "announcements", "gossip", "ai"}

// IsPostableChannel reports whether content may be submitted to the channel.
func IsPostableChannel(id string) bool {
	for _, ch := range DefaultChannels {
		if ch == id {
			return true
		}
	}
	return false
}
