package domain

// Session is the explicit per-request caller context handed to the pipeline.
type Session struct {
	ID         string
	Username   string
	Privileged bool
}

// Key returns the lowercase user key of the session owner.
func (s Session) Key() string {
	return UserKey(s.Username)
}
