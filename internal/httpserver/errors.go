package httpserver

const (
	ErrFileRequired       = "recipient file required"
	ErrBadForm            = "bad form"
	ErrUnparsableFile     = "recipient file unreadable or empty"
	ErrNotReady           = "session not ready"
	ErrNotFound           = "session not found"
	ErrDispatchInProgress = "dispatch already in progress"
)
