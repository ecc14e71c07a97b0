package domain

import "errors"

var (
	ErrSessionClosed      = errors.New("upstream session closed")
	ErrUsernameRequired   = errors.New("username is required")
	ErrNegativeDuration   = errors.New("duration must not be negative")
	ErrDurationTooLong    = errors.New("duration is too long")
	ErrTooManyConnections = errors.New("too many connections")
)
