package domain

import (
	"context"
	"fmt"
)

// UpstreamEvent is one typed event emitted by an upstream live session.
type UpstreamEvent interface{ isUpstreamEvent() }

type baseUpstreamEvent struct{}

func (baseUpstreamEvent) isUpstreamEvent() {}

// ConnectedEvent is emitted once the upstream session is live.
type ConnectedEvent struct {
	baseUpstreamEvent
	RoomID string
}

// DisconnectedEvent is emitted when the upstream session ends, for any reason.
type DisconnectedEvent struct {
	baseUpstreamEvent
}

// ErrorEvent reports a non-fatal runtime error on an established session.
type ErrorEvent struct {
	baseUpstreamEvent
	Err error
}

// GiftReceivedEvent carries a raw gift notification.
type GiftReceivedEvent struct {
	baseUpstreamEvent
	Gift GiftEvent
}

// ChatEvent carries a chat comment.
type ChatEvent struct {
	baseUpstreamEvent
	SenderID string
	Nickname string
	Comment  string
	MsgID    string
}

// FollowEvent is emitted when a viewer follows the broadcaster.
type FollowEvent struct {
	baseUpstreamEvent
	SenderID string
	Nickname string
}

// ShareEvent is emitted when a viewer shares the live stream.
type ShareEvent struct {
	baseUpstreamEvent
	SenderID string
	Nickname string
}

// UpstreamSession is an established connection to one broadcaster's live stream.
// Events is closed after the final event has been delivered. Close is idempotent.
type UpstreamSession interface {
	Events() <-chan UpstreamEvent
	Close() error
}

// UpstreamDialer establishes upstream sessions. Dial may block for a long time;
// callers bound it with ctx.
type UpstreamDialer interface {
	Dial(ctx context.Context, username string) (UpstreamSession, error)
}

// ConnectError wraps a failure to establish an upstream session.
type ConnectError struct {
	Username string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to @%s: %v", e.Username, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
