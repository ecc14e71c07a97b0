package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/muhith-dev/tiktok-live-auction/internal/auction"
	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
)

// relayCmd is the command interface for the Relay actor.
type relayCmd interface{ isRelayCmd() }

type baseRelayCmd struct{}

func (baseRelayCmd) isRelayCmd() {}

type inboundCmd struct {
	baseRelayCmd
	ctx     context.Context
	connID  uuid.UUID
	payload []byte
}

type clientClosedCmd struct {
	baseRelayCmd
	connID uuid.UUID
}

type dialResultCmd struct {
	baseRelayCmd
	connID    uuid.UUID
	sessionID uuid.UUID
	session   domain.UpstreamSession
	err       error
}

type upstreamEventCmd struct {
	baseRelayCmd
	connID    uuid.UUID
	sessionID uuid.UUID
	event     domain.UpstreamEvent
}

type auctionExpiredCmd struct {
	baseRelayCmd
	generation uint64
}

type auctionStateCmd struct {
	baseRelayCmd
	replyChannel chan auction.State
}

type sessionCountCmd struct {
	baseRelayCmd
	replyChannel chan int
}

type stopCmd struct {
	baseRelayCmd
}
