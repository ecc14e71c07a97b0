package domain

import "github.com/google/uuid"

// Broadcaster fans messages out to downstream client connections.
// Both methods are fire-and-forget: closed or slow connections are skipped.
type Broadcaster interface {
	Broadcast(msg any)
	SendTo(connID uuid.UUID, msg any)
}
