package domain

import "encoding/json"

// Message types shared by inbound commands and outbound broadcasts.
const (
	TypeConnect      = "connect"
	TypeDisconnect   = "disconnect"
	TypeAuctionStart = "auction_start"
	TypeAuctionStop  = "auction_stop"
	TypeAuctionEnd   = "auction_end"
	TypeAuctionReset = "auction_reset"

	TypeConnected    = "connected"
	TypeDisconnected = "disconnected"
	TypeError        = "error"
	TypeGift         = "gift"
	TypeChat         = "chat"
)

// Command is an inbound control message from a downstream client.
// Fields not used by a given Type are ignored.
type Command struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`

	ItemName    string   `json:"itemName,omitempty"`
	CurrentItem *int     `json:"currentItem,omitempty"`
	TotalItems  *int     `json:"totalItems,omitempty"`
	StartingBid *float64 `json:"startingBid,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`

	Winner     json.RawMessage `json:"winner,omitempty"`
	WinningBid json.RawMessage `json:"winningBid,omitempty"`
}

// ConnectedMessage announces that an upstream session went live.
type ConnectedMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// DisconnectedMessage announces that the upstream session ended.
type DisconnectedMessage struct {
	Type string `json:"type"`
}

// ErrorMessage is sent either to a single connection (command failures) or
// to everyone (upstream runtime errors).
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GiftMessage is a reconciled gift. RepeatCount is the delta, never the
// upstream's cumulative count.
type GiftMessage struct {
	Type          string `json:"type"`
	Username      string `json:"username"`
	Nickname      string `json:"nickname"`
	GiftName      string `json:"giftName"`
	GiftID        int64  `json:"giftId"`
	DiamondCount  int    `json:"diamondCount"`
	RepeatCount   int    `json:"repeatCount"`
	MsgID         string `json:"msgId,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	AuctionActive bool   `json:"auctionActive"`
}

// ChatMessage relays a deduplicated chat comment.
type ChatMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Message  string `json:"message"`
	MsgID    string `json:"msgId"`
}

// AuctionStartMessage carries the item metadata of a started auction round.
type AuctionStartMessage struct {
	Type        string   `json:"type"`
	ItemName    string   `json:"itemName"`
	CurrentItem *int     `json:"currentItem,omitempty"`
	TotalItems  *int     `json:"totalItems,omitempty"`
	StartingBid *float64 `json:"startingBid,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
}

// AuctionEndMessage ends a round, either by command (winner metadata) or by
// deadline (AutoEnd).
type AuctionEndMessage struct {
	Type       string          `json:"type"`
	Winner     json.RawMessage `json:"winner,omitempty"`
	WinningBid json.RawMessage `json:"winningBid,omitempty"`
	AutoEnd    bool            `json:"autoEnd,omitempty"`
}

// AuctionResetMessage returns every client to the idle state.
type AuctionResetMessage struct {
	Type string `json:"type"`
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}
