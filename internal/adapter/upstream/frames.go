package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
)

// frame is the bridge envelope: {"event": "<name>", "data": {...}}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// flexString accepts both JSON strings and numbers; the connector emits
// message ids in either form depending on its version.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

type userData struct {
	UniqueID string `json:"uniqueId"`
	Nickname string `json:"nickname"`
}

type giftData struct {
	userData
	GiftID       int64      `json:"giftId"`
	GiftName     string     `json:"giftName"`
	DiamondCount int        `json:"diamondCount"`
	RepeatCount  int        `json:"repeatCount"`
	RepeatEnd    bool       `json:"repeatEnd"`
	GiftType     int        `json:"giftType"`
	MsgID        flexString `json:"msgId"`
}

type chatData struct {
	userData
	Comment string     `json:"comment"`
	MsgID   flexString `json:"msgId"`
}

type errorData struct {
	Message string `json:"message"`
}

var errIgnoredFrame = errors.New("ignored frame")

// decodeFrame maps one bridge frame to a domain event. Frames the relay has
// no use for return errIgnoredFrame.
func decodeFrame(raw []byte) (domain.UpstreamEvent, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Event {
	case "gift":
		var d giftData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, fmt.Errorf("decode gift: %w", err)
		}
		return domain.GiftReceivedEvent{Gift: domain.GiftEvent{
			SenderID:     d.UniqueID,
			Nickname:     d.Nickname,
			GiftID:       d.GiftID,
			GiftName:     d.GiftName,
			DiamondCount: d.DiamondCount,
			RepeatCount:  d.RepeatCount,
			RepeatEnd:    d.RepeatEnd,
			MsgID:        string(d.MsgID),
			GiftType:     domain.ParseGiftType(d.GiftType),
		}}, nil

	case "chat":
		var d chatData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		return domain.ChatEvent{SenderID: d.UniqueID, Nickname: d.Nickname, Comment: d.Comment, MsgID: string(d.MsgID)}, nil

	case "follow", "share":
		var d userData
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &d); err != nil {
				return nil, fmt.Errorf("decode %s: %w", f.Event, err)
			}
		}
		if f.Event == "follow" {
			return domain.FollowEvent{SenderID: d.UniqueID, Nickname: d.Nickname}, nil
		}
		return domain.ShareEvent{SenderID: d.UniqueID, Nickname: d.Nickname}, nil

	case "error":
		var d errorData
		if len(f.Data) > 0 {
			_ = json.Unmarshal(f.Data, &d)
		}
		if d.Message == "" {
			d.Message = "upstream error"
		}
		return domain.ErrorEvent{Err: errors.New(d.Message)}, nil

	case "disconnected", "streamEnd":
		return domain.DisconnectedEvent{}, nil

	default:
		return nil, errIgnoredFrame
	}
}
