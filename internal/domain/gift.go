package domain

// GiftType discriminates gifts that can form a streak from one-off gifts.
type GiftType int

const (
	GiftTypeSingle GiftType = iota
	GiftTypeStreak
)

// ParseGiftType maps the platform's numeric gift type to a GiftType.
// The platform marks streak-capable gifts with type 1.
func ParseGiftType(raw int) GiftType {
	if raw == 1 {
		return GiftTypeStreak
	}
	return GiftTypeSingle
}

func (t GiftType) String() string {
	switch t {
	case GiftTypeStreak:
		return "streak"
	default:
		return "single"
	}
}

// GiftEvent is a raw gift notification as delivered by the upstream session.
// RepeatCount is cumulative for the current streak; MsgID is empty when the
// upstream did not supply one.
type GiftEvent struct {
	SenderID     string
	Nickname     string
	GiftID       int64
	GiftName     string
	DiamondCount int
	RepeatCount  int
	RepeatEnd    bool
	MsgID        string
	GiftType     GiftType
}

// GiftDelta is the reconciled increment attributable to one raw gift event.
// Count is always >= 1.
type GiftDelta struct {
	Gift  GiftEvent
	Count int
}
