package gift

import (
	"context"
	"time"

	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
)

// DefaultStreakTTL is how long a streak stays live without a new observation.
const DefaultStreakTTL = 5 * time.Second

// Outcome describes what Reconcile did with a raw event.
type Outcome int

const (
	OutcomeNewStreak        Outcome = iota // no live streak, full count emitted
	OutcomeAdvanced                        // live streak advanced, difference emitted
	OutcomeDuplicateMessage                // message id already processed
	OutcomeTerminalRepeat                  // final count repeated, streak cleared
	OutcomeOutOfOrder                      // count below tracked total
	OutcomeInvalid                         // non-positive count with no live streak
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNewStreak:
		return "new_streak"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeDuplicateMessage:
		return "duplicate_message"
	case OutcomeTerminalRepeat:
		return "terminal_repeat"
	case OutcomeOutOfOrder:
		return "out_of_order"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Emitted reports whether the outcome carries a delta.
func (o Outcome) Emitted() bool {
	return o == OutcomeNewStreak || o == OutcomeAdvanced
}

type streakKey struct {
	senderID string
	giftID   int64
}

type streakState struct {
	totalCount         int
	lastUpdate         time.Time
	alreadyBroadcasted bool
}

// Reconciler holds the streak table and message dedup set of one upstream session.
type Reconciler struct {
	streakTTL time.Duration
	dedup     MessageDeduper
	streaks   map[streakKey]*streakState
}

// NewReconciler returns a reconciler with an empty streak table. dedup is
// owned by the reconciler from here on; streakTTL bounds how long a streak
// stays live between observations.
func NewReconciler(dedup MessageDeduper, streakTTL time.Duration) *Reconciler {
	return &Reconciler{
		streakTTL: streakTTL,
		dedup:     dedup,
		streaks:   make(map[streakKey]*streakState),
	}
}

// Reconcile decides whether raw produces a delta. The returned delta is only
// meaningful when outcome.Emitted() is true.
func (r *Reconciler) Reconcile(ctx context.Context, raw domain.GiftEvent, now time.Time) (domain.GiftDelta, Outcome) {
	// Recorded before anything else so a concurrent redelivery of the same
	// message is rejected no matter what the streak logic decides.
	if raw.MsgID != "" && !r.dedup.MarkSeen(ctx, raw.MsgID, raw.RepeatCount, now) {
		return domain.GiftDelta{}, OutcomeDuplicateMessage
	}

	key := streakKey{senderID: raw.SenderID, giftID: raw.GiftID}
	count, outcome := r.apply(key, raw.RepeatCount, now)

	if raw.RepeatEnd {
		delete(r.streaks, key)
	}

	if !outcome.Emitted() {
		return domain.GiftDelta{}, outcome
	}
	return domain.GiftDelta{Gift: raw, Count: count}, outcome
}

func (r *Reconciler) apply(key streakKey, repeatCount int, now time.Time) (int, Outcome) {
	existing, live := r.liveStreak(key, now)
	if !live {
		if repeatCount <= 0 {
			return 0, OutcomeInvalid
		}
		r.streaks[key] = &streakState{
			totalCount:         repeatCount,
			lastUpdate:         now,
			alreadyBroadcasted: true,
		}
		return repeatCount, OutcomeNewStreak
	}

	switch {
	case repeatCount > existing.totalCount:
		delta := repeatCount - existing.totalCount
		existing.totalCount = repeatCount
		existing.lastUpdate = now
		existing.alreadyBroadcasted = true
		return delta, OutcomeAdvanced
	case repeatCount == existing.totalCount:
		// A streak that was never broadcast cannot reach here through
		// apply; such an entry is dropped silently and left in place.
		if existing.alreadyBroadcasted {
			delete(r.streaks, key)
		}
		return 0, OutcomeTerminalRepeat
	default:
		return 0, OutcomeOutOfOrder
	}
}

func (r *Reconciler) liveStreak(key streakKey, now time.Time) (*streakState, bool) {
	existing, ok := r.streaks[key]
	if !ok {
		return nil, false
	}
	if now.Sub(existing.lastUpdate) >= r.streakTTL {
		return nil, false
	}
	return existing, true
}

// MarkMessage records a non-gift message id (chat) in the same dedup set and
// reports whether it is new.
func (r *Reconciler) MarkMessage(ctx context.Context, msgID string, now time.Time) bool {
	return r.dedup.MarkSeen(ctx, msgID, 0, now)
}

// Sweep removes expired streaks and dedup entries.
func (r *Reconciler) Sweep(now time.Time) (streaks int, messages int) {
	for key, state := range r.streaks {
		if now.Sub(state.lastUpdate) >= r.streakTTL {
			delete(r.streaks, key)
			streaks++
		}
	}
	messages = r.dedup.Sweep(now)
	return streaks, messages
}

// ActiveStreaks returns the number of tracked streak entries.
func (r *Reconciler) ActiveStreaks() int {
	return len(r.streaks)
}
