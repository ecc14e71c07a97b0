package auction

import (
	"encoding/json"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
)

// StartCommand is the metadata of an auction round. Duration is in seconds;
// nil or zero means the round only ends by command.
type StartCommand struct {
	ItemName    string
	CurrentItem *int
	TotalItems  *int
	StartingBid *float64
	Duration    *float64
}

// State is a point-in-time view of the machine.
type State struct {
	Active     bool       `json:"active"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	TimerArmed bool       `json:"timerArmed"`
	ItemName   string     `json:"itemName,omitempty"`
}

// Machine is not safe for concurrent use; the owner serializes every call,
// including Expire calls triggered by onExpire.
type Machine struct {
	clock    clockwork.Clock
	onExpire func(generation uint64)

	active     bool
	itemName   string
	deadline   time.Time
	timer      clockwork.Timer
	generation uint64
}

// NewMachine returns an idle machine. onExpire is invoked from the clock's
// goroutine when an armed deadline fires; the owner must route it back into
// its own goroutine and call Expire with the given generation.
func NewMachine(clock clockwork.Clock, onExpire func(generation uint64)) *Machine {
	return &Machine{
		clock:    clock,
		onExpire: onExpire,
	}
}

// maxDurationSeconds is the first value whose nanosecond count no longer fits
// a time.Duration.
const maxDurationSeconds = float64(math.MaxInt64) / float64(time.Second)

// timerDuration converts a duration in seconds. Any positive value arms a
// timer, so sub-nanosecond values round up to one nanosecond.
func timerDuration(seconds float64) (time.Duration, error) {
	switch {
	case seconds < 0 || math.IsNaN(seconds):
		return 0, domain.ErrNegativeDuration
	case seconds >= maxDurationSeconds:
		return 0, domain.ErrDurationTooLong
	case seconds == 0:
		return 0, nil
	}
	return max(time.Duration(seconds*float64(time.Second)), time.Nanosecond), nil
}

// Start begins a round, replacing any pending deadline. A negative or
// unrepresentable duration is rejected without touching state.
func (m *Machine) Start(cmd StartCommand) (domain.AuctionStartMessage, error) {
	var d time.Duration
	if cmd.Duration != nil {
		var err error
		if d, err = timerDuration(*cmd.Duration); err != nil {
			return domain.AuctionStartMessage{}, err
		}
	}

	m.cancelTimer()
	m.active = true
	m.itemName = cmd.ItemName

	if d > 0 {
		gen := m.generation
		m.deadline = m.clock.Now().Add(d)
		m.timer = m.clock.AfterFunc(d, func() {
			m.onExpire(gen)
		})
	}

	return domain.AuctionStartMessage{
		Type:        domain.TypeAuctionStart,
		ItemName:    cmd.ItemName,
		CurrentItem: cmd.CurrentItem,
		TotalItems:  cmd.TotalItems,
		StartingBid: cmd.StartingBid,
		Duration:    cmd.Duration,
	}, nil
}

// Stop ends the round by command. It is valid in any state.
func (m *Machine) Stop(winner, winningBid json.RawMessage) domain.AuctionEndMessage {
	m.goIdle()
	return domain.AuctionEndMessage{
		Type:       domain.TypeAuctionEnd,
		Winner:     winner,
		WinningBid: winningBid,
	}
}

// Reset returns to idle. It is valid in any state.
func (m *Machine) Reset() domain.AuctionResetMessage {
	m.goIdle()
	return domain.AuctionResetMessage{Type: domain.TypeAuctionReset}
}

// Expire handles a fired deadline. Only the currently armed generation ends
// the round; anything else was superseded and is ignored.
func (m *Machine) Expire(generation uint64) (domain.AuctionEndMessage, bool) {
	if !m.active || m.timer == nil || generation != m.generation {
		return domain.AuctionEndMessage{}, false
	}
	m.timer = nil
	m.generation++
	m.active = false
	m.itemName = ""
	m.deadline = time.Time{}
	return domain.AuctionEndMessage{Type: domain.TypeAuctionEnd, AutoEnd: true}, true
}

func (m *Machine) Active() bool {
	return m.active
}

// Deadline returns the pending deadline, if any.
func (m *Machine) Deadline() (time.Time, bool) {
	if m.deadline.IsZero() {
		return time.Time{}, false
	}
	return m.deadline, true
}

func (m *Machine) TimerArmed() bool {
	return m.timer != nil
}

func (m *Machine) Snapshot() State {
	s := State{
		Active:     m.active,
		TimerArmed: m.timer != nil,
		ItemName:   m.itemName,
	}
	if dl, ok := m.Deadline(); ok {
		s.Deadline = &dl
	}
	return s
}

// Cancel disarms the deadline without changing the active flag. Safe to call
// repeatedly.
func (m *Machine) Cancel() {
	m.cancelTimer()
	m.deadline = time.Time{}
}

func (m *Machine) goIdle() {
	m.cancelTimer()
	m.active = false
	m.itemName = ""
	m.deadline = time.Time{}
}

// cancelTimer stops the armed timer and bumps the generation so a callback
// that already fired is treated as stale.
func (m *Machine) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.deadline = time.Time{}
	m.generation++
}
