package gift

import (
	"context"
	"time"
)

// DefaultMessageTTL is how long a message id is remembered.
const DefaultMessageTTL = 10 * time.Second

// MessageDeduper records upstream message ids so an exact redelivery is never
// processed twice.
type MessageDeduper interface {
	// MarkSeen records msgID and reports whether this is its first sighting.
	MarkSeen(ctx context.Context, msgID string, repeatCount int, now time.Time) bool
	// Sweep drops entries older than the TTL and returns how many were removed.
	Sweep(now time.Time) int
	// Len returns the number of tracked ids (including not-yet-swept expired ones).
	Len() int
}

type seenEntry struct {
	seenAt      time.Time
	repeatCount int
}

// MemoryDeduper is an in-process MessageDeduper. Not safe for concurrent use.
type MemoryDeduper struct {
	ttl     time.Duration
	entries map[string]seenEntry
}

// NewMemoryDeduper returns an empty set that remembers each id for ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{
		ttl:     ttl,
		entries: make(map[string]seenEntry),
	}
}

func (d *MemoryDeduper) MarkSeen(_ context.Context, msgID string, repeatCount int, now time.Time) bool {
	if entry, ok := d.entries[msgID]; ok && now.Sub(entry.seenAt) < d.ttl {
		return false
	}
	d.entries[msgID] = seenEntry{seenAt: now, repeatCount: repeatCount}
	return true
}

func (d *MemoryDeduper) Sweep(now time.Time) int {
	evicted := 0
	for id, entry := range d.entries {
		if now.Sub(entry.seenAt) >= d.ttl {
			delete(d.entries, id)
			evicted++
		}
	}
	return evicted
}

func (d *MemoryDeduper) Len() int {
	return len(d.entries)
}
