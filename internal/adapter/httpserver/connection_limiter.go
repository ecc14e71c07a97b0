package httpserver

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleExpiry      = 10 * time.Minute
)

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonPerIP LimitReason = "per_ip_limit"
	LimitReasonRate  LimitReason = "rate_limit"
)

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// connectionLimits caps concurrent /ws connections per IP and the rate at
// which one IP may open new ones. The instance-wide cap is enforced by the
// broadcaster.
type connectionLimits struct {
	clock clockwork.Clock

	mu        sync.Mutex
	perIP     map[string]int
	maxPerIP  int
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

func newConnectionLimits(clock clockwork.Clock, maxPerIP int, connectionsPerSecond float64, burst int) *connectionLimits {
	return &connectionLimits{
		clock:     clock,
		perIP:     make(map[string]int),
		maxPerIP:  maxPerIP,
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: clock.Now().Add(limiterCleanupInterval),
	}
}

// Acquire takes a slot for ip. On success the caller must Release it.
func (l *connectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(limiterCleanupInterval)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	if !entry.limiter.AllowN(now, 1) {
		return false, LimitReasonRate
	}

	if l.perIP[ip] >= l.maxPerIP {
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

func (l *connectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.perIP[ip]; count > 1 {
		l.perIP[ip] = count - 1
	} else {
		delete(l.perIP, ip)
	}
}

// Count returns the open connections held by ip.
func (l *connectionLimits) Count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

// cleanup drops rate limiters idle for longer than limiterIdleExpiry.
// Must be called with mu held.
func (l *connectionLimits) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdleExpiry)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}
