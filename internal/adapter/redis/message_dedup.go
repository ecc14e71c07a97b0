package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	"github.com/muhith-dev/tiktok-live-auction/internal/gift"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "auction:msg:"
	opTimeout = 100 * time.Millisecond
)

var _ gift.MessageDeduper = (*MessageDeduper)(nil)

// MessageDeduper claims message ids in Redis with SET NX PX, scoped to the
// broadcaster rather than to one upstream session. Every session attached to
// the same live stream, in this process, in another relay instance or in the
// process before a restart, shares the claim set, so a gift redelivered to a
// second session is reconciled only once.
//
// A local mirror answers first and alone whenever Redis errors: an outage can
// cost cross-session dedup, never a double count within the session.
type MessageDeduper struct {
	rdb         *goredis.Client
	broadcaster string
	ttl         time.Duration
	local       *gift.MemoryDeduper
	metrics     *metrics.RedisMetrics
}

func NewMessageDeduper(rdb *goredis.Client, username string, ttl time.Duration, m *metrics.RedisMetrics) *MessageDeduper {
	return &MessageDeduper{
		rdb:         rdb,
		broadcaster: normalizeUsername(username),
		ttl:         ttl,
		local:       gift.NewMemoryDeduper(ttl),
		metrics:     m,
	}
}

// normalizeUsername maps "@Name" and "name" to the same namespace.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

func (d *MessageDeduper) MarkSeen(ctx context.Context, msgID string, repeatCount int, now time.Time) bool {
	if !d.local.MarkSeen(ctx, msgID, repeatCount, now) {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	args := goredis.SetArgs{TTL: d.ttl, Mode: "NX"}
	err := d.rdb.SetArgs(ctx, d.key(msgID), strconv.Itoa(repeatCount), args).Err()
	switch {
	case err == nil:
		return true
	case errors.Is(err, goredis.Nil):
		// Another session of the same broadcaster claimed it first.
		return false
	default:
		slog.WarnContext(ctx, "Redis dedup unavailable, using local state",
			"broadcaster", d.broadcaster, "error", err)
		if d.metrics != nil {
			d.metrics.DedupFallbacks.Inc()
		}
		return true
	}
}

// Sweep only trims the local mirror; Redis expires keys on its own.
func (d *MessageDeduper) Sweep(now time.Time) int {
	return d.local.Sweep(now)
}

func (d *MessageDeduper) Len() int {
	return d.local.Len()
}

func (d *MessageDeduper) key(msgID string) string {
	return keyPrefix + d.broadcaster + ":" + msgID
}
