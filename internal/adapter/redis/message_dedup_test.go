package redis

import (
	"context"
	"testing"
	"time"

	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
	"github.com/muhith-dev/tiktok-live-auction/internal/gift"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestMessageDeduper_FirstSightingThenDuplicate(t *testing.T) {
	rdb := setupTestClient(t)
	ctx := context.Background()
	now := time.Now()

	d := NewMessageDeduper(rdb, "streamer", 10*time.Second, nil)

	assert.True(t, d.MarkSeen(ctx, "m1", 3, now))
	assert.False(t, d.MarkSeen(ctx, "m1", 3, now.Add(time.Second)))
	assert.True(t, d.MarkSeen(ctx, "m2", 1, now))
	assert.Equal(t, 2, d.Len())
}

// Two upstream sessions on the same live stream (two control panels, two
// relay instances, or a reconnect) see the same gift ids.
func TestMessageDeduper_SessionsOfOneBroadcasterShareClaims(t *testing.T) {
	rdb := setupTestClient(t)
	ctx := context.Background()

	first := NewMessageDeduper(rdb, "streamer", 10*time.Second, nil)
	second := NewMessageDeduper(rdb, "@Streamer", 10*time.Second, nil)

	assert.True(t, first.MarkSeen(ctx, "m1", 1, time.Now()))
	assert.False(t, second.MarkSeen(ctx, "m1", 1, time.Now()), "claimed by the first session")
	assert.True(t, second.MarkSeen(ctx, "m2", 2, time.Now()))
	assert.False(t, first.MarkSeen(ctx, "m2", 2, time.Now()), "claimed by the second session")
}

func TestMessageDeduper_ReconcilersOfOneBroadcasterCountOnce(t *testing.T) {
	rdb := setupTestClient(t)
	ctx := context.Background()
	now := time.Now()

	a := gift.NewReconciler(NewMessageDeduper(rdb, "streamer", 10*time.Second, nil), gift.DefaultStreakTTL)
	b := gift.NewReconciler(NewMessageDeduper(rdb, "streamer", 10*time.Second, nil), gift.DefaultStreakTTL)

	raw := domain.GiftEvent{SenderID: "alice", GiftID: 5655, RepeatCount: 3, RepeatEnd: true, MsgID: "m1"}
	delta, outcome := a.Reconcile(ctx, raw, now)
	assert.True(t, outcome.Emitted())
	assert.Equal(t, 3, delta.Count)

	_, outcome = b.Reconcile(ctx, raw, now)
	assert.Equal(t, gift.OutcomeDuplicateMessage, outcome)
}

func TestMessageDeduper_BroadcastersAreIsolated(t *testing.T) {
	rdb := setupTestClient(t)
	ctx := context.Background()

	a := NewMessageDeduper(rdb, "alice_live", 10*time.Second, nil)
	b := NewMessageDeduper(rdb, "bob_live", 10*time.Second, nil)

	assert.True(t, a.MarkSeen(ctx, "m1", 1, time.Now()))
	assert.True(t, b.MarkSeen(ctx, "m1", 1, time.Now()))
}

func TestMessageDeduper_KeysCarryTTL(t *testing.T) {
	rdb := setupTestClient(t)
	ctx := context.Background()

	d := NewMessageDeduper(rdb, "@Streamer", 10*time.Second, nil)
	require.True(t, d.MarkSeen(ctx, "m1", 4, time.Now()))
	assert.Equal(t, "auction:msg:streamer:m1", d.key("m1"))

	ttl, err := rdb.PTTL(ctx, d.key("m1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 10*time.Second)

	val, err := rdb.Get(ctx, d.key("m1")).Result()
	require.NoError(t, err)
	assert.Equal(t, "4", val)
}

func TestMessageDeduper_FallsBackToLocalOnError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRedisMetrics(reg)

	ctx := context.Background()
	now := time.Now()
	d := NewMessageDeduper(unreachableClient(t), "streamer", 10*time.Second, m)

	assert.True(t, d.MarkSeen(ctx, "m1", 1, now))
	assert.False(t, d.MarkSeen(ctx, "m1", 1, now.Add(time.Second)), "local mirror still dedups")
	assert.True(t, d.MarkSeen(ctx, "m2", 1, now))
	// A local duplicate never reaches Redis.
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DedupFallbacks))
}

func TestMessageDeduper_SweepTrimsLocalMirror(t *testing.T) {
	now := time.Now()
	d := NewMessageDeduper(unreachableClient(t), "streamer", 10*time.Second, nil)
	d.MarkSeen(context.Background(), "m1", 1, now)

	assert.Equal(t, 0, d.Sweep(now.Add(5*time.Second)))
	assert.Equal(t, 1, d.Sweep(now.Add(10*time.Second)))
	assert.Equal(t, 0, d.Len())
}
