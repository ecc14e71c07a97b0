package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
	"github.com/muhith-dev/tiktok-live-auction/internal/gift"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// --- fakes ---

type fakeSession struct {
	events    chan domain.UpstreamEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan domain.UpstreamEvent),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) Events() <-chan domain.UpstreamEvent { return s.events }

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// emit hands ev to the relay's pump. The channel is unbuffered, so once a
// following emit returns, ev has been queued on the relay.
func (s *fakeSession) emit(t *testing.T, ev domain.UpstreamEvent) {
	t.Helper()
	select {
	case s.events <- ev:
	case <-time.After(waitTimeout):
		t.Fatalf("relay never consumed %T", ev)
	}
}

// emitAll emits evs followed by a no-op event so all of evs are queued.
func (s *fakeSession) emitAll(t *testing.T, evs ...domain.UpstreamEvent) {
	t.Helper()
	for _, ev := range evs {
		s.emit(t, ev)
	}
	s.emit(t, domain.FollowEvent{SenderID: "flush"})
}

func (s *fakeSession) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(waitTimeout):
		t.Fatal("session was not closed")
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	calls []string
	dial  func(ctx context.Context, username string) (domain.UpstreamSession, error)
}

func (d *fakeDialer) Dial(ctx context.Context, username string) (domain.UpstreamSession, error) {
	d.mu.Lock()
	d.calls = append(d.calls, username)
	d.mu.Unlock()
	return d.dial(ctx, username)
}

// sessionsDialer hands out the given sessions in order.
func sessionsDialer(sessions ...*fakeSession) *fakeDialer {
	var mu sync.Mutex
	return &fakeDialer{dial: func(ctx context.Context, username string) (domain.UpstreamSession, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(sessions) == 0 {
			return nil, &domain.ConnectError{Username: username, Err: errors.New("no more sessions")}
		}
		s := sessions[0]
		sessions = sessions[1:]
		return s, nil
	}}
}

type directMessage struct {
	connID uuid.UUID
	msg    any
}

type fakeBroadcaster struct {
	broadcasts chan any
	direct     chan directMessage
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		broadcasts: make(chan any, 64),
		direct:     make(chan directMessage, 64),
	}
}

func (b *fakeBroadcaster) Broadcast(msg any) { b.broadcasts <- msg }

func (b *fakeBroadcaster) SendTo(connID uuid.UUID, msg any) {
	b.direct <- directMessage{connID: connID, msg: msg}
}

func (b *fakeBroadcaster) next(t *testing.T) any {
	t.Helper()
	select {
	case msg := <-b.broadcasts:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("no broadcast")
		return nil
	}
}

func (b *fakeBroadcaster) nextDirect(t *testing.T) directMessage {
	t.Helper()
	select {
	case msg := <-b.direct:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("no direct message")
		return directMessage{}
	}
}

// --- harness ---

type relayHarness struct {
	relay       *Relay
	clock       *clockwork.FakeClock
	broadcaster *fakeBroadcaster
	metrics     Metrics
}

func newHarness(t *testing.T, dialer domain.UpstreamDialer, opts Options) *relayHarness {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := Metrics{
		Gift:     metrics.NewGiftMetrics(reg),
		Auction:  metrics.NewAuctionMetrics(reg),
		Upstream: metrics.NewUpstreamMetrics(reg),
		Commands: metrics.NewWebSocketMetrics(reg),
	}
	clock := clockwork.NewFakeClock()
	b := newFakeBroadcaster()

	relay := NewRelay(clock, dialer, b, opts, m)
	t.Cleanup(relay.Stop)

	return &relayHarness{relay: relay, clock: clock, broadcaster: b, metrics: m}
}

func (h *relayHarness) send(connID uuid.UUID, msg string) {
	h.relay.HandleMessage(context.Background(), connID, []byte(msg))
}

// connect runs a connect command and waits for the upstream's connected event
// to be broadcast.
func (h *relayHarness) connect(t *testing.T, connID uuid.UUID, username string, sess *fakeSession) {
	t.Helper()
	h.send(connID, fmt.Sprintf(`{"type":"connect","username":%q}`, username))
	sess.emit(t, domain.ConnectedEvent{})

	msg := h.broadcaster.next(t)
	require.Equal(t, domain.ConnectedMessage{
		Type:     domain.TypeConnected,
		Username: username,
		Message:  "Connected to TikTok Live",
	}, msg)
}

// expectQuiet proves nothing was broadcast: a reset issued now must be the
// very next broadcast.
func (h *relayHarness) expectQuiet(t *testing.T, connID uuid.UUID) {
	t.Helper()
	h.send(connID, `{"type":"auction_reset"}`)
	assert.Equal(t, domain.AuctionResetMessage{Type: domain.TypeAuctionReset}, h.broadcaster.next(t))
}

func streakGift(count int, end bool, msgID string) domain.GiftReceivedEvent {
	return domain.GiftReceivedEvent{Gift: domain.GiftEvent{
		SenderID:     "alice",
		Nickname:     "Alice",
		GiftID:       5655,
		GiftName:     "Rose",
		DiamondCount: 1,
		RepeatCount:  count,
		RepeatEnd:    end,
		MsgID:        msgID,
		GiftType:     domain.GiftTypeStreak,
	}}
}

// --- tests ---

func TestRelay_GiftStreakBroadcastsDeltas(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	sess.emitAll(t,
		streakGift(1, false, "m1"),
		streakGift(3, false, "m2"),
		streakGift(5, true, "m3"),
		streakGift(5, true, "m3"),
	)

	var counts []int
	for i := 0; i < 3; i++ {
		msg, ok := h.broadcaster.next(t).(domain.GiftMessage)
		require.True(t, ok)
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, "Rose", msg.GiftName)
		assert.False(t, msg.AuctionActive)
		assert.Equal(t, h.clock.Now().UnixMilli(), msg.Timestamp)
		counts = append(counts, msg.RepeatCount)
	}
	assert.Equal(t, []int{1, 2, 2}, counts)
	h.expectQuiet(t, conn)

	assert.Equal(t, float64(5), testutil.ToFloat64(h.metrics.Gift.DeltaUnits))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Gift.EventsProcessed.WithLabelValues("duplicate_message")))
}

func TestRelay_GiftCarriesAuctionActive(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	h.send(conn, `{"type":"auction_start","itemName":"Vase"}`)
	_ = h.broadcaster.next(t)

	sess.emitAll(t, streakGift(1, true, "m1"))

	msg, ok := h.broadcaster.next(t).(domain.GiftMessage)
	require.True(t, ok)
	assert.True(t, msg.AuctionActive)
}

func TestRelay_DeduperScopedByBroadcaster(t *testing.T) {
	sessA, sessB := newFakeSession(), newFakeSession()

	shared := map[string]*gift.MemoryDeduper{}
	var usernames []string
	factory := func(_ uuid.UUID, username string) gift.MessageDeduper {
		usernames = append(usernames, username)
		d, ok := shared[username]
		if !ok {
			d = gift.NewMemoryDeduper(gift.DefaultMessageTTL)
			shared[username] = d
		}
		return d
	}

	h := newHarness(t, sessionsDialer(sessA, sessB), Options{NewDeduper: factory})
	panelA, panelB := uuid.New(), uuid.New()

	h.connect(t, panelA, "streamer", sessA)
	h.connect(t, panelB, "streamer", sessB)
	assert.Equal(t, []string{"streamer", "streamer"}, usernames)

	sessA.emitAll(t, streakGift(2, true, "m1"))
	msg, ok := h.broadcaster.next(t).(domain.GiftMessage)
	require.True(t, ok)
	assert.Equal(t, 2, msg.RepeatCount)

	// The second session of the same stream receives the same gift.
	sessB.emitAll(t, streakGift(2, true, "m1"))
	h.expectQuiet(t, panelA)
}

func TestRelay_ConnectFailureRepliesToOriginOnly(t *testing.T) {
	dialer := &fakeDialer{dial: func(ctx context.Context, username string) (domain.UpstreamSession, error) {
		return nil, &domain.ConnectError{Username: username, Err: errors.New("user is offline")}
	}}
	h := newHarness(t, dialer, Options{})
	origin := uuid.New()

	h.send(origin, `{"type":"connect","username":"ghost"}`)

	reply := h.broadcaster.nextDirect(t)
	assert.Equal(t, origin, reply.connID)
	assert.Equal(t, domain.NewErrorMessage("Failed to connect: user is offline"), reply.msg)

	h.expectQuiet(t, origin)
	assert.Equal(t, 0, h.relay.SessionCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Upstream.ConnectAttempts.WithLabelValues("failure")))
}

func TestRelay_ConnectRequiresUsername(t *testing.T) {
	dialer := &fakeDialer{dial: func(ctx context.Context, username string) (domain.UpstreamSession, error) {
		t.Error("dial must not be attempted")
		return nil, errors.New("unexpected")
	}}
	h := newHarness(t, dialer, Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"connect","username":"  "}`)

	reply := h.broadcaster.nextDirect(t)
	assert.Equal(t, domain.NewErrorMessage("Failed to connect: username is required"), reply.msg)
}

func TestRelay_MalformedJSONRepliesError(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":`)

	reply := h.broadcaster.nextDirect(t)
	assert.Equal(t, conn, reply.connID)
	assert.Equal(t, domain.NewErrorMessage("Error processing data"), reply.msg)
}

func TestRelay_UnknownTypeIgnored(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"dance"}`)
	h.expectQuiet(t, conn)

	select {
	case msg := <-h.broadcaster.direct:
		t.Fatalf("unexpected reply %v", msg)
	default:
	}
}

func TestRelay_ReplacedSessionEventsIgnored(t *testing.T) {
	first, second := newFakeSession(), newFakeSession()
	h := newHarness(t, sessionsDialer(first, second), Options{})
	conn := uuid.New()

	h.connect(t, conn, "one", first)
	h.connect(t, conn, "two", second)
	first.waitClosed(t)

	// first's pump may still be draining; anything it delivers is stale.
	select {
	case first.events <- streakGift(1, true, "stale"):
	case <-time.After(100 * time.Millisecond):
	}
	second.emitAll(t, streakGift(2, true, "fresh"))

	msg, ok := h.broadcaster.next(t).(domain.GiftMessage)
	require.True(t, ok)
	assert.Equal(t, "fresh", msg.MsgID)
	assert.Equal(t, 2, msg.RepeatCount)
	h.expectQuiet(t, conn)
	assert.Equal(t, 1, h.relay.SessionCount())
}

func TestRelay_DisconnectWhileDialingCancelsDial(t *testing.T) {
	cancelled := make(chan struct{})
	dialer := &fakeDialer{dial: func(ctx context.Context, username string) (domain.UpstreamSession, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}}
	h := newHarness(t, dialer, Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"connect","username":"slow"}`)
	h.send(conn, `{"type":"disconnect"}`)

	assert.Equal(t, domain.DisconnectedMessage{Type: domain.TypeDisconnected}, h.broadcaster.next(t))
	select {
	case <-cancelled:
	case <-time.After(waitTimeout):
		t.Fatal("dial was not cancelled")
	}

	h.expectQuiet(t, conn)
	select {
	case msg := <-h.broadcaster.direct:
		t.Fatalf("superseded dial must not reply, got %v", msg)
	default:
	}
}

func TestRelay_DisconnectCommand(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	h.send(conn, `{"type":"disconnect"}`)

	assert.Equal(t, domain.DisconnectedMessage{Type: domain.TypeDisconnected}, h.broadcaster.next(t))
	sess.waitClosed(t)
	assert.Equal(t, 0, h.relay.SessionCount())
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.Upstream.ActiveSessions))
}

func TestRelay_DisconnectWithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"disconnect"}`)
	h.expectQuiet(t, conn)
}

func TestRelay_UpstreamErrorBroadcastKeepsSession(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	sess.emitAll(t, domain.ErrorEvent{Err: errors.New("rate limited by platform")})

	assert.Equal(t, domain.NewErrorMessage("rate limited by platform"), h.broadcaster.next(t))
	assert.Equal(t, 1, h.relay.SessionCount())
}

func TestRelay_UpstreamErrorWithoutCause(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	sess.emitAll(t, domain.ErrorEvent{})

	assert.Equal(t, domain.NewErrorMessage("upstream error"), h.broadcaster.next(t))
	assert.Equal(t, 1, h.relay.SessionCount())
}

func TestRelay_UpstreamDisconnectDetachesSession(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	sess.emit(t, domain.DisconnectedEvent{})

	assert.Equal(t, domain.DisconnectedMessage{Type: domain.TypeDisconnected}, h.broadcaster.next(t))
	assert.Equal(t, 0, h.relay.SessionCount())
}

func TestRelay_ClientClosedTearsDownSession(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	h.relay.ClientClosed(conn)

	sess.waitClosed(t)
	assert.Equal(t, domain.DisconnectedMessage{Type: domain.TypeDisconnected}, h.broadcaster.next(t))
	assert.Equal(t, 0, h.relay.SessionCount())
}

func TestRelay_SessionsArePerConnection(t *testing.T) {
	a, b := newFakeSession(), newFakeSession()
	h := newHarness(t, sessionsDialer(a, b), Options{})
	connA, connB := uuid.New(), uuid.New()

	h.connect(t, connA, "alpha", a)
	h.connect(t, connB, "beta", b)
	assert.Equal(t, 2, h.relay.SessionCount())

	h.relay.ClientClosed(connA)
	a.waitClosed(t)
	_ = h.broadcaster.next(t)

	select {
	case <-b.closed:
		t.Fatal("other connection's session must survive")
	default:
	}
	assert.Equal(t, 1, h.relay.SessionCount())
}

func TestRelay_ChatDeduplicatedByMsgID(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	chat := domain.ChatEvent{SenderID: "bob", Nickname: "Bob", Comment: "100!", MsgID: "c1"}
	sess.emitAll(t, chat, chat)

	assert.Equal(t, domain.ChatMessage{
		Type:     domain.TypeChat,
		Username: "bob",
		Nickname: "Bob",
		Message:  "100!",
		MsgID:    "c1",
	}, h.broadcaster.next(t))
	h.expectQuiet(t, conn)
}

func TestRelay_ChatWithoutMsgIDUsesDerivedKey(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	sess.emitAll(t, domain.ChatEvent{SenderID: "bob", Comment: "hi"})

	msg, ok := h.broadcaster.next(t).(domain.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("bob_hi_%d", h.clock.Now().UnixMilli()), msg.MsgID)
}

func TestRelay_AuctionLifecycle(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"auction_start","itemName":"Vase","currentItem":1,"totalItems":3,"startingBid":10,"duration":30}`)
	start, ok := h.broadcaster.next(t).(domain.AuctionStartMessage)
	require.True(t, ok)
	assert.Equal(t, "Vase", start.ItemName)
	require.NotNil(t, start.Duration)
	assert.Equal(t, 30.0, *start.Duration)

	state, err := h.relay.AuctionState()
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.True(t, state.TimerArmed)

	h.send(conn, `{"type":"auction_stop","winner":{"name":"alice"},"winningBid":42}`)
	end, ok := h.broadcaster.next(t).(domain.AuctionEndMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"alice"}`, string(end.Winner))
	assert.Equal(t, json.RawMessage(`42`), end.WinningBid)
	assert.False(t, end.AutoEnd)

	state, err = h.relay.AuctionState()
	require.NoError(t, err)
	assert.False(t, state.Active)
	assert.False(t, state.TimerArmed)
}

func TestRelay_AuctionEndAliasStops(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"auction_start","itemName":"Vase"}`)
	_ = h.broadcaster.next(t)
	h.send(conn, `{"type":"auction_end"}`)

	assert.Equal(t, domain.AuctionEndMessage{Type: domain.TypeAuctionEnd}, h.broadcaster.next(t))
}

func TestRelay_AuctionAutoEnds(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"auction_start","itemName":"Vase","duration":30}`)
	_ = h.broadcaster.next(t)

	h.clock.Advance(30 * time.Second)

	assert.Equal(t, domain.AuctionEndMessage{Type: domain.TypeAuctionEnd, AutoEnd: true}, h.broadcaster.next(t))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Auction.Transitions.WithLabelValues("auto_end")))

	// A later stop is still valid and broadcasts again.
	h.send(conn, `{"type":"auction_stop"}`)
	assert.Equal(t, domain.AuctionEndMessage{Type: domain.TypeAuctionEnd}, h.broadcaster.next(t))
}

func TestRelay_AuctionRestartReplacesTimer(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"auction_start","itemName":"A","duration":30}`)
	_ = h.broadcaster.next(t)
	h.clock.Advance(20 * time.Second)

	h.send(conn, `{"type":"auction_start","itemName":"B","duration":30}`)
	_ = h.broadcaster.next(t)

	h.clock.Advance(15 * time.Second)
	h.expectQuiet(t, conn)
}

func TestRelay_NegativeDurationRejected(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"auction_start","itemName":"Vase","duration":-5}`)

	reply := h.broadcaster.nextDirect(t)
	assert.Equal(t, domain.NewErrorMessage("duration must not be negative"), reply.msg)

	state, err := h.relay.AuctionState()
	require.NoError(t, err)
	assert.False(t, state.Active)
}

func TestRelay_UnrepresentableDurationRejected(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{})
	conn := uuid.New()

	h.send(conn, `{"type":"auction_start","itemName":"Vase","duration":1e10}`)

	reply := h.broadcaster.nextDirect(t)
	assert.Equal(t, domain.NewErrorMessage("duration is too long"), reply.msg)

	state, err := h.relay.AuctionState()
	require.NoError(t, err)
	assert.False(t, state.Active)
}

func TestRelay_CommandRateLimit(t *testing.T) {
	h := newHarness(t, sessionsDialer(), Options{CommandRate: 1, CommandBurst: 2})
	conn, other := uuid.New(), uuid.New()

	h.send(conn, `{"type":"auction_reset"}`)
	h.send(conn, `{"type":"auction_reset"}`)
	h.send(conn, `{"type":"auction_reset"}`)

	reply := h.broadcaster.nextDirect(t)
	assert.Equal(t, conn, reply.connID)
	assert.Equal(t, domain.NewErrorMessage("rate limit exceeded"), reply.msg)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Commands.CommandsRejected))

	// Budgets are per connection.
	h.send(other, `{"type":"auction_reset"}`)
	for i := 0; i < 3; i++ {
		_ = h.broadcaster.next(t)
	}

	h.clock.Advance(time.Second)
	h.send(conn, `{"type":"auction_reset"}`)
	_ = h.broadcaster.next(t)
}

func TestRelay_SweepEvictsExpiredStreaks(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{StreakTTL: 5 * time.Second, SweepInterval: 5 * time.Second})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	sess.emitAll(t, streakGift(3, false, "m1"))
	_ = h.broadcaster.next(t)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Gift.ActiveStreaks))

	h.clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.Gift.SweptEntries.WithLabelValues("streak")) == 1
	}, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.Gift.ActiveStreaks))

	// The streak is gone, so the same sender's count restarts from scratch.
	sess.emitAll(t, streakGift(2, false, "m2"))
	msg, ok := h.broadcaster.next(t).(domain.GiftMessage)
	require.True(t, ok)
	assert.Equal(t, 2, msg.RepeatCount)
}

func TestRelay_StopClosesSessionsAndIsIdempotent(t *testing.T) {
	sess := newFakeSession()
	h := newHarness(t, sessionsDialer(sess), Options{})
	conn := uuid.New()

	h.connect(t, conn, "streamer", sess)
	h.send(conn, `{"type":"auction_start","itemName":"Vase","duration":30}`)
	_ = h.broadcaster.next(t)

	h.relay.Stop()
	sess.waitClosed(t)

	h.relay.Stop()
	h.send(conn, `{"type":"auction_reset"}`)
	h.relay.ClientClosed(conn)

	_, err := h.relay.AuctionState()
	assert.Error(t, err)
	assert.Equal(t, 0, h.relay.SessionCount())
}

func TestConnectReason(t *testing.T) {
	cause := errors.New("offline")

	assert.Equal(t, cause, connectReason(&domain.ConnectError{Username: "x", Err: cause}))
	assert.Equal(t, "connection timed out", connectReason(context.DeadlineExceeded).Error())
	assert.Equal(t, cause, connectReason(cause))
}
