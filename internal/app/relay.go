package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	"github.com/muhith-dev/tiktok-live-auction/internal/auction"
	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
	"github.com/muhith-dev/tiktok-live-auction/internal/gift"
	apperrors "github.com/muhith-dev/tiktok-live-auction/internal/platform/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	cmdBufferSize  = 256

	connectedText     = "Connected to TikTok Live"
	upstreamErrorText = "upstream error"
)

// DeduperFactory builds the message dedup set of a new upstream session
// attached to username's live stream.
type DeduperFactory func(sessionID uuid.UUID, username string) gift.MessageDeduper

// MemoryDeduperFactory gives every session a private in-process set, so a
// new connect starts with no remembered ids.
func MemoryDeduperFactory(ttl time.Duration) DeduperFactory {
	return func(uuid.UUID, string) gift.MessageDeduper {
		return gift.NewMemoryDeduper(ttl)
	}
}

// Options tunes the relay. Zero values fall back to the defaults below.
type Options struct {
	ConnectTimeout  time.Duration
	StreakTTL       time.Duration
	MessageDedupTTL time.Duration
	SweepInterval   time.Duration
	CommandRate     rate.Limit
	CommandBurst    int
	NewDeduper      DeduperFactory
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.StreakTTL <= 0 {
		o.StreakTTL = gift.DefaultStreakTTL
	}
	if o.MessageDedupTTL <= 0 {
		o.MessageDedupTTL = gift.DefaultMessageTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = min(o.StreakTTL, o.MessageDedupTTL)
	}
	if o.CommandRate <= 0 {
		o.CommandRate = 10
	}
	if o.CommandBurst < 1 {
		o.CommandBurst = 20
	}
	if o.NewDeduper == nil {
		o.NewDeduper = MemoryDeduperFactory(o.MessageDedupTTL)
	}
	return o
}

// Metrics groups the collectors the relay records into. Nil members are
// replaced by unregistered collectors.
type Metrics struct {
	Gift     *metrics.GiftMetrics
	Auction  *metrics.AuctionMetrics
	Upstream *metrics.UpstreamMetrics
	Commands *metrics.WebSocketMetrics
}

func (m Metrics) withDefaults() Metrics {
	scratch := prometheus.NewRegistry()
	if m.Gift == nil {
		m.Gift = metrics.NewGiftMetrics(scratch)
	}
	if m.Auction == nil {
		m.Auction = metrics.NewAuctionMetrics(scratch)
	}
	if m.Upstream == nil {
		m.Upstream = metrics.NewUpstreamMetrics(scratch)
	}
	if m.Commands == nil {
		m.Commands = metrics.NewWebSocketMetrics(scratch)
	}
	return m
}

// upstreamSession is one control connection's binding to a live stream.
// session is nil while the dial is in flight.
type upstreamSession struct {
	id         uuid.UUID
	username   string
	reconciler *gift.Reconciler
	session    domain.UpstreamSession
	cancelDial context.CancelFunc
}

func (s *upstreamSession) close() {
	if s.session == nil {
		return
	}
	if err := s.session.Close(); err != nil {
		slog.Debug("Upstream session close error", "session_id", s.id.String(), "error", err)
	}
}

// Relay owns the session registry and the auction. Every exported method is
// safe for concurrent use.
type Relay struct {
	cmdCh       chan relayCmd
	clock       clockwork.Clock
	dialer      domain.UpstreamDialer
	broadcaster domain.Broadcaster
	opts        Options
	metrics     Metrics

	auction  *auction.Machine
	sessions map[uuid.UUID]*upstreamSession
	limiters map[uuid.UUID]*rate.Limiter

	baseCtx     context.Context
	cancelBase  context.CancelFunc
	done        chan struct{}
	stopTimeout time.Duration
}

// NewRelay creates and starts the relay actor.
func NewRelay(clock clockwork.Clock, dialer domain.UpstreamDialer, broadcaster domain.Broadcaster, opts Options, m Metrics) *Relay {
	baseCtx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		cmdCh:       make(chan relayCmd, cmdBufferSize),
		clock:       clock,
		dialer:      dialer,
		broadcaster: broadcaster,
		opts:        opts.withDefaults(),
		metrics:     m.withDefaults(),
		sessions:    make(map[uuid.UUID]*upstreamSession),
		limiters:    make(map[uuid.UUID]*rate.Limiter),
		baseCtx:     baseCtx,
		cancelBase:  cancel,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	r.auction = auction.NewMachine(clock, func(generation uint64) {
		r.send(auctionExpiredCmd{generation: generation})
	})

	go r.run()
	return r
}

// HandleMessage queues one inbound control message from connID.
func (r *Relay) HandleMessage(ctx context.Context, connID uuid.UUID, payload []byte) {
	r.send(inboundCmd{ctx: ctx, connID: connID, payload: payload})
}

// ClientClosed tears down whatever upstream session connID owns.
func (r *Relay) ClientClosed(connID uuid.UUID) {
	r.send(clientClosedCmd{connID: connID})
}

// AuctionState returns a snapshot of the auction.
func (r *Relay) AuctionState() (auction.State, error) {
	replyCh := make(chan auction.State, 1)
	if !r.send(auctionStateCmd{replyChannel: replyCh}) {
		return auction.State{}, errors.New("relay stopped")
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case state := <-replyCh:
		return state, nil
	case <-timer.Chan():
		return auction.State{}, fmt.Errorf("auction state timed out after %v", commandTimeout)
	}
}

// SessionCount returns the number of registered upstream sessions (connecting
// or live), or -1 if the actor did not answer in time.
func (r *Relay) SessionCount() int {
	replyCh := make(chan int, 1)
	if !r.send(sessionCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-timer.Chan():
		slog.Warn("SessionCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every upstream session, disarms the auction timer and waits
// for the actor to exit. Safe to call more than once.
func (r *Relay) Stop() {
	if !r.send(stopCmd{}) {
		return
	}

	timeout := r.clock.NewTimer(r.stopTimeout)
	defer timeout.Stop()

	select {
	case <-r.done:
		slog.Info("Relay stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Relay stop timeout exceeded", "timeout", r.stopTimeout)
	}
}

// send enqueues cmd unless the actor has already exited.
func (r *Relay) send(cmd relayCmd) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Relay) run() {
	defer close(r.done)

	sweep := r.clock.NewTicker(r.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case cmd := <-r.cmdCh:
			if _, stop := cmd.(stopCmd); stop {
				r.shutdown()
				return
			}
			r.dispatch(cmd)
		case <-sweep.Chan():
			r.sweep()
		}
	}
}

// dispatch runs one command; a panic is logged and the actor keeps going.
func (r *Relay) dispatch(cmd relayCmd) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Relay panic recovered", "command", fmt.Sprintf("%T", cmd), "panic", rec)
		}
	}()

	switch c := cmd.(type) {
	case inboundCmd:
		r.handleInbound(c)
	case clientClosedCmd:
		r.handleClientClosed(c.connID)
	case dialResultCmd:
		r.handleDialResult(c)
	case upstreamEventCmd:
		r.handleUpstreamEvent(c)
	case auctionExpiredCmd:
		r.handleAuctionExpired(c.generation)
	case auctionStateCmd:
		c.replyChannel <- r.auction.Snapshot()
	case sessionCountCmd:
		c.replyChannel <- len(r.sessions)
	}
}

func (r *Relay) shutdown() {
	r.cancelBase()
	r.auction.Cancel()

	for connID, s := range r.sessions {
		if s.cancelDial != nil {
			s.cancelDial()
		}
		s.close()
		delete(r.sessions, connID)
	}
	r.metrics.Upstream.ActiveSessions.Set(0)
	r.metrics.Gift.ActiveStreaks.Set(0)
	r.metrics.Auction.Active.Set(0)
}

// detach removes connID's session from the registry. The caller closes it.
func (r *Relay) detach(connID uuid.UUID) (*upstreamSession, bool) {
	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, connID)

	if s.cancelDial != nil {
		s.cancelDial()
	}
	if s.session != nil {
		r.metrics.Upstream.ActiveSessions.Dec()
	}
	r.refreshStreakGauge()
	return s, true
}

func (r *Relay) handleClientClosed(connID uuid.UUID) {
	delete(r.limiters, connID)

	s, ok := r.detach(connID)
	if !ok {
		return
	}
	slog.Info("Control connection closed, dropping upstream session",
		"conn_id", connID.String(), "username", s.username, "session_id", s.id.String())

	if s.session != nil {
		go s.close()
		r.broadcaster.Broadcast(domain.DisconnectedMessage{Type: domain.TypeDisconnected})
	}
}

func (r *Relay) sweep() {
	now := r.clock.Now()

	var streaks, messages int
	for _, s := range r.sessions {
		st, msg := s.reconciler.Sweep(now)
		streaks += st
		messages += msg
	}

	r.metrics.Gift.SweptEntries.WithLabelValues("streak").Add(float64(streaks))
	r.metrics.Gift.SweptEntries.WithLabelValues("message").Add(float64(messages))
	r.refreshStreakGauge()

	if streaks+messages > 0 {
		slog.Debug("Swept expired reconciliation state", "streaks", streaks, "messages", messages)
	}
}

func (r *Relay) refreshStreakGauge() {
	total := 0
	for _, s := range r.sessions {
		total += s.reconciler.ActiveStreaks()
	}
	r.metrics.Gift.ActiveStreaks.Set(float64(total))
}

// replyError sends err's client message to connID only.
func (r *Relay) replyError(ctx context.Context, connID uuid.UUID, err *apperrors.Error) {
	slog.WarnContext(ctx, "Command failed", err.LogAttrs()...)
	r.broadcaster.SendTo(connID, domain.NewErrorMessage(err.ClientMessage()))
}
