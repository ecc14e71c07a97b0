package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/muhith-dev/tiktok-live-auction/internal/auction"
	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
	"github.com/muhith-dev/tiktok-live-auction/internal/gift"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/correlation"
	apperrors "github.com/muhith-dev/tiktok-live-auction/internal/platform/errors"
	"golang.org/x/time/rate"
)

func (r *Relay) limiterFor(connID uuid.UUID) *rate.Limiter {
	l, ok := r.limiters[connID]
	if !ok {
		l = rate.NewLimiter(r.opts.CommandRate, r.opts.CommandBurst)
		r.limiters[connID] = l
	}
	return l
}

func (r *Relay) handleInbound(c inboundCmd) {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := correlation.ID(ctx); !ok {
		ctx = correlation.WithID(ctx, correlation.NewID())
	}
	ctx = correlation.WithConnID(ctx, c.connID)

	if !r.limiterFor(c.connID).AllowN(r.clock.Now(), 1) {
		r.metrics.Commands.CommandsRejected.Inc()
		r.replyError(ctx, c.connID, apperrors.RateLimitedError("rate limit exceeded"))
		return
	}

	var cmd domain.Command
	if err := json.Unmarshal(c.payload, &cmd); err != nil {
		r.replyError(ctx, c.connID, &apperrors.Error{
			Type:    apperrors.TypeValidation,
			Message: "Error processing data",
			Cause:   err,
		})
		return
	}

	switch cmd.Type {
	case domain.TypeConnect:
		r.connect(ctx, c.connID, cmd.Username)
	case domain.TypeDisconnect:
		r.disconnect(ctx, c.connID)
	case domain.TypeAuctionStart:
		r.startAuction(ctx, c.connID, cmd)
	case domain.TypeAuctionStop, domain.TypeAuctionEnd:
		r.stopAuction(ctx, cmd)
	case domain.TypeAuctionReset:
		r.resetAuction(ctx)
	default:
		slog.DebugContext(ctx, "Ignoring unknown command", "type", cmd.Type)
	}
}

func (r *Relay) connect(ctx context.Context, connID uuid.UUID, username string) {
	username = strings.TrimSpace(username)
	if username == "" {
		r.metrics.Upstream.ConnectAttempts.WithLabelValues("invalid").Inc()
		r.replyError(ctx, connID, apperrors.ExternalError("Failed to connect", domain.ErrUsernameRequired))
		return
	}

	if old, ok := r.detach(connID); ok {
		slog.InfoContext(ctx, "Replacing upstream session", "old_username", old.username, "session_id", old.id.String())
		go old.close()
	}

	sessionID := uuid.New()
	dialCtx, cancel := context.WithTimeout(r.baseCtx, r.opts.ConnectTimeout)
	r.sessions[connID] = &upstreamSession{
		id:         sessionID,
		username:   username,
		reconciler: gift.NewReconciler(r.opts.NewDeduper(sessionID, username), r.opts.StreakTTL),
		cancelDial: cancel,
	}

	slog.InfoContext(ctx, "Connecting to upstream", "username", username, "session_id", sessionID.String())

	go func() {
		defer cancel()
		sess, err := r.dialer.Dial(dialCtx, username)
		delivered := r.send(dialResultCmd{connID: connID, sessionID: sessionID, session: sess, err: err})
		if !delivered && sess != nil {
			_ = sess.Close()
		}
	}()
}

func (r *Relay) handleDialResult(c dialResultCmd) {
	ctx := correlation.WithConnID(context.Background(), c.connID)

	s, ok := r.sessions[c.connID]
	if !ok || s.id != c.sessionID {
		// Disconnected or replaced while dialing.
		if c.session != nil {
			go func() { _ = c.session.Close() }()
		}
		slog.DebugContext(ctx, "Discarding dial result of superseded session", "session_id", c.sessionID.String())
		return
	}
	s.cancelDial = nil

	if c.err != nil {
		delete(r.sessions, c.connID)
		r.metrics.Upstream.ConnectAttempts.WithLabelValues("failure").Inc()
		r.replyError(ctx, c.connID,
			apperrors.ExternalError("Failed to connect", connectReason(c.err)).
				WithContext("username", s.username))
		return
	}

	s.session = c.session
	r.metrics.Upstream.ConnectAttempts.WithLabelValues("success").Inc()
	r.metrics.Upstream.ActiveSessions.Inc()
	slog.InfoContext(ctx, "Upstream session established", "username", s.username, "session_id", s.id.String())

	go r.pump(c.connID, s.id, c.session)
}

// connectReason strips the ConnectError envelope so the client sees the
// underlying cause.
func connectReason(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("connection timed out")
	}
	var ce *domain.ConnectError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err
	}
	return err
}

// pump forwards upstream events into the actor until the session ends.
func (r *Relay) pump(connID, sessionID uuid.UUID, sess domain.UpstreamSession) {
	for ev := range sess.Events() {
		if !r.send(upstreamEventCmd{connID: connID, sessionID: sessionID, event: ev}) {
			return
		}
	}
}

func (r *Relay) disconnect(ctx context.Context, connID uuid.UUID) {
	s, ok := r.detach(connID)
	if !ok {
		slog.DebugContext(ctx, "Disconnect without an upstream session")
		return
	}
	go s.close()

	slog.InfoContext(ctx, "Disconnected from upstream", "username", s.username, "session_id", s.id.String())
	r.broadcaster.Broadcast(domain.DisconnectedMessage{Type: domain.TypeDisconnected})
}

func (r *Relay) handleUpstreamEvent(c upstreamEventCmd) {
	s, ok := r.sessions[c.connID]
	if !ok || s.id != c.sessionID {
		return
	}
	ctx := correlation.WithConnID(context.Background(), c.connID)

	switch ev := c.event.(type) {
	case domain.ConnectedEvent:
		r.metrics.Upstream.Events.WithLabelValues("connected").Inc()
		r.broadcaster.Broadcast(domain.ConnectedMessage{
			Type:     domain.TypeConnected,
			Username: s.username,
			Message:  connectedText,
		})

	case domain.GiftReceivedEvent:
		r.metrics.Upstream.Events.WithLabelValues("gift").Inc()
		r.handleGift(ctx, s, ev.Gift)

	case domain.ChatEvent:
		r.metrics.Upstream.Events.WithLabelValues("chat").Inc()
		r.handleChat(ctx, s, ev)

	case domain.FollowEvent:
		r.metrics.Upstream.Events.WithLabelValues("follow").Inc()
		slog.InfoContext(ctx, "New follower", "username", s.username, "follower", ev.SenderID)

	case domain.ShareEvent:
		r.metrics.Upstream.Events.WithLabelValues("share").Inc()
		slog.InfoContext(ctx, "Stream shared", "username", s.username, "viewer", ev.SenderID)

	case domain.ErrorEvent:
		r.metrics.Upstream.Events.WithLabelValues("error").Inc()
		text := upstreamErrorText
		if ev.Err != nil {
			text = ev.Err.Error()
		}
		slog.WarnContext(ctx, "Upstream error", "username", s.username, "error", text)
		r.broadcaster.Broadcast(domain.NewErrorMessage(text))

	case domain.DisconnectedEvent:
		r.metrics.Upstream.Events.WithLabelValues("disconnected").Inc()
		r.detach(c.connID)
		go s.close()
		slog.InfoContext(ctx, "Upstream session ended", "username", s.username, "session_id", s.id.String())
		r.broadcaster.Broadcast(domain.DisconnectedMessage{Type: domain.TypeDisconnected})
	}
}

func (r *Relay) handleGift(ctx context.Context, s *upstreamSession, raw domain.GiftEvent) {
	now := r.clock.Now()
	delta, outcome := s.reconciler.Reconcile(ctx, raw, now)

	r.metrics.Gift.EventsProcessed.WithLabelValues(outcome.String()).Inc()
	r.refreshStreakGauge()

	if !outcome.Emitted() {
		slog.DebugContext(ctx, "Gift suppressed",
			"outcome", outcome.String(), "sender", raw.SenderID, "gift_id", raw.GiftID,
			"repeat_count", raw.RepeatCount, "msg_id", raw.MsgID)
		return
	}

	r.metrics.Gift.DeltaUnits.Add(float64(delta.Count))
	r.broadcaster.Broadcast(domain.GiftMessage{
		Type:          domain.TypeGift,
		Username:      raw.SenderID,
		Nickname:      raw.Nickname,
		GiftName:      raw.GiftName,
		GiftID:        raw.GiftID,
		DiamondCount:  raw.DiamondCount,
		RepeatCount:   delta.Count,
		MsgID:         raw.MsgID,
		Timestamp:     now.UnixMilli(),
		AuctionActive: r.auction.Active(),
	})
}

func (r *Relay) handleChat(ctx context.Context, s *upstreamSession, ev domain.ChatEvent) {
	now := r.clock.Now()

	msgID := ev.MsgID
	if msgID == "" {
		msgID = fmt.Sprintf("%s_%s_%d", ev.SenderID, ev.Comment, now.UnixMilli())
	}

	if !s.reconciler.MarkMessage(ctx, msgID, now) {
		r.metrics.Gift.ChatMessages.WithLabelValues("duplicate").Inc()
		return
	}
	r.metrics.Gift.ChatMessages.WithLabelValues("relayed").Inc()

	r.broadcaster.Broadcast(domain.ChatMessage{
		Type:     domain.TypeChat,
		Username: ev.SenderID,
		Nickname: ev.Nickname,
		Message:  ev.Comment,
		MsgID:    msgID,
	})
}

func (r *Relay) startAuction(ctx context.Context, connID uuid.UUID, cmd domain.Command) {
	msg, err := r.auction.Start(auction.StartCommand{
		ItemName:    cmd.ItemName,
		CurrentItem: cmd.CurrentItem,
		TotalItems:  cmd.TotalItems,
		StartingBid: cmd.StartingBid,
		Duration:    cmd.Duration,
	})
	if err != nil {
		r.replyError(ctx, connID, apperrors.ValidationError(err.Error()))
		return
	}

	r.metrics.Auction.Transitions.WithLabelValues("start").Inc()
	r.metrics.Auction.Active.Set(1)
	slog.InfoContext(ctx, "Auction started", "item", cmd.ItemName, "timer_armed", r.auction.TimerArmed())
	r.broadcaster.Broadcast(msg)
}

func (r *Relay) stopAuction(ctx context.Context, cmd domain.Command) {
	msg := r.auction.Stop(cmd.Winner, cmd.WinningBid)

	r.metrics.Auction.Transitions.WithLabelValues("stop").Inc()
	r.metrics.Auction.Active.Set(0)
	slog.InfoContext(ctx, "Auction stopped")
	r.broadcaster.Broadcast(msg)
}

func (r *Relay) resetAuction(ctx context.Context) {
	msg := r.auction.Reset()

	r.metrics.Auction.Transitions.WithLabelValues("reset").Inc()
	r.metrics.Auction.Active.Set(0)
	slog.InfoContext(ctx, "Auction reset")
	r.broadcaster.Broadcast(msg)
}

func (r *Relay) handleAuctionExpired(generation uint64) {
	msg, ok := r.auction.Expire(generation)
	if !ok {
		return
	}

	r.metrics.Auction.Transitions.WithLabelValues("auto_end").Inc()
	r.metrics.Auction.Active.Set(0)
	slog.Info("Auction ended by deadline")
	r.broadcaster.Broadcast(msg)
}
