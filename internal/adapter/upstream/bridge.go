// Package upstream connects to the live-platform bridge: a WebSocket service
// that holds the actual platform connection for one username and relays its
// events as JSON frames.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
	"github.com/sony/gobreaker"
)

const (
	pingInterval    = 30 * time.Second
	pongDeadline    = 60 * time.Second
	writeDeadline   = 5 * time.Second
	eventBufferSize = 256
	maxFrameSize    = 64 << 10

	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// ErrBridgeUnavailable is returned without dialing while the bridge breaker is
// open.
var ErrBridgeUnavailable = errors.New("upstream bridge unavailable")

// rejectedError is a handshake the bridge answered with a non-upgrade status.
// It says nothing about bridge health, so the breaker counts it as a success.
type rejectedError struct {
	status string
}

func (e *rejectedError) Error() string {
	return "bridge rejected session: " + e.status
}

var _ domain.UpstreamDialer = (*Dialer)(nil)

// Dialer opens bridge sessions. URLTemplate contains "{username}".
type Dialer struct {
	urlTemplate string
	dialer      *websocket.Dialer
	clock       clockwork.Clock
	breaker     *gobreaker.CircuitBreaker
}

func NewDialer(urlTemplate string, clock clockwork.Clock) *Dialer {
	return &Dialer{
		urlTemplate: urlTemplate,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 45 * time.Second,
		},
		clock: clock,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "upstream-bridge",
			Timeout: breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
			IsSuccessful: func(err error) bool {
				var rejected *rejectedError
				return err == nil || errors.As(err, &rejected) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Upstream circuit breaker state changed",
					"component", "upstream", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// BreakerState reports whether dials currently reach the bridge.
func (d *Dialer) BreakerState() gobreaker.State {
	return d.breaker.State()
}

// URLFor returns the bridge URL for username.
func (d *Dialer) URLFor(username string) string {
	return strings.ReplaceAll(d.urlTemplate, "{username}", url.PathEscape(username))
}

// Dial blocks until the bridge accepted the session or ctx is done.
func (d *Dialer) Dial(ctx context.Context, username string) (domain.UpstreamSession, error) {
	target := d.URLFor(username)

	v, err := d.breaker.Execute(func() (any, error) {
		conn, resp, err := d.dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil {
				return nil, &rejectedError{status: resp.Status}
			}
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = ErrBridgeUnavailable
		}
		return nil, &domain.ConnectError{Username: username, Err: err}
	}

	s := newSession(v.(*websocket.Conn), username, d.clock)
	slog.Info("Upstream session established", "username", username, "url", target)
	return s, nil
}

type session struct {
	conn      *websocket.Conn
	username  string
	clock     clockwork.Clock
	events    chan domain.UpstreamEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newSession(conn *websocket.Conn, username string, clock clockwork.Clock) *session {
	s := &session{
		conn:     conn,
		username: username,
		clock:    clock,
		events:   make(chan domain.UpstreamEvent, eventBufferSize),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxFrameSize)
	s.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	// The session is live as soon as the bridge accepted the handshake.
	s.events <- domain.ConnectedEvent{}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()
	return s
}

func (s *session) Events() <-chan domain.UpstreamEvent {
	return s.events
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "relay disconnect")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, s.clock.Now().Add(writeDeadline))
		err = s.conn.Close()
	})
	s.wg.Wait()
	return err
}

func (s *session) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// emit delivers ev unless the session is being closed.
func (s *session) emit(ev domain.UpstreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(domain.ErrorEvent{Err: fmt.Errorf("upstream read: %w", err)})
			}
			s.emit(domain.DisconnectedEvent{})
			return
		}
		s.extendReadDeadline()

		ev, err := decodeFrame(raw)
		if errors.Is(err, errIgnoredFrame) {
			continue
		}
		if err != nil {
			slog.Warn("Dropping malformed upstream frame", "username", s.username, "error", err)
			continue
		}

		if !s.emit(ev) {
			return
		}
		if _, ended := ev.(domain.DisconnectedEvent); ended {
			return
		}
	}
}

func (s *session) pingLoop() {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if err := s.conn.WriteControl(websocket.PingMessage, nil, s.clock.Now().Add(writeDeadline)); err != nil {
				slog.Debug("Upstream ping failed", "username", s.username, "error", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) extendReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}
