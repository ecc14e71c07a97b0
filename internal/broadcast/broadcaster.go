package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	"github.com/muhith-dev/tiktok-live-auction/internal/domain"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	cmdBufferSize  = 256
)

var _ domain.Broadcaster = (*Broadcaster)(nil)

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	connID       uuid.UUID
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	connID uuid.UUID
}

type broadcastCmd struct {
	baseBroadcasterCmd
	data []byte
}

type sendToCmd struct {
	baseBroadcasterCmd
	connID uuid.UUID
	data   []byte
}

type getClientCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster tracks downstream WebSocket connections and fans messages out
// to them.
type Broadcaster struct {
	cmdCh          chan broadcasterCmd
	clock          clockwork.Clock
	clients        map[uuid.UUID]*clientWriter
	maxConnections int
	metrics        *metrics.WebSocketMetrics
	done           chan struct{}
	stopTimeout    time.Duration
}

// NewBroadcaster creates and starts a broadcaster. maxConnections <= 0 means
// no limit. wsMetrics may be nil.
func NewBroadcaster(clock clockwork.Clock, maxConnections int, wsMetrics *metrics.WebSocketMetrics) *Broadcaster {
	b := &Broadcaster{
		cmdCh:          make(chan broadcasterCmd, cmdBufferSize),
		clock:          clock,
		clients:        make(map[uuid.UUID]*clientWriter),
		maxConnections: maxConnections,
		metrics:        wsMetrics,
		done:           make(chan struct{}),
		stopTimeout:    stopTimeout,
	}
	go b.run()
	return b
}

// Register starts a writer for conn. On error the connection has already
// been closed.
func (b *Broadcaster) Register(connID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !b.send(registerCmd{connID: connID, connection: conn, errorChannel: errCh}) {
		_ = conn.Close()
		return fmt.Errorf("broadcaster stopped")
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister stops the writer and closes the connection.
func (b *Broadcaster) Unregister(connID uuid.UUID) {
	b.send(unregisterCmd{connID: connID})
}

// Broadcast marshals msg once and offers it to every registered connection.
func (b *Broadcaster) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "error", err)
		return
	}
	b.send(broadcastCmd{data: data})
}

// SendTo delivers msg to a single connection, if it is still registered.
func (b *Broadcaster) SendTo(connID uuid.UUID, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "conn_id", connID.String(), "error", err)
		return
	}
	b.send(sendToCmd{connID: connID, data: data})
}

// GetClientCount returns the number of registered connections, or -1 if the
// actor did not answer in time.
func (b *Broadcaster) GetClientCount() int {
	replyCh := make(chan int, 1)
	if !b.send(getClientCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("GetClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every connection with a close frame and waits for the actor
// to exit.
func (b *Broadcaster) Stop() {
	if !b.send(stopCmd{}) {
		return
	}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
	}
}

// send enqueues cmd unless the actor has already exited.
func (b *Broadcaster) send(cmd broadcasterCmd) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.closeAllClients("broadcaster panic")
		}
	}()

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			b.handleRegister(c)
		case unregisterCmd:
			b.handleUnregister(c)
		case broadcastCmd:
			b.handleBroadcast(c)
		case sendToCmd:
			b.handleSendTo(c)
		case getClientCountCmd:
			c.replyChannel <- len(b.clients)
		case stopCmd:
			b.handleStop()
			return
		default:
			slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	if b.maxConnections > 0 && len(b.clients) >= b.maxConnections {
		slog.Warn("Rejecting client: max connections reached", "conn_id", c.connID.String(), "max_connections", b.maxConnections)
		_ = c.connection.Close()
		if b.metrics != nil {
			b.metrics.RejectedConnects.WithLabelValues("global_limit").Inc()
		}
		c.errorChannel <- fmt.Errorf("%w (%d)", domain.ErrTooManyConnections, b.maxConnections)
		return
	}

	if existing, ok := b.clients[c.connID]; ok {
		existing.stop()
	}
	b.clients[c.connID] = newClientWriter(c.connection, b.clock, b.metrics)

	if b.metrics != nil {
		b.metrics.ActiveConnections.Set(float64(len(b.clients)))
	}
	slog.Debug("Client registered", "conn_id", c.connID.String(), "total_clients", len(b.clients))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(c unregisterCmd) {
	cw, ok := b.clients[c.connID]
	if !ok {
		return
	}
	cw.stop()
	delete(b.clients, c.connID)

	if b.metrics != nil {
		b.metrics.ActiveConnections.Set(float64(len(b.clients)))
	}
	slog.Debug("Client unregistered", "conn_id", c.connID.String(), "remaining_clients", len(b.clients))
}

func (b *Broadcaster) handleBroadcast(c broadcastCmd) {
	for connID, cw := range b.clients {
		b.offer(connID, cw, c.data)
	}
}

func (b *Broadcaster) handleSendTo(c sendToCmd) {
	cw, ok := b.clients[c.connID]
	if !ok {
		slog.Debug("SendTo unknown connection", "conn_id", c.connID.String())
		return
	}
	b.offer(c.connID, cw, c.data)
}

// offer never blocks: a writer that has exited or whose buffer is full
// misses this message.
func (b *Broadcaster) offer(connID uuid.UUID, cw *clientWriter, data []byte) {
	if cw.closed() {
		b.dropped("closed")
		return
	}
	select {
	case cw.sendChannel <- data:
		if b.metrics != nil {
			b.metrics.MessagesPublished.Inc()
		}
	default:
		slog.Debug("Dropping message for slow client", "conn_id", connID.String())
		b.dropped("buffer_full")
	}
}

func (b *Broadcaster) dropped(reason string) {
	if b.metrics != nil {
		b.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	}
}

func (b *Broadcaster) handleStop() {
	total := len(b.clients)
	slog.Info("Broadcaster shutting down", "total_clients", total)
	b.closeAllClients("Server shutting down")
	slog.Info("Broadcaster shutdown complete", "disconnected_clients", total)
}

func (b *Broadcaster) closeAllClients(reason string) {
	for connID, cw := range b.clients {
		cw.stopGraceful(reason)
		delete(b.clients, connID)
	}
	if b.metrics != nil {
		b.metrics.ActiveConnections.Set(0)
	}
}
