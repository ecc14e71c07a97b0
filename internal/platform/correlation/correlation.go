// Package correlation threads a short request id and the originating /ws
// connection id through contexts and into every log line.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Header carries a caller-chosen correlation id on HTTP requests.
const Header = "X-Request-ID"

const maxIDLength = 64

type (
	idKey     struct{}
	connIDKey struct{}
)

func NewID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// FromHeader accepts a caller-supplied id if it is short and made only of
// letters, digits, '-' and '_', so it is safe to log verbatim.
func FromHeader(value string) (string, bool) {
	if value == "" || len(value) > maxIDLength {
		return "", false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", false
		}
	}
	return value, true
}

// WithID returns a new context carrying the given correlation ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey{}, id)
}

// ID extracts the correlation ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey{}).(string)
	return id, ok && id != ""
}

// WithConnID tags ctx with the downstream connection a command came from.
func WithConnID(ctx context.Context, connID uuid.UUID) context.Context {
	return context.WithValue(ctx, connIDKey{}, connID)
}

// ConnID extracts the downstream connection id, if any.
func ConnID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(connIDKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Handler wraps an existing slog.Handler to inject "correlation_id" and
// "conn_id" attributes when the context carries them.
type Handler struct {
	inner slog.Handler
}

// NewHandler creates a correlation-aware handler wrapping the given handler.
func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if connID, ok := ConnID(ctx); ok {
		r.AddAttrs(slog.String("conn_id", connID.String()))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
