// Package realtime is the client side of the chat's WebSocket channels.
// A connection is tagged on dial (user, room, channel type) and exchanges
// models.Envelope frames.
package realtime

import (
	"context"
	"errors"

	"homeservices/chatcore/internal/models"
)

// ErrClosed is returned by Send once the connection has been closed.
var ErrClosed = errors.New("realtime: connection closed")

// Tags scope a connection. They are sent as query parameters.
type Tags struct {
	UserID string
	RoomID string
	Type   string
}

// Conn is one open real-time connection.
type Conn interface {
	// Events delivers inbound frames. It is closed when the connection ends.
	Events() <-chan models.Envelope
	// Send queues an outbound frame.
	Send(event string, data any) error
	// Done is closed once the connection has shut down.
	Done() <-chan struct{}
	// Close shuts the connection down and waits for its goroutines.
	Close() error
}

// Dialer opens tagged connections.
type Dialer interface {
	Dial(ctx context.Context, tags Tags) (Conn, error)
}
