package chathub

import "homeservices/chatcore/internal/models"

// Client is one real-time connection as seen by the hub. It abstracts the
// transport so the hub can be tested without sockets.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string
	// GetRoomID returns the room a chat connection belongs to, "" for presence.
	GetRoomID() string
	// SetRoomID moves the client to another room, after a joinRoom.
	SetRoomID(string)
	// GetConnType returns models.ConnTypePresence or models.ConnTypeChat.
	GetConnType() string

	// GetSendChannel returns the channel the hub writes outbound frames to.
	GetSendChannel() chan<- models.Envelope

	// Run starts the client's read and write pumps.
	Run()
	// Close stops the write pump, which closes the connection. Called by the hub only.
	Close()
}
