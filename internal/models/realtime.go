package models

import (
	"encoding/json"
	"fmt"
)

// Real-time event names shared by the presence and room channels.
const (
	EventUserOnline     = "userOnline"
	EventUserOffline    = "userOffline"
	EventUpdateActivity = "updateActivity"

	EventJoinRoom       = "joinRoom"
	EventSendMessage    = "sendMessage"
	EventMessageRead    = "messageRead"
	EventNewMessage     = "newMessage"
	EventMessageUpdated = "messageUpdated"
)

// Connection types, sent as the "type" tag when dialing.
const (
	ConnTypePresence = "presence"
	ConnTypeChat     = "chat"
)

// Envelope is the frame exchanged over every real-time connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// PresencePayload carries userOnline/userOffline/updateActivity.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// JoinRoomPayload is sent once the room connection is open.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// RoomMessagePayload carries sendMessage/newMessage/messageUpdated.
type RoomMessagePayload struct {
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

// MessageReadPayload carries a read receipt broadcast.
type MessageReadPayload struct {
	RoomID    string            `json:"roomId"`
	MessageID string            `json:"messageId"`
	ReadBy    []WireReadReceipt `json:"readBy"`
}

// RoomFrame is an envelope addressed to the sockets of one room, or to every
// presence socket when RoomID is empty. ExceptUserID suppresses the echo to the sender.
type RoomFrame struct {
	RoomID       string   `json:"roomId,omitempty"`
	ExceptUserID string   `json:"exceptUserId,omitempty"`
	Envelope     Envelope `json:"envelope"`
}
