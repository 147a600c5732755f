package models

import "time"

// Room identifies the exclusive channel between one customer and one worker.
// The client never makes a room id up; it is always resolved by the backend.
type Room struct {
	RoomID     string `json:"roomId"`
	CustomerID string `json:"customerId"`
	WorkerID   string `json:"workerId"`
}

// ChatRoom is the devserver row behind Room.
// The (CustomerID, WorkerID) pair is unique so resolution is idempotent.
type ChatRoom struct {
	// RoomID is the unique identifier for the chat room (UUID).
	RoomID string `gorm:"primaryKey"`
	// CustomerID is the customer participant.
	CustomerID string `gorm:"not null;uniqueIndex:idx_room_pair"`
	// WorkerID is the worker participant.
	WorkerID string `gorm:"not null;uniqueIndex:idx_room_pair"`
	// CreatedAt is when the room was first resolved.
	CreatedAt time.Time
}

// ToRoom converts the row into the contract shape.
func (r ChatRoom) ToRoom() Room {
	return Room{RoomID: r.RoomID, CustomerID: r.CustomerID, WorkerID: r.WorkerID}
}

// HasMember reports whether userID takes part in the room.
func (r ChatRoom) HasMember(userID string) bool {
	return userID != "" && (r.CustomerID == userID || r.WorkerID == userID)
}

// PeerOf returns the other participant, or "" if userID is not a member.
func (r ChatRoom) PeerOf(userID string) string {
	switch userID {
	case r.CustomerID:
		return r.WorkerID
	case r.WorkerID:
		return r.CustomerID
	}
	return ""
}
