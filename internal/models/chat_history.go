package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // pq.StringArray for image URLs
	"gorm.io/gorm"
)

// ChatHistory represents a saved chat message in the devserver database.
type ChatHistory struct {
	// ID is the server-assigned message id (UUID).
	ID string `gorm:"primaryKey"`
	// RoomID is the room the message was sent to.
	RoomID string `gorm:"type:uuid;not null;index:idx_room_msg"`
	// SenderID is the user who sent the message.
	SenderID string `gorm:"type:text;not null"`
	// SenderRole is "customer" or "worker".
	SenderRole string `gorm:"type:text;not null"`
	// Content is the text body; empty for image-only messages.
	Content string `gorm:"type:text"`
	// Images holds hosted image URLs.
	Images pq.StringArray `gorm:"type:text[]"`
	// CreatedAt doubles as the ordering key.
	CreatedAt time.Time `gorm:"index:idx_room_msg"`
	// ReadBy is loaded from MessageRead rows.
	ReadBy []MessageRead `gorm:"foreignKey:MessageID"`
}

// BeforeCreate assigns the message id.
func (h *ChatHistory) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return
}

// MessageRead is one read receipt row, keyed by (MessageID, UserID).
type MessageRead struct {
	MessageID string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	ReadAt    time.Time
}

// ToMessage converts the row into the strict Message shape.
func (h ChatHistory) ToMessage() Message {
	msg := Message{
		ID:         h.ID,
		Content:    h.Content,
		SenderID:   h.SenderID,
		SenderRole: h.SenderRole,
		CreatedAt:  h.CreatedAt,
	}
	if len(h.Images) > 0 {
		msg.Images = append([]string(nil), h.Images...)
	}
	for _, r := range h.ReadBy {
		msg.ReadBy = append(msg.ReadBy, ReadReceipt{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	return msg
}
