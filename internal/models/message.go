package models

import (
	"strings"
	"time"
)

// TempIDPrefix marks messages created locally that the server has not confirmed yet.
const TempIDPrefix = "temp-"

// ReadReceipt records that a user has seen a message.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message is the strict, normalized shape held by the message store.
// Backend payloads never enter the store directly, see WireMessage.Normalize.
type Message struct {
	ID         string        `json:"id"`
	Content    string        `json:"content,omitempty"`
	Images     []string      `json:"images,omitempty"`
	SenderID   string        `json:"senderId"`
	SenderRole string        `json:"senderRole"`
	CreatedAt  time.Time     `json:"createdAt"`
	ReadBy     []ReadReceipt `json:"readBy,omitempty"`
}

// IsTemp reports whether the message is an optimistic local entry.
func (m Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// SeenByPeer is true once somebody other than the sender has read the message.
func (m Message) SeenByPeer() bool {
	for _, r := range m.ReadBy {
		if r.UserID != m.SenderID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can't mutate store-owned slices.
func (m Message) Clone() Message {
	out := m
	if m.Images != nil {
		out.Images = append([]string(nil), m.Images...)
	}
	if m.ReadBy != nil {
		out.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
	}
	return out
}

// MergeReadBy appends receipts for new users and updates existing ones.
// The list never shrinks and an update keeps the later ReadAt.
func MergeReadBy(current, incoming []ReadReceipt) []ReadReceipt {
	if len(incoming) == 0 {
		return current
	}
	merged := append([]ReadReceipt(nil), current...)
	for _, in := range incoming {
		if in.UserID == "" {
			continue
		}
		found := false
		for i := range merged {
			if merged[i].UserID == in.UserID {
				if in.ReadAt.After(merged[i].ReadAt) {
					merged[i].ReadAt = in.ReadAt
				}
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, in)
		}
	}
	return merged
}

// DateGroup is the per-calendar-day projection of the message log.
type DateGroup struct {
	DateKey  string    `json:"dateKey"` // YYYY-MM-DD in the display location
	Label    string    `json:"label"`
	Messages []Message `json:"messages"`
}

// ImageAsset is a locally picked image. URI doubles as the optimistic preview.
type ImageAsset struct {
	URI      string `json:"uri"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}
