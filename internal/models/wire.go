package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPayload is returned when a backend record can't be normalized.
var ErrMalformedPayload = errors.New("malformed payload")

// FlexTime decodes RFC3339 strings, epoch milliseconds or null.
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			if ms, convErr := strconv.ParseInt(s, 10, 64); convErr == nil {
				t.Time = time.UnixMilli(ms).UTC()
				return nil
			}
			return fmt.Errorf("parse time %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse epoch millis %s: %w", data, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// wireRef is either a bare id string or an object like {"_id": "...", "role": "..."}.
type wireRef struct {
	ID   string
	Role string
}

func (r *wireRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID    string `json:"id"`
		OID   string `json:"_id"`
		Role  string `json:"role"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = firstNonEmpty(obj.ID, obj.OID)
	r.Role = obj.Role
	return nil
}

func (r wireRef) MarshalJSON() ([]byte, error) {
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// WireReadReceipt is a read receipt as the backend sends it.
type WireReadReceipt struct {
	UserID string   `json:"userId"`
	User   wireRef  `json:"user"`
	ReadAt FlexTime `json:"readAt"`
}

// WireMessage accepts the loosely shaped message payloads of the backend.
type WireMessage struct {
	ID         string            `json:"id"`
	OID        string            `json:"_id"`
	Content    string            `json:"content"`
	Images     []string          `json:"images"`
	SenderID   string            `json:"senderId"`
	Sender     wireRef           `json:"sender"`
	SenderRole string            `json:"senderRole"`
	CreatedAt  FlexTime          `json:"createdAt"`
	ReadBy     []WireReadReceipt `json:"readBy"`
}

// Normalize converts the payload into a strict Message.
func (w WireMessage) Normalize() (Message, error) {
	id := firstNonEmpty(w.ID, w.OID)
	if id == "" {
		return Message{}, fmt.Errorf("%w: message without id", ErrMalformedPayload)
	}
	msg := Message{
		ID:         id,
		Content:    w.Content,
		SenderID:   firstNonEmpty(w.SenderID, w.Sender.ID),
		SenderRole: strings.ToLower(firstNonEmpty(w.SenderRole, w.Sender.Role)),
		CreatedAt:  w.CreatedAt.Time,
	}
	for _, img := range w.Images {
		if img != "" {
			msg.Images = append(msg.Images, img)
		}
	}
	var receipts []ReadReceipt
	for _, r := range w.ReadBy {
		uid := firstNonEmpty(r.UserID, r.User.ID)
		if uid == "" {
			continue
		}
		receipts = append(receipts, ReadReceipt{UserID: uid, ReadAt: r.ReadAt.Time})
	}
	msg.ReadBy = MergeReadBy(nil, receipts)
	return msg, nil
}

// DecodeMessage unmarshals and normalizes a single message payload.
func DecodeMessage(data []byte) (Message, error) {
	var w WireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return w.Normalize()
}

// NormalizeMessages converts a list, skipping entries that can't be normalized.
// The number of dropped entries is returned so callers can log it.
func NormalizeMessages(in []WireMessage) ([]Message, int) {
	out := make([]Message, 0, len(in))
	dropped := 0
	for _, w := range in {
		msg, err := w.Normalize()
		if err != nil {
			dropped++
			continue
		}
		out = append(out, msg)
	}
	return out, dropped
}

// WireContact is a contact list entry with presence and unread metadata.
type WireContact struct {
	ID          string   `json:"id"`
	OID         string   `json:"_id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	FullName    string   `json:"fullName"`
	Email       string   `json:"email"`
	LastSeenAt  FlexTime `json:"lastSeenAt"`
	LastActive  FlexTime `json:"lastActive"`
	IsOnline    bool     `json:"isOnline"`
	UnreadCount int      `json:"unreadCount"`
	// my-chats entries wrap the peer in a user/customer object
	User     *WireContact `json:"user"`
	Customer *WireContact `json:"customer"`
}

// Normalize converts the payload into a strict Contact.
func (w WireContact) Normalize() (Contact, error) {
	base := w
	if w.User != nil {
		base = *w.User
	} else if w.Customer != nil {
		base = *w.Customer
	}
	id := firstNonEmpty(base.ID, base.OID)
	if id == "" {
		return Contact{}, fmt.Errorf("%w: contact without id", ErrMalformedPayload)
	}
	c := Contact{
		ID:          id,
		DisplayName: firstNonEmpty(base.DisplayName, base.Name, base.FullName, base.Email),
		Email:       base.Email,
		IsOnline:    base.IsOnline || w.IsOnline,
		UnreadCount: max(w.UnreadCount, base.UnreadCount),
	}
	seen := base.LastSeenAt.Time
	if seen.IsZero() {
		seen = base.LastActive.Time
	}
	if seen.IsZero() {
		seen = w.LastSeenAt.Time
	}
	if !seen.IsZero() {
		c.LastSeenAt = &seen
	}
	return c, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ToWireReceipts is the inverse of the receipt part of Normalize.
func ToWireReceipts(in []ReadReceipt) []WireReadReceipt {
	out := make([]WireReadReceipt, 0, len(in))
	for _, r := range in {
		out = append(out, WireReadReceipt{UserID: r.UserID, ReadAt: FlexTime{Time: r.ReadAt}})
	}
	return out
}
