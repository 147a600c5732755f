package chat

import (
	"sync"
	"time"

	"homeservices/chatcore/internal/models"
)

// ContactList is the shared contact set. Liveness fields are written by the
// PresenceTracker, unread counts are reset by the RoomSession.
type ContactList struct {
	mu       sync.RWMutex
	contacts []models.Contact
	index    map[string]int
}

func NewContactList(contacts ...models.Contact) *ContactList {
	l := &ContactList{index: make(map[string]int)}
	l.Replace(contacts)
	return l
}

// Replace swaps the whole list, e.g. after a contact list fetch.
// Later duplicates of an id are dropped.
func (l *ContactList) Replace(contacts []models.Contact) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contacts = make([]models.Contact, 0, len(contacts))
	l.index = make(map[string]int, len(contacts))
	for _, c := range contacts {
		if c.ID == "" {
			continue
		}
		if _, dup := l.index[c.ID]; dup {
			continue
		}
		l.index[c.ID] = len(l.contacts)
		l.contacts = append(l.contacts, cloneContact(c))
	}
}

// SetOnline updates the liveness of contact id. Unknown ids are ignored.
// LastSeenAt is stamped with at, so it reflects the latest liveness event.
func (l *ContactList) SetOnline(id string, online bool, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.contacts[i].IsOnline = online
	if !at.IsZero() {
		seen := at
		l.contacts[i].LastSeenAt = &seen
	}
	return true
}

// ResetUnread zeroes the unread counter of id.
func (l *ContactList) ResetUnread(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.contacts[i].UnreadCount = 0
	return true
}

// Get returns a copy of contact id.
func (l *ContactList) Get(id string) (models.Contact, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return models.Contact{}, false
	}
	return cloneContact(l.contacts[i]), true
}

func (l *ContactList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.contacts)
}

// Snapshot returns a copy of the list in its original order.
func (l *ContactList) Snapshot() []models.Contact {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Contact, len(l.contacts))
	for i, c := range l.contacts {
		out[i] = cloneContact(c)
	}
	return out
}

func cloneContact(c models.Contact) models.Contact {
	if c.LastSeenAt != nil {
		t := *c.LastSeenAt
		c.LastSeenAt = &t
	}
	return c
}
