package chat

import (
	"sort"
	"sync"
	"time"

	"homeservices/chatcore/internal/localization"
	"homeservices/chatcore/internal/models"
)

const dateKeyLayout = "2006-01-02"

// MessageStore is the ordered message log of the active room.
// Ids are unique at all times; the slice order is arrival order.
type MessageStore struct {
	mu        sync.RWMutex
	messages  []models.Message
	index     map[string]int
	version   uint64
	localizer *localization.Localizer

	cache struct {
		version  uint64
		todayKey string
		loc      *time.Location
		groups   []models.DateGroup
		valid    bool
	}
}

// NewMessageStore creates an empty store. A nil localizer uses the embedded English tables.
func NewMessageStore(l *localization.Localizer) *MessageStore {
	if l == nil {
		l = localization.Default(localization.DefaultLang)
	}
	return &MessageStore{
		index:     make(map[string]int),
		localizer: l,
	}
}

// Load bulk-appends msgs in order, skipping duplicates.
func (s *MessageStore) Load(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.appendLocked(m)
	}
}

// Append adds msg unless a message with the same id is already stored, in
// which case only its read receipts are amended. Reports whether msg was added.
func (s *MessageStore) Append(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *MessageStore) appendLocked(msg models.Message) bool {
	if msg.ID == "" {
		return false
	}
	if i, ok := s.index[msg.ID]; ok {
		merged := models.MergeReadBy(s.messages[i].ReadBy, msg.ReadBy)
		if !sameReceipts(merged, s.messages[i].ReadBy) {
			s.messages[i].ReadBy = merged
			s.version++
		}
		return false
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg.Clone())
	s.version++
	return true
}

// Replace swaps the optimistic entry tempID for final in place.
// If final.ID is already present (a pushed copy won the race) the two are
// merged into the temp entry's position and the other copy dropped.
// When tempID is gone, final is appended. Reports whether tempID was found.
func (s *MessageStore) Replace(tempID string, final models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ti, ok := s.index[tempID]
	if !ok {
		s.upsertLocked(final)
		return false
	}

	merged := final.Clone()
	merged.ReadBy = models.MergeReadBy(s.messages[ti].ReadBy, final.ReadBy)

	if fi, dup := s.index[final.ID]; dup && fi != ti {
		existing := s.messages[fi]
		merged.ReadBy = models.MergeReadBy(existing.ReadBy, merged.ReadBy)
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = existing.CreatedAt
		}
		s.messages[ti] = merged
		s.messages = append(s.messages[:fi], s.messages[fi+1:]...)
		s.reindexLocked()
	} else {
		s.messages[ti] = merged
		delete(s.index, tempID)
		s.index[merged.ID] = ti
	}
	s.version++
	return true
}

// Upsert replaces the message with the same id, keeping read receipts
// monotonic, or appends it when absent.
func (s *MessageStore) Upsert(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(msg)
}

func (s *MessageStore) upsertLocked(msg models.Message) {
	if msg.ID == "" {
		return
	}
	i, ok := s.index[msg.ID]
	if !ok {
		s.appendLocked(msg)
		return
	}
	updated := msg.Clone()
	updated.ReadBy = models.MergeReadBy(s.messages[i].ReadBy, msg.ReadBy)
	if updated.CreatedAt.IsZero() {
		updated.CreatedAt = s.messages[i].CreatedAt
	}
	if updated.SenderID == "" {
		updated.SenderID = s.messages[i].SenderID
		updated.SenderRole = s.messages[i].SenderRole
	}
	// partial update events carry only the receipts
	if updated.Content == "" && len(updated.Images) == 0 {
		updated.Content = s.messages[i].Content
		updated.Images = append([]string(nil), s.messages[i].Images...)
	}
	s.messages[i] = updated
	s.version++
}

// MergeReadBy amends the receipts of message id. Reports whether id exists.
func (s *MessageStore) MergeReadBy(id string, receipts []models.ReadReceipt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	merged := models.MergeReadBy(s.messages[i].ReadBy, receipts)
	if !sameReceipts(merged, s.messages[i].ReadBy) {
		s.messages[i].ReadBy = merged
		s.version++
	}
	return true
}

// Remove drops message id. Used to roll back a failed optimistic send.
func (s *MessageStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.removeAtLocked(i)
	s.version++
	return true
}

func (s *MessageStore) removeAtLocked(i int) {
	delete(s.index, s.messages[i].ID)
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	for j := i; j < len(s.messages); j++ {
		s.index[s.messages[j].ID] = j
	}
}

func (s *MessageStore) reindexLocked() {
	s.index = make(map[string]int, len(s.messages))
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
}

// Get returns a copy of message id.
func (s *MessageStore) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages returns a copy of the log in arrival order.
func (s *MessageStore) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Project groups the log by calendar day in now's location.
// Messages are ascending by CreatedAt within a group (ties keep arrival
// order) and groups are ascending by date. The result is memoized per store
// version and current day.
func (s *MessageStore) Project(now time.Time) []models.DateGroup {
	loc := now.Location()
	todayKey := now.Format(dateKeyLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.cache
	if !c.valid || c.version != s.version || c.todayKey != todayKey || c.loc != loc {
		c.groups = s.groupLocked(now)
		c.version = s.version
		c.todayKey = todayKey
		c.loc = loc
		c.valid = true
	}
	return cloneGroups(c.groups)
}

func (s *MessageStore) groupLocked(now time.Time) []models.DateGroup {
	if len(s.messages) == 0 {
		return []models.DateGroup{}
	}
	loc := now.Location()
	todayKey := now.Format(dateKeyLayout)
	yesterdayKey := now.AddDate(0, 0, -1).Format(dateKeyLayout)

	sorted := make([]models.Message, len(s.messages))
	copy(sorted, s.messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var groups []models.DateGroup
	for _, m := range sorted {
		local := m.CreatedAt.In(loc)
		key := local.Format(dateKeyLayout)
		if n := len(groups); n > 0 && groups[n-1].DateKey == key {
			groups[n-1].Messages = append(groups[n-1].Messages, m.Clone())
			continue
		}
		var label string
		switch key {
		case todayKey:
			label = s.localizer.T("date.today")
		case yesterdayKey:
			label = s.localizer.T("date.yesterday")
		default:
			label = s.localizer.LongDate(local)
		}
		groups = append(groups, models.DateGroup{
			DateKey:  key,
			Label:    label,
			Messages: []models.Message{m.Clone()},
		})
	}
	return groups
}

func cloneGroups(in []models.DateGroup) []models.DateGroup {
	out := make([]models.DateGroup, len(in))
	for i, g := range in {
		out[i] = models.DateGroup{DateKey: g.DateKey, Label: g.Label, Messages: make([]models.Message, len(g.Messages))}
		for j, m := range g.Messages {
			out[i].Messages[j] = m.Clone()
		}
	}
	return out
}

func sameReceipts(a, b []models.ReadReceipt) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].UserID != b[i].UserID || !a[i].ReadAt.Equal(b[i].ReadAt) {
			return false
		}
	}
	return true
}
