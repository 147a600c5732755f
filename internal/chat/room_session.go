package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"homeservices/chatcore/internal/config"
	"homeservices/chatcore/internal/localization"
	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/realtime"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionState is the lifecycle state of a RoomSession.
type SessionState int

const (
	StateIdle SessionState = iota
	StateResolving
	StateActive
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// SessionEventKind tells a UI what kind of refresh a SessionEvent asks for.
type SessionEventKind string

const (
	SessionChanged SessionEventKind = "changed"
	SessionError   SessionEventKind = "error"
)

// SessionEvent notifies observers that the session's visible state changed.
type SessionEvent struct {
	Kind   SessionEventKind
	RoomID string
	Err    error
}

// ticket tags work started for one room entry. Results carrying a ticket
// that no longer matches the active room are discarded.
type ticket struct {
	gen    uint64
	roomID string
}

// RoomSession owns exactly one active room connection at a time and
// mediates every send/receive for that room.
type RoomSession struct {
	backend   Backend
	dialer    realtime.Dialer
	contacts  *ContactList
	self      models.Identity
	localizer *localization.Localizer
	now       func() time.Time
	newTempID func() string
	debounce  time.Duration

	mu         sync.Mutex
	state      SessionState
	gen        uint64
	room       models.Room
	peerID     string
	store      *MessageStore
	conn       realtime.Conn
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	readTimer  *time.Timer
	closing    chan struct{} // closed when the teardown in progress finishes
	draft      string
	fetchErr   error

	events chan SessionEvent
}

// SessionOption configures a RoomSession.
type SessionOption func(*RoomSession)

// WithSessionClock overrides time.Now.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *RoomSession) { s.now = now }
}

// WithReadReceiptDebounce overrides config.ReadReceiptDebounce.
func WithReadReceiptDebounce(d time.Duration) SessionOption {
	return func(s *RoomSession) { s.debounce = d }
}

// WithLocalizer sets the tables used for date group labels.
func WithLocalizer(l *localization.Localizer) SessionOption {
	return func(s *RoomSession) { s.localizer = l }
}

// WithTempIDs overrides the optimistic id generator.
func WithTempIDs(gen func() string) SessionOption {
	return func(s *RoomSession) { s.newTempID = gen }
}

func NewRoomSession(b Backend, d realtime.Dialer, contacts *ContactList, self models.Identity, opts ...SessionOption) *RoomSession {
	s := &RoomSession{
		backend:  b,
		dialer:   d,
		contacts: contacts,
		self:     self,
		now:      time.Now,
		newTempID: func() string {
			return models.TempIDPrefix + uuid.NewString()
		},
		debounce: config.ReadReceiptDebounce,
		events:   make(chan SessionEvent, 32),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.contacts == nil {
		s.contacts = NewContactList()
	}
	if s.localizer == nil {
		s.localizer = localization.Default(localization.DefaultLang)
	}
	return s
}

// Events delivers change notifications. Slow readers miss events rather than
// block the session; they should re-read state on every event.
func (s *RoomSession) Events() <-chan SessionEvent { return s.events }

func (s *RoomSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the active room, if any.
func (s *RoomSession) Room() (models.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.state == StateActive
}

// PeerID returns the selected contact.
func (s *RoomSession) PeerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// FetchError is the error of the initial message fetch, nil if it worked.
func (s *RoomSession) FetchError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchErr
}

// Draft is the pending input text; a failed send puts its content back here.
func (s *RoomSession) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *RoomSession) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Messages returns the active room's log in arrival order.
func (s *RoomSession) Messages() []models.Message {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Messages()
}

// Groups returns the date-grouped projection of the active room's log.
func (s *RoomSession) Groups() []models.DateGroup {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return []models.DateGroup{}
	}
	return store.Project(s.now())
}

// SelectContact opens the room shared with peerID. An already active room is
// closed first. A failed message fetch still opens the room (see FetchError);
// a failed resolution returns ErrRoomResolution and leaves the session idle.
func (s *RoomSession) SelectContact(ctx context.Context, peerID string) error {
	if peerID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownContact)
	}
	s.mu.Lock()
	for s.state == StateActive || s.state == StateClosing {
		s.mu.Unlock()
		s.CloseRoom()
		s.mu.Lock()
	}
	s.gen++
	t := ticket{gen: s.gen}
	s.state = StateResolving
	s.peerID = peerID
	s.fetchErr = nil
	s.mu.Unlock()

	customerID, workerID := s.pair(peerID)
	room, err := s.backend.ResolveRoom(ctx, customerID, workerID)
	if err != nil {
		s.mu.Lock()
		if s.gen == t.gen {
			s.state = StateIdle
			s.peerID = ""
		}
		s.mu.Unlock()
		log.Error().Err(err).Str("peer_id", peerID).Msg("room resolution failed")
		s.notify(SessionEvent{Kind: SessionError, Err: err})
		return fmt.Errorf("%w: %w", ErrRoomResolution, err)
	}
	t.roomID = room.RoomID
	logger := log.With().Str("room_id", room.RoomID).Str("peer_id", peerID).Logger()

	store := NewMessageStore(s.localizer)
	page, fetchErr := s.backend.Messages(ctx, room.RoomID)
	if fetchErr != nil {
		logger.Error().Err(fetchErr).Msg("message fetch failed, opening with empty log")
	} else {
		store.Load(ascending(page, s.now))
	}

	conn, dialErr := s.dialer.Dial(ctx, realtime.Tags{
		RoomID: room.RoomID,
		UserID: s.self.UserID,
		Type:   models.ConnTypeChat,
	})
	if dialErr != nil {
		logger.Warn().Err(dialErr).Msg("room channel unavailable, no live updates")
		conn = nil
	}

	s.mu.Lock()
	if s.gen != t.gen || s.state != StateResolving {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrSuperseded
	}
	s.state = StateActive
	s.room = room
	s.store = store
	s.conn = conn
	s.fetchErr = fetchErr
	if conn != nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		s.loopCancel = cancel
		s.loopDone = done
		go s.readLoop(loopCtx, conn, t, done)
	}
	s.mu.Unlock()

	s.contacts.ResetUnread(peerID)

	if conn != nil {
		if err := conn.Send(models.EventJoinRoom, models.JoinRoomPayload{RoomID: room.RoomID, UserID: s.self.UserID}); err != nil {
			logger.Warn().Err(err).Msg("joinRoom not sent")
		}
	}
	if store.Len() > 0 {
		s.scheduleReadSync(t)
	}

	logger.Info().Int("messages", store.Len()).Msg("room active")
	if fetchErr != nil {
		s.notify(SessionEvent{Kind: SessionError, RoomID: room.RoomID, Err: fetchErr})
	}
	s.notify(SessionEvent{Kind: SessionChanged, RoomID: room.RoomID})
	return nil
}

// CloseRoom tears the active room down: timers stopped, connection closed,
// store dropped. In-flight requests are not cancelled; their results are
// discarded when they arrive. Safe to call in any state; a call that finds
// another teardown in progress returns once that teardown is done.
func (s *RoomSession) CloseRoom() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return
	case StateClosing:
		closing := s.closing
		s.mu.Unlock()
		<-closing
		return
	case StateResolving:
		s.gen++
		s.state = StateIdle
		s.peerID = ""
		s.mu.Unlock()
		return
	}

	s.state = StateClosing
	s.gen++
	gen := s.gen
	closing := make(chan struct{})
	s.closing = closing
	roomID := s.room.RoomID
	conn, cancel, done, timer := s.conn, s.loopCancel, s.loopDone, s.readTimer
	s.conn, s.loopCancel, s.loopDone, s.readTimer = nil, nil, nil, nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	if s.gen == gen {
		s.state = StateIdle
		s.room = models.Room{}
		s.peerID = ""
		s.store = nil
		s.draft = ""
		s.fetchErr = nil
	}
	if s.closing == closing {
		s.closing = nil
	}
	s.mu.Unlock()
	close(closing)

	log.Info().Str("room_id", roomID).Msg("room closed")
	s.notify(SessionEvent{Kind: SessionChanged, RoomID: roomID})
}

// SendText sends content optimistically. On failure the optimistic entry is
// removed, content is restored as the draft and ErrSendFailed is returned.
func (s *RoomSession) SendText(ctx context.Context, content string) (models.Message, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	temp := s.newTempMessage()
	temp.Content = text

	t, _, err := s.beginSend(temp)
	if err != nil {
		return models.Message{}, err
	}
	final, sendErr := s.backend.SendMessage(ctx, t.roomID, text)
	return s.finishSend(t, temp, final, sendErr, content, ErrSendFailed)
}

// SendImage uploads asset with the same optimistic discipline as SendText,
// using the local URI as preview until the hosted URL comes back.
func (s *RoomSession) SendImage(ctx context.Context, asset models.ImageAsset) (models.Message, error) {
	if asset.URI == "" {
		return models.Message{}, ErrEmptyMessage
	}
	temp := s.newTempMessage()
	temp.Images = []string{asset.URI}

	t, room, err := s.beginSend(temp)
	if err != nil {
		return models.Message{}, err
	}
	final, upErr := s.backend.UploadImages(ctx, room, []models.ImageAsset{asset})
	return s.finishSend(t, temp, final, upErr, "", ErrUploadFailed)
}

func (s *RoomSession) newTempMessage() models.Message {
	return models.Message{
		ID:         s.newTempID(),
		SenderID:   s.self.UserID,
		SenderRole: string(s.self.Role),
		CreatedAt:  s.now(),
	}
}

func (s *RoomSession) beginSend(temp models.Message) (ticket, models.Room, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ticket{}, models.Room{}, ErrNoActiveRoom
	}
	t := ticket{gen: s.gen, roomID: s.room.RoomID}
	room := s.room
	s.store.Append(temp)
	s.draft = ""
	s.mu.Unlock()

	s.notify(SessionEvent{Kind: SessionChanged, RoomID: t.roomID})
	return t, room, nil
}

func (s *RoomSession) finishSend(t ticket, temp, final models.Message, err error, restore string, class error) (models.Message, error) {
	s.mu.Lock()
	if !s.isCurrentLocked(t) {
		s.mu.Unlock()
		log.Debug().Str("room_id", t.roomID).Str("temp_id", temp.ID).Msg("send result for a closed room discarded")
		if err != nil {
			return models.Message{}, fmt.Errorf("%w: %w", class, err)
		}
		return final, nil
	}

	if err != nil {
		s.store.Remove(temp.ID)
		if restore != "" {
			s.draft = restore
		}
		s.mu.Unlock()
		log.Error().Err(err).Str("room_id", t.roomID).Msg("send failed, optimistic entry rolled back")
		s.notify(SessionEvent{Kind: SessionError, RoomID: t.roomID, Err: err})
		return models.Message{}, fmt.Errorf("%w: %w", class, err)
	}

	if final.CreatedAt.IsZero() {
		final.CreatedAt = temp.CreatedAt
	}
	if final.SenderID == "" {
		final.SenderID = temp.SenderID
		final.SenderRole = temp.SenderRole
	}
	s.store.Replace(temp.ID, final)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		raw, encErr := json.Marshal(final)
		if encErr == nil {
			encErr = conn.Send(models.EventSendMessage, models.RoomMessagePayload{RoomID: t.roomID, Message: raw})
		}
		if encErr != nil {
			log.Warn().Err(encErr).Str("message_id", final.ID).Msg("sendMessage broadcast failed")
		}
	}
	s.notify(SessionEvent{Kind: SessionChanged, RoomID: t.roomID})
	return final, nil
}

func (s *RoomSession) readLoop(ctx context.Context, conn realtime.Conn, t ticket, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-conn.Events():
			if !ok {
				if ctx.Err() == nil {
					log.Warn().Str("room_id", t.roomID).Msg("room channel closed by server")
				}
				return
			}
			s.handleEvent(t, env)
		}
	}
}

func (s *RoomSession) handleEvent(t ticket, env models.Envelope) {
	switch env.Event {
	case models.EventNewMessage, models.EventMessageUpdated:
		msg, roomID, err := decodeRoomMessage(env.Data)
		if err != nil {
			log.Debug().Err(err).Str("event", env.Event).Msg("dropping undecodable message")
			return
		}
		if roomID != "" && roomID != t.roomID {
			return
		}

		added := false
		s.mu.Lock()
		if !s.isCurrentLocked(t) {
			s.mu.Unlock()
			return
		}
		// an update without a timestamp keeps the stored one
		if _, known := s.store.Get(msg.ID); msg.CreatedAt.IsZero() && (!known || env.Event == models.EventNewMessage) {
			msg.CreatedAt = s.now()
		}
		if env.Event == models.EventNewMessage {
			added = s.store.Append(msg)
		} else {
			s.store.Upsert(msg)
		}
		s.mu.Unlock()

		if added && msg.SenderID != s.self.UserID {
			s.scheduleReadSync(t)
		}
		s.notify(SessionEvent{Kind: SessionChanged, RoomID: t.roomID})

	case models.EventMessageRead:
		var p models.MessageReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.MessageID == "" {
			log.Debug().Err(err).Msg("dropping bad messageRead payload")
			return
		}
		if p.RoomID != "" && p.RoomID != t.roomID {
			return
		}
		receipts := models.WireMessage{ID: p.MessageID, ReadBy: p.ReadBy}
		norm, err := receipts.Normalize()
		if err != nil {
			log.Debug().Err(err).Str("message_id", p.MessageID).Msg("dropping undecodable receipts")
			return
		}

		s.mu.Lock()
		if !s.isCurrentLocked(t) {
			s.mu.Unlock()
			return
		}
		s.store.MergeReadBy(p.MessageID, norm.ReadBy)
		s.mu.Unlock()
		s.notify(SessionEvent{Kind: SessionChanged, RoomID: t.roomID})

	default:
		log.Debug().Str("event", env.Event).Msg("ignoring room event")
	}
}

// scheduleReadSync (re)arms the debounced mark-read request.
func (s *RoomSession) scheduleReadSync(t ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isCurrentLocked(t) {
		return
	}
	if s.readTimer != nil {
		s.readTimer.Stop()
	}
	s.readTimer = time.AfterFunc(s.debounce, func() { s.syncReads(t) })
}

// syncReads marks the room read and merges the returned receipts.
// Failures are only logged; the next trigger retries the same unread set.
func (s *RoomSession) syncReads(t ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
	defer cancel()

	updated, err := s.backend.MarkRead(ctx, t.roomID)
	if err != nil {
		log.Warn().Err(err).Str("room_id", t.roomID).Msg("mark-read failed")
		return
	}

	s.mu.Lock()
	if !s.isCurrentLocked(t) {
		s.mu.Unlock()
		return
	}
	for _, m := range updated {
		s.store.MergeReadBy(m.ID, m.ReadBy)
	}
	conn := s.conn
	s.mu.Unlock()

	if len(updated) == 0 {
		return
	}
	if conn != nil {
		for _, m := range updated {
			payload := models.MessageReadPayload{
				RoomID:    t.roomID,
				MessageID: m.ID,
				ReadBy:    models.ToWireReceipts(m.ReadBy),
			}
			if err := conn.Send(models.EventMessageRead, payload); err != nil {
				log.Debug().Err(err).Str("message_id", m.ID).Msg("read receipt broadcast failed")
			}
		}
	}
	s.notify(SessionEvent{Kind: SessionChanged, RoomID: t.roomID})
}

func (s *RoomSession) isCurrentLocked(t ticket) bool {
	return s.state == StateActive && s.gen == t.gen && s.room.RoomID == t.roomID
}

// pair derives (customerID, workerID) from the local role.
func (s *RoomSession) pair(peerID string) (string, string) {
	if s.self.Role == models.RoleWorker {
		return peerID, s.self.UserID
	}
	return s.self.UserID, peerID
}

func (s *RoomSession) notify(ev SessionEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

// ascending reverses the server's newest-first page.
func ascending(page []models.Message, now func() time.Time) []models.Message {
	out := make([]models.Message, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		m := page[i]
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now()
		}
		out = append(out, m)
	}
	return out
}

// decodeRoomMessage accepts {roomId, message} as well as a bare message.
func decodeRoomMessage(data json.RawMessage) (models.Message, string, error) {
	var p models.RoomMessagePayload
	if err := json.Unmarshal(data, &p); err == nil && len(p.Message) > 0 && string(p.Message) != "null" {
		msg, err := models.DecodeMessage(p.Message)
		return msg, p.RoomID, err
	}
	var bare struct {
		RoomID string `json:"roomId"`
	}
	_ = json.Unmarshal(data, &bare)
	msg, err := models.DecodeMessage(data)
	return msg, bare.RoomID, err
}
