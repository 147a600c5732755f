// Package chathub is the devserver's real-time hub. It tracks presence and
// room connections and fans events out through the storage broadcast channel,
// so several devserver instances behind one Redis behave as one.
package chathub

import (
	"context"
	"encoding/json"
	"time"

	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/storage"

	"github.com/rs/zerolog/log"
)

// Inbound is a frame read from a client.
type Inbound struct {
	Client   Client
	Envelope models.Envelope
}

// ManagerService owns every connection; all maps are touched by Run only.
type ManagerService struct {
	Clients  map[Client]struct{}
	rooms    map[string]map[Client]struct{}
	presence map[string]int // presence connections per user

	// Channels
	IncomingCh   chan Inbound
	RegisterCh   chan Client
	UnregisterCh chan Client
	PubSubCh     chan models.RoomFrame

	Storage storage.Storage
	now     func() time.Time
	done    chan struct{}
}

func NewManagerService(s storage.Storage) *ManagerService {
	return &ManagerService{
		Clients:      make(map[Client]struct{}),
		rooms:        make(map[string]map[Client]struct{}),
		presence:     make(map[string]int),
		IncomingCh:   make(chan Inbound),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		PubSubCh:     make(chan models.RoomFrame),
		Storage:      s,
		now:          time.Now,
		done:         make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every client.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)
	go m.StartPubSubListener(ctx)

	for {
		select {
		case <-ctx.Done():
			for c := range m.Clients {
				c.Close()
			}
			log.Info().Int("clients", len(m.Clients)).Msg("hub stopped")
			return

		case c := <-m.RegisterCh:
			m.register(c)

		case c := <-m.UnregisterCh:
			m.unregister(c)

		case in := <-m.IncomingCh:
			m.handleIncoming(in)

		case frame := <-m.PubSubCh:
			m.deliver(frame)
		}
	}
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// submit hands an inbound frame to Run. It reports false once the hub is gone.
func (m *ManagerService) submit(in Inbound) bool {
	select {
	case m.IncomingCh <- in:
		return true
	case <-m.done:
		return false
	}
}

func (m *ManagerService) unregisterLater(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

func (m *ManagerService) register(c Client) {
	m.Clients[c] = struct{}{}
	switch c.GetConnType() {
	case models.ConnTypePresence:
		m.presence[c.GetUserID()]++
	case models.ConnTypeChat:
		m.joinRoom(c, c.GetRoomID())
	}
	log.Debug().Str("user_id", c.GetUserID()).Str("type", c.GetConnType()).Str("room_id", c.GetRoomID()).Msg("client registered")
}

func (m *ManagerService) unregister(c Client) {
	if _, ok := m.Clients[c]; !ok {
		return
	}
	delete(m.Clients, c)
	m.leaveRoom(c)
	c.Close()

	if c.GetConnType() != models.ConnTypePresence {
		return
	}
	userID := c.GetUserID()
	m.presence[userID]--
	if m.presence[userID] > 0 {
		return
	}
	delete(m.presence, userID)
	// connection dropped without a userOffline
	m.goOffline(userID)
}

func (m *ManagerService) joinRoom(c Client, roomID string) {
	if roomID == "" {
		return
	}
	set, ok := m.rooms[roomID]
	if !ok {
		set = make(map[Client]struct{})
		m.rooms[roomID] = set
	}
	set[c] = struct{}{}
}

func (m *ManagerService) leaveRoom(c Client) {
	roomID := c.GetRoomID()
	set, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m.rooms, roomID)
	}
}

func (m *ManagerService) handleIncoming(in Inbound) {
	c, env := in.Client, in.Envelope
	userID := c.GetUserID()

	switch env.Event {
	case models.EventUserOnline, models.EventUpdateActivity:
		if c.GetConnType() != models.ConnTypePresence {
			return
		}
		if err := m.Storage.SetOnline(userID, m.now()); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("failed to store presence")
		}
		if env.Event == models.EventUserOnline {
			m.publish(models.RoomFrame{ExceptUserID: userID}, models.EventUserOnline, models.PresencePayload{UserID: userID})
		}

	case models.EventUserOffline:
		if c.GetConnType() == models.ConnTypePresence {
			m.goOffline(userID)
		}

	case models.EventJoinRoom:
		var p models.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		if p.RoomID == c.GetRoomID() {
			return
		}
		room, err := m.Storage.GetRoomByID(p.RoomID)
		if err != nil || !room.HasMember(userID) {
			log.Warn().Err(err).Str("user_id", userID).Str("room_id", p.RoomID).Msg("joinRoom refused")
			return
		}
		m.leaveRoom(c)
		c.SetRoomID(p.RoomID)
		m.joinRoom(c, p.RoomID)

	case models.EventSendMessage:
		roomID := c.GetRoomID()
		var p models.RoomMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || roomID == "" || len(p.Message) == 0 {
			return
		}
		if p.RoomID != "" && p.RoomID != roomID {
			return
		}
		p.RoomID = roomID
		m.publish(models.RoomFrame{RoomID: roomID, ExceptUserID: userID}, models.EventNewMessage, p)

	case models.EventMessageRead:
		roomID := c.GetRoomID()
		if roomID == "" {
			return
		}
		m.publish(models.RoomFrame{RoomID: roomID, ExceptUserID: userID}, models.EventMessageRead, env.Data)

	default:
		log.Debug().Str("event", env.Event).Str("user_id", userID).Msg("ignoring client event")
	}
}

func (m *ManagerService) goOffline(userID string) {
	at := m.now()
	if err := m.Storage.SetOffline(userID, at); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to store presence")
	}
	if err := m.Storage.UpdateLastSeen(userID, at); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to persist last seen")
	}
	m.publish(models.RoomFrame{ExceptUserID: userID}, models.EventUserOffline, models.PresencePayload{UserID: userID})
}

func (m *ManagerService) publish(frame models.RoomFrame, event string, data any) {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode event")
		return
	}
	frame.Envelope = env
	if err := m.Storage.PublishEvent(frame); err != nil {
		log.Error().Err(err).Str("event", event).Str("room_id", frame.RoomID).Msg("failed to publish event")
	}
}
