package chathub

import (
	"context"

	"homeservices/chatcore/internal/models"

	"github.com/rs/zerolog/log"
)

// StartPubSubListener forwards broadcast frames into Run until ctx is done.
func (m *ManagerService) StartPubSubListener(ctx context.Context) {
	for frame := range m.Storage.Subscribe(ctx) {
		select {
		case m.PubSubCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast publishes an event to a room, or to every presence connection
// when roomID is empty. It is safe to call from any goroutine.
func (m *ManagerService) Broadcast(roomID, exceptUserID, event string, data any) error {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return m.Storage.PublishEvent(models.RoomFrame{RoomID: roomID, ExceptUserID: exceptUserID, Envelope: env})
}

// deliver writes frame to the local connections it addresses.
// A client whose buffer is full is dropped.
func (m *ManagerService) deliver(frame models.RoomFrame) {
	var targets []Client
	if frame.RoomID == "" {
		for c := range m.Clients {
			if c.GetConnType() == models.ConnTypePresence {
				targets = append(targets, c)
			}
		}
	} else {
		for c := range m.rooms[frame.RoomID] {
			targets = append(targets, c)
		}
	}

	for _, c := range targets {
		if frame.ExceptUserID != "" && c.GetUserID() == frame.ExceptUserID {
			continue
		}
		select {
		case c.GetSendChannel() <- frame.Envelope:
		default:
			log.Warn().Str("user_id", c.GetUserID()).Str("room_id", frame.RoomID).Msg("client too slow, dropping")
			m.unregister(c)
		}
	}
}
