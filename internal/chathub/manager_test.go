package chathub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"homeservices/chatcore/internal/chathub"
	"homeservices/chatcore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

func startHub(t *testing.T, s *MockStorage) *chathub.ManagerService {
	t.Helper()
	hub := chathub.NewManagerService(s)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

// capturePublished routes every PublishEvent call into the returned channel.
func capturePublished(s *MockStorage) chan models.RoomFrame {
	published := make(chan models.RoomFrame, 16)
	s.On("PublishEvent", mock.AnythingOfType("models.RoomFrame")).
		Run(func(args mock.Arguments) { published <- args.Get(0).(models.RoomFrame) }).
		Return(nil)
	return published
}

func nextFrame(t *testing.T, ch <-chan models.RoomFrame) models.RoomFrame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(waitFor):
		t.Fatal("no frame published")
		return models.RoomFrame{}
	}
}

func envelope(t *testing.T, event string, data any) models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(event, data)
	require.NoError(t, err)
	return env
}

func TestManager_DeliverPresenceFrameSkipsSender(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	hub := startHub(t, storageMock)

	clientA := newMockClient("user_A", models.ConnTypePresence, "")
	clientB := newMockClient("user_B", models.ConnTypePresence, "")
	chatC := newMockClient("user_C", models.ConnTypeChat, "room1")
	hub.RegisterCh <- clientA
	hub.RegisterCh <- clientB
	hub.RegisterCh <- chatC

	// Act
	storageMock.Frames <- models.RoomFrame{
		ExceptUserID: "user_A",
		Envelope:     envelope(t, models.EventUserOnline, models.PresencePayload{UserID: "user_A"}),
	}

	// Assert
	select {
	case env := <-clientB.RecvChannel:
		assert.Equal(t, models.EventUserOnline, env.Event)
	case <-time.After(waitFor):
		t.Fatal("clientB did not receive presence event")
	}
	assert.Empty(t, clientA.RecvChannel)
	assert.Empty(t, chatC.RecvChannel, "chat connections don't get presence events")
}

func TestManager_DeliverRoomFrameOnlyToRoom(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	hub := startHub(t, storageMock)

	sender := newMockClient("user_A", models.ConnTypeChat, "room1")
	peer := newMockClient("user_B", models.ConnTypeChat, "room1")
	other := newMockClient("user_C", models.ConnTypeChat, "room2")
	hub.RegisterCh <- sender
	hub.RegisterCh <- peer
	hub.RegisterCh <- other

	// Act
	storageMock.Frames <- models.RoomFrame{
		RoomID:       "room1",
		ExceptUserID: "user_A",
		Envelope:     envelope(t, models.EventNewMessage, map[string]string{"id": "m1"}),
	}

	// Assert
	select {
	case env := <-peer.RecvChannel:
		assert.Equal(t, models.EventNewMessage, env.Event)
	case <-time.After(waitFor):
		t.Fatal("peer did not receive room event")
	}
	assert.Empty(t, sender.RecvChannel)
	assert.Empty(t, other.RecvChannel)
}

func TestManager_UserOnlineIsStoredAndPublished(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	storageMock.On("SetOnline", "user_A", mock.AnythingOfType("time.Time")).Return(nil)
	published := capturePublished(storageMock)
	hub := startHub(t, storageMock)

	clientA := newMockClient("user_A", models.ConnTypePresence, "")
	hub.RegisterCh <- clientA

	// Act
	hub.IncomingCh <- chathub.Inbound{Client: clientA, Envelope: envelope(t, models.EventUserOnline, models.PresencePayload{UserID: "spoofed"})}

	// Assert
	frame := nextFrame(t, published)
	assert.Equal(t, "", frame.RoomID)
	assert.Equal(t, "user_A", frame.ExceptUserID)
	assert.Equal(t, models.EventUserOnline, frame.Envelope.Event)

	var p models.PresencePayload
	require.NoError(t, json.Unmarshal(frame.Envelope.Data, &p))
	assert.Equal(t, "user_A", p.UserID, "the connection's user wins over the payload")
	storageMock.AssertCalled(t, "SetOnline", "user_A", mock.AnythingOfType("time.Time"))
}

func TestManager_HeartbeatRefreshesWithoutBroadcast(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	touched := make(chan string, 1)
	storageMock.On("SetOnline", "user_A", mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { touched <- args.String(0) }).
		Return(nil)
	hub := startHub(t, storageMock)

	clientA := newMockClient("user_A", models.ConnTypePresence, "")
	hub.RegisterCh <- clientA

	// Act
	hub.IncomingCh <- chathub.Inbound{Client: clientA, Envelope: envelope(t, models.EventUpdateActivity, models.PresencePayload{UserID: "user_A"})}

	// Assert
	select {
	case id := <-touched:
		assert.Equal(t, "user_A", id)
	case <-time.After(waitFor):
		t.Fatal("heartbeat not stored")
	}
	storageMock.AssertNotCalled(t, "PublishEvent", mock.Anything)
}

func TestManager_DroppedPresenceConnectionGoesOffline(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	storageMock.On("SetOffline", "user_A", mock.AnythingOfType("time.Time")).Return(nil)
	storageMock.On("UpdateLastSeen", "user_A", mock.AnythingOfType("time.Time")).Return(nil)
	published := capturePublished(storageMock)
	hub := startHub(t, storageMock)

	first := newMockClient("user_A", models.ConnTypePresence, "")
	second := newMockClient("user_A", models.ConnTypePresence, "")
	hub.RegisterCh <- first
	hub.RegisterCh <- second

	// Act: the first of two connections goes away
	hub.UnregisterCh <- first

	// Assert: still online through the second one
	select {
	case f := <-published:
		t.Fatalf("unexpected publish %+v", f)
	case <-time.After(100 * time.Millisecond):
	}

	// Act
	hub.UnregisterCh <- second

	// Assert
	frame := nextFrame(t, published)
	assert.Equal(t, models.EventUserOffline, frame.Envelope.Event)
	assert.Equal(t, "user_A", frame.ExceptUserID)
	select {
	case <-second.closed:
	case <-time.After(waitFor):
		t.Fatal("client not closed")
	}
}

func TestManager_SendMessageRelayedAsNewMessage(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	published := capturePublished(storageMock)
	hub := startHub(t, storageMock)

	sender := newMockClient("user_A", models.ConnTypeChat, "room1")
	hub.RegisterCh <- sender

	raw := json.RawMessage(`{"id":"m1","content":"hi","senderId":"user_A"}`)

	// Act
	hub.IncomingCh <- chathub.Inbound{Client: sender, Envelope: envelope(t, models.EventSendMessage, models.RoomMessagePayload{Message: raw})}

	// Assert
	frame := nextFrame(t, published)
	assert.Equal(t, "room1", frame.RoomID)
	assert.Equal(t, "user_A", frame.ExceptUserID)
	assert.Equal(t, models.EventNewMessage, frame.Envelope.Event)

	var p models.RoomMessagePayload
	require.NoError(t, json.Unmarshal(frame.Envelope.Data, &p))
	assert.Equal(t, "room1", p.RoomID)
	assert.JSONEq(t, string(raw), string(p.Message))
}

func TestManager_SendMessageForOtherRoomIgnored(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	hub := startHub(t, storageMock)

	sender := newMockClient("user_A", models.ConnTypeChat, "room1")
	hub.RegisterCh <- sender

	// Act
	hub.IncomingCh <- chathub.Inbound{Client: sender, Envelope: envelope(t, models.EventSendMessage, models.RoomMessagePayload{
		RoomID:  "room2",
		Message: json.RawMessage(`{"id":"m1"}`),
	})}
	// a second frame makes sure the first one has been handled
	hub.IncomingCh <- chathub.Inbound{Client: sender, Envelope: models.Envelope{Event: "noop"}}

	// Assert
	storageMock.AssertNotCalled(t, "PublishEvent", mock.Anything)
}

func TestManager_JoinRoomRequiresMembership(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	storageMock.On("GetRoomByID", "room2").Return(&models.ChatRoom{RoomID: "room2", CustomerID: "c1", WorkerID: "w1"}, nil)
	hub := startHub(t, storageMock)

	intruder := newMockClient("user_X", models.ConnTypeChat, "room1")
	hub.RegisterCh <- intruder

	// Act
	hub.IncomingCh <- chathub.Inbound{Client: intruder, Envelope: envelope(t, models.EventJoinRoom, models.JoinRoomPayload{RoomID: "room2"})}
	hub.IncomingCh <- chathub.Inbound{Client: intruder, Envelope: models.Envelope{Event: "noop"}}

	// Assert
	assert.Equal(t, "room1", intruder.GetRoomID())
	storageMock.AssertCalled(t, "GetRoomByID", "room2")
}

func TestManager_StopClosesClients(t *testing.T) {
	// Arrange
	storageMock := newMockStorage()
	hub := chathub.NewManagerService(storageMock)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := newMockClient("user_A", models.ConnTypePresence, "")
	hub.RegisterCh <- client

	// Act
	cancel()

	// Assert
	select {
	case <-hub.Done():
	case <-time.After(waitFor):
		t.Fatal("hub did not stop")
	}
	select {
	case <-client.closed:
	default:
		t.Error("client not closed on shutdown")
	}
}
