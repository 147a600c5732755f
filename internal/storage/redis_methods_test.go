package storage_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStorage(t *testing.T) *storage.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return storage.NewStorageService(nil, rdb)
}

func TestPresence_OnlineThenOffline(t *testing.T) {
	// Arrange
	s := newRedisStorage(t)
	t0 := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	// Act
	require.NoError(t, s.SetOnline("w1", t0))
	online, seen, err := s.Presence("w1")
	require.NoError(t, err)
	require.NoError(t, s.SetOffline("w1", t0.Add(time.Minute)))
	onlineAfter, seenAfter, errAfter := s.Presence("w1")

	// Assert
	assert.True(t, online)
	require.NotNil(t, seen)
	assert.True(t, seen.Equal(t0))
	require.NoError(t, errAfter)
	assert.False(t, onlineAfter)
	require.NotNil(t, seenAfter)
	assert.True(t, seenAfter.Equal(t0.Add(time.Minute)))
}

func TestPresence_UnknownUser(t *testing.T) {
	// Arrange
	s := newRedisStorage(t)

	// Act
	online, seen, err := s.Presence("nobody")

	// Assert
	require.NoError(t, err)
	assert.False(t, online)
	assert.Nil(t, seen)
}

func TestPublishSubscribe_RoundTrip(t *testing.T) {
	// Arrange
	s := newRedisStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := s.Subscribe(ctx)
	env, err := models.NewEnvelope(models.EventNewMessage, map[string]string{"roomId": "r1"})
	require.NoError(t, err)

	// Act
	require.NoError(t, s.PublishEvent(models.RoomFrame{RoomID: "r1", ExceptUserID: "c1", Envelope: env}))

	// Assert
	select {
	case frame := <-frames:
		assert.Equal(t, "r1", frame.RoomID)
		assert.Equal(t, "c1", frame.ExceptUserID)
		assert.Equal(t, models.EventNewMessage, frame.Envelope.Event)
		var data map[string]string
		require.NoError(t, json.Unmarshal(frame.Envelope.Data, &data))
		assert.Equal(t, "r1", data["roomId"])
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestSubscribe_ClosesOnCancel(t *testing.T) {
	// Arrange
	s := newRedisStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	frames := s.Subscribe(ctx)

	// Act
	cancel()

	// Assert
	select {
	case _, ok := <-frames:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed")
	}
}
