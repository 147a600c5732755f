package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"homeservices/chatcore/internal/chat"
	"homeservices/chatcore/internal/localization"
	"homeservices/chatcore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceTracker_StartAnnouncesOnline(t *testing.T) {
	// Arrange
	d := &fakeDialer{}
	contacts := chat.NewContactList(models.Contact{ID: "w1"})
	p := chat.NewPresenceTracker(d, contacts, chat.WithHeartbeatInterval(time.Hour))

	// Act
	err := p.Start(context.Background(), "c1")
	defer p.Stop()

	// Assert
	require.NoError(t, err)
	assert.True(t, p.Running())
	conn := d.Last()
	require.NotNil(t, conn)
	assert.Equal(t, models.ConnTypePresence, conn.tags.Type)
	assert.Equal(t, "c1", conn.tags.UserID)
	online := conn.Sent(models.EventUserOnline)
	require.Len(t, online, 1)
	assert.JSONEq(t, `{"userId":"c1"}`, string(online[0].Data))
}

func TestPresenceTracker_StartIsIdempotentPerUser(t *testing.T) {
	// Arrange
	d := &fakeDialer{}
	p := chat.NewPresenceTracker(d, chat.NewContactList(), chat.WithHeartbeatInterval(time.Hour))
	defer p.Stop()

	// Act
	require.NoError(t, p.Start(context.Background(), "c1"))
	require.NoError(t, p.Start(context.Background(), "c1"))
	first := d.Last()
	require.NoError(t, p.Start(context.Background(), "c2"))

	// Assert
	assert.Equal(t, 2, d.Count())
	assert.True(t, first.Closed(), "switching users stops the old session")
	assert.Len(t, first.Sent(models.EventUserOffline), 1)
}

func TestPresenceTracker_HeartbeatSendsActivity(t *testing.T) {
	// Arrange
	d := &fakeDialer{}
	p := chat.NewPresenceTracker(d, chat.NewContactList(), chat.WithHeartbeatInterval(10*time.Millisecond))

	// Act
	require.NoError(t, p.Start(context.Background(), "c1"))
	defer p.Stop()

	// Assert
	conn := d.Last()
	assert.Eventually(t, func() bool {
		return len(conn.Sent(models.EventUpdateActivity)) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceTracker_AppliesContactEvents(t *testing.T) {
	// Arrange
	d := &fakeDialer{}
	seenAt := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	contacts := chat.NewContactList(models.Contact{ID: "w1"}, models.Contact{ID: "w2"})
	p := chat.NewPresenceTracker(d, contacts,
		chat.WithHeartbeatInterval(time.Hour),
		chat.WithPresenceClock(func() time.Time { return seenAt }),
	)
	require.NoError(t, p.Start(context.Background(), "c1"))
	defer p.Stop()
	conn := d.Last()

	// Act
	conn.Push(models.EventUserOnline, models.PresencePayload{UserID: "w1"})
	conn.Push(models.EventUserOnline, models.PresencePayload{UserID: "stranger"})
	conn.Push(models.EventUserOnline, models.PresencePayload{UserID: "w2"})
	conn.Push(models.EventUserOffline, models.PresencePayload{UserID: "w2"})

	// Assert
	require.Eventually(t, func() bool {
		w1, _ := contacts.Get("w1")
		w2, _ := contacts.Get("w2")
		return w1.IsOnline && !w2.IsOnline && w2.LastSeenAt != nil
	}, time.Second, 5*time.Millisecond)
	w1, _ := contacts.Get("w1")
	require.NotNil(t, w1.LastSeenAt)
	assert.Equal(t, seenAt, *w1.LastSeenAt)
	assert.Equal(t, 2, contacts.Len(), "unknown ids are not added")
}

func TestPresenceTracker_OfflineForUnknownContactIsNoop(t *testing.T) {
	// Arrange
	d := &fakeDialer{}
	lastSeen := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)
	contacts := chat.NewContactList(
		models.Contact{ID: "w1", IsOnline: true, LastSeenAt: &lastSeen},
		models.Contact{ID: "w2"},
	)
	before := contacts.Snapshot()
	p := chat.NewPresenceTracker(d, contacts, chat.WithHeartbeatInterval(time.Hour))
	require.NoError(t, p.Start(context.Background(), "c1"))
	defer p.Stop()
	conn := d.Last()

	// Act
	conn.Push(models.EventUserOffline, models.PresencePayload{UserID: "ghost"})
	conn.Push(models.EventUserOnline, models.PresencePayload{UserID: "w2"})

	// Assert
	require.Eventually(t, func() bool {
		w2, _ := contacts.Get("w2")
		return w2.IsOnline
	}, time.Second, 5*time.Millisecond)
	_, found := contacts.Get("ghost")
	assert.False(t, found)
	w1, _ := contacts.Get("w1")
	assert.Equal(t, before[0], w1, "other contacts untouched")
	assert.Equal(t, 2, contacts.Len())
}

func TestPresenceTracker_ConcurrentStartsKeepOneConnection(t *testing.T) {
	// Arrange
	d := &fakeDialer{delay: 20 * time.Millisecond}
	p := chat.NewPresenceTracker(d, chat.NewContactList(), chat.WithHeartbeatInterval(time.Hour))
	var wg sync.WaitGroup

	// Act
	for _, user := range []string{"c1", "c2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Start(context.Background(), user)
		}()
	}
	wg.Wait()

	// Assert
	assert.Equal(t, 2, d.Count())
	assert.Equal(t, 1, d.Open(), "the first connection is closed when the second user starts")
	p.Stop()
	assert.Zero(t, d.Open())
}

func TestPresenceTracker_DialFailureIsSilent(t *testing.T) {
	// Arrange
	d := &fakeDialer{err: errors.New("refused")}
	contacts := chat.NewContactList(models.Contact{ID: "w1", IsOnline: true})
	p := chat.NewPresenceTracker(d, contacts)

	// Act
	err := p.Start(context.Background(), "c1")
	p.Stop()

	// Assert
	assert.NoError(t, err)
	assert.False(t, p.Running())
	w1, _ := contacts.Get("w1")
	assert.True(t, w1.IsOnline, "contacts untouched")
}

func TestPresenceTracker_StopAnnouncesOfflineOnce(t *testing.T) {
	// Arrange
	d := &fakeDialer{}
	p := chat.NewPresenceTracker(d, chat.NewContactList(), chat.WithHeartbeatInterval(time.Hour))
	require.NoError(t, p.Start(context.Background(), "c1"))
	conn := d.Last()

	// Act
	p.Stop()
	p.Stop()

	// Assert
	assert.False(t, p.Running())
	assert.True(t, conn.Closed())
	assert.Len(t, conn.Sent(models.EventUserOffline), 1)
}

func TestActivityLabel(t *testing.T) {
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	tests := []struct {
		name     string
		online   bool
		lastSeen *time.Time
		want     string
	}{
		{"online wins", true, at(48 * time.Hour), "Online"},
		{"never seen", false, nil, "Offline"},
		{"zero time", false, &time.Time{}, "Offline"},
		{"just now", false, at(4 * time.Minute), "Just now"},
		{"minutes", false, at(5 * time.Minute), "5m ago"},
		{"hours", false, at(3*time.Hour + 10*time.Minute), "3h ago"},
		{"days", false, at(50 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chat.ActivityLabel(tt.online, tt.lastSeen, now, nil))
		})
	}
}

func TestActivityLabel_Localized(t *testing.T) {
	// Arrange
	l := localization.Default("uk")
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	// Act
	label := chat.ActivityLabel(true, nil, now, l)

	// Assert
	assert.Equal(t, l.T("presence.online"), label)
	assert.NotEqual(t, "Online", label)
}
