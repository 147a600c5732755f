package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handshake struct {
	query url.Values
	auth  string
}

// echoServer upgrades every request and writes each received envelope back
// with its event name prefixed by "echo:".
func echoServer(t *testing.T) (*httptest.Server, chan handshake) {
	t.Helper()
	seen := make(chan handshake, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs := handshake{query: url.Values{}, auth: r.Header.Get("Authorization")}
		for k, v := range r.URL.Query() {
			hs.query[k] = v
		}
		seen <- hs

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var env models.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			if env.Event == "hangup" {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			env.Event = "echo:" + env.Event
			if err := ws.WriteJSON(env); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSDialer_SendsTagsAndToken(t *testing.T) {
	// Arrange
	srv, seen := echoServer(t)
	d := realtime.NewWSDialer(wsURL(srv), "secret-token")

	// Act
	conn, err := d.Dial(context.Background(), realtime.Tags{UserID: "c1", RoomID: "r1", Type: models.ConnTypeChat})
	require.NoError(t, err)
	defer conn.Close()

	// Assert
	hs := <-seen
	assert.Equal(t, "Bearer secret-token", hs.auth)
	assert.Equal(t, "c1", hs.query.Get("userId"))
	assert.Equal(t, "r1", hs.query.Get("roomId"))
	assert.Equal(t, "chat", hs.query.Get("type"))
}

func TestWSConn_RoundTrip(t *testing.T) {
	// Arrange
	srv, _ := echoServer(t)
	conn, err := realtime.NewWSDialer(wsURL(srv), "").Dial(context.Background(), realtime.Tags{UserID: "c1", Type: models.ConnTypePresence})
	require.NoError(t, err)
	defer conn.Close()

	// Act
	err = conn.Send(models.EventUserOnline, models.PresencePayload{UserID: "c1"})

	// Assert
	require.NoError(t, err)
	select {
	case env := <-conn.Events():
		assert.Equal(t, "echo:userOnline", env.Event)
		var p models.PresencePayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, "c1", p.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestWSConn_SendAfterCloseFails(t *testing.T) {
	// Arrange
	srv, _ := echoServer(t)
	conn, err := realtime.NewWSDialer(wsURL(srv), "").Dial(context.Background(), realtime.Tags{Type: models.ConnTypePresence})
	require.NoError(t, err)

	// Act
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	err = conn.Send(models.EventUpdateActivity, models.PresencePayload{UserID: "c1"})

	// Assert
	assert.ErrorIs(t, err, realtime.ErrClosed)
	select {
	case <-conn.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestWSConn_ServerCloseEndsEvents(t *testing.T) {
	// Arrange
	srv, _ := echoServer(t)
	conn, err := realtime.NewWSDialer(wsURL(srv), "").Dial(context.Background(), realtime.Tags{Type: models.ConnTypeChat})
	require.NoError(t, err)
	defer conn.Close()

	// Act
	require.NoError(t, conn.Send("hangup", nil))

	// Assert
	select {
	case _, ok := <-conn.Events():
		assert.False(t, ok, "events channel closes when the server hangs up")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel still open")
	}
}

func TestWSDialer_RejectedHandshake(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	// Act
	_, err := realtime.NewWSDialer(wsURL(srv), "bad").Dial(context.Background(), realtime.Tags{Type: models.ConnTypeChat})

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
