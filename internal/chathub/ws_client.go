package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"homeservices/chatcore/internal/config"
	"homeservices/chatcore/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketClient implements Client over a gorilla connection.
type WebSocketClient struct {
	UserID   string
	RoomID   string
	ConnType string
	Conn     *websocket.Conn
	Hub      *ManagerService
	Send     chan models.Envelope

	closeOnce sync.Once
}

// NewWebSocketClient wires conn to hub. The client still has to be registered and Run.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID, roomID, connType string) *WebSocketClient {
	return &WebSocketClient{
		UserID:   userID,
		RoomID:   roomID,
		ConnType: connType,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan models.Envelope, config.SendBufferSize),
	}
}

func (c *WebSocketClient) GetUserID() string                      { return c.UserID }
func (c *WebSocketClient) GetRoomID() string                      { return c.RoomID }
func (c *WebSocketClient) SetRoomID(id string)                    { c.RoomID = id }
func (c *WebSocketClient) GetConnType() string                    { return c.ConnType }
func (c *WebSocketClient) GetSendChannel() chan<- models.Envelope { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which makes writePump send a close frame and exit.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.unregisterLater(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", c.UserID).Msg("ws read failed")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			log.Debug().Err(err).Str("user_id", c.UserID).Msg("dropping malformed frame")
			continue
		}

		if !c.Hub.submit(Inbound{Client: c, Envelope: env}) {
			return
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Str("user_id", c.UserID).Msg("ws write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
