package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"homeservices/chatcore/internal/config"
	"homeservices/chatcore/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSDialer dials the backend's WebSocket endpoint.
type WSDialer struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
}

// NewWSDialer returns a dialer for endpoint authenticating with token.
func NewWSDialer(endpoint, token string) *WSDialer {
	return &WSDialer{
		URL:   endpoint,
		Token: token,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.DialTimeout,
		},
	}
}

// Dial opens a connection tagged with tags and starts its pumps.
func (d *WSDialer) Dial(ctx context.Context, tags Tags) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	if tags.UserID != "" {
		q.Set("userId", tags.UserID)
	}
	if tags.RoomID != "" {
		q.Set("roomId", tags.RoomID)
	}
	if tags.Type != "" {
		q.Set("type", tags.Type)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	ws, resp, err := d.Dialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s (status %d): %w", tags.Type, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", tags.Type, err)
	}

	return NewWSConn(ws, tags), nil
}

// WSConn wraps a gorilla connection with a read pump and a write pump.
type WSConn struct {
	tags   Tags
	conn   *websocket.Conn
	send   chan models.Envelope
	events chan models.Envelope
	done   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWSConn starts the pumps over an already established connection.
func NewWSConn(ws *websocket.Conn, tags Tags) *WSConn {
	c := &WSConn{
		tags:   tags,
		conn:   ws,
		send:   make(chan models.Envelope, config.SendBufferSize),
		events: make(chan models.Envelope, config.SendBufferSize),
		done:   make(chan struct{}),
	}
	c.wg.Add(2)
	go c.writePump()
	go c.readPump()
	return c
}

func (c *WSConn) Events() <-chan models.Envelope { return c.events }
func (c *WSConn) Done() <-chan struct{}          { return c.done }

// Send queues event for the write pump.
func (c *WSConn) Send(event string, data any) error {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *WSConn) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}

func (c *WSConn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump reads frames off the socket and hands them to Events.
func (c *WSConn) readPump() {
	defer func() {
		c.shutdown()
		close(c.events)
		c.wg.Done()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("type", c.tags.Type).Msg("realtime read failed")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			log.Debug().Err(err).Str("type", c.tags.Type).Msg("skipping undecodable frame")
			continue
		}

		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *WSConn) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.wg.Done()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Warn().Err(err).Str("event", env.Event).Msg("realtime write failed")
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			// flush what is already queued (e.g. a final userOffline) before closing
			for {
				select {
				case env := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
					if err := c.conn.WriteJSON(env); err != nil {
						return
					}
				default:
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
