package handler

import (
	"net/http"

	"homeservices/chatcore/internal/chathub"
	"homeservices/chatcore/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// devserver: any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades a presence or room connection. Tags come from the
// query: type (presence|chat), roomId for chat, userId which must match the token.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	me := identityFrom(c)

	if uid := c.Query("userId"); uid != "" && uid != me.UserID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "userId does not match token"})
		return
	}

	connType := c.DefaultQuery("type", models.ConnTypePresence)
	roomID := ""
	switch connType {
	case models.ConnTypePresence:
	case models.ConnTypeChat:
		roomID = c.Query("roomId")
		if roomID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
			return
		}
		room, err := h.Storage.GetRoomByID(roomID)
		if err != nil || !room.HasMember(me.UserID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not a member of this room"})
			return
		}
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown connection type"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied
		log.Warn().Err(err).Str("user_id", me.UserID).Msg("ws upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, me.UserID, roomID, connType)

	select {
	case h.Hub.RegisterCh <- client:
	case <-h.Hub.Done():
		conn.Close()
		return
	}
	client.Run()
}
