// Package handler serves the devserver's REST contract and WebSocket endpoint.
package handler

import (
	"errors"
	"net/http"
	"time"

	"homeservices/chatcore/internal/chathub"
	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler holds the hub, the storage and the token secret.
type Handler struct {
	Hub       *chathub.ManagerService
	Storage   storage.Storage
	Secret    []byte
	UploadDir string

	now func() time.Time
}

func NewHandler(hub *chathub.ManagerService, s storage.Storage, secret []byte, uploadDir string) *Handler {
	return &Handler{Hub: hub, Storage: s, Secret: secret, UploadDir: uploadDir, now: time.Now}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r *gin.Engine) {
	r.POST("/auth/token", h.IssueToken)
	r.Static("/uploads", h.UploadDir)

	api := r.Group("/api", h.AuthRequired())
	api.GET("/users/me", h.Me)
	api.GET("/users/approved-workers", h.ApprovedWorkers)
	api.GET("/chat/my-chats", h.MyChats)
	api.GET("/chat/rooms", h.ResolveRoom)
	api.GET("/chat/rooms/:roomId/messages", h.Messages)
	api.POST("/chat/rooms/:roomId/messages", h.PostMessage)
	api.POST("/chat/rooms/:roomId/mark-read", h.MarkRead)

	r.GET("/ws", h.AuthRequired(), h.ServeWebSocket)
}

// memberRoom loads the :roomId room and checks that the caller belongs to it.
// It writes the error response itself and returns nil on failure.
func (h *Handler) memberRoom(c *gin.Context) *models.ChatRoom {
	me := identityFrom(c)
	room, err := h.Storage.GetRoomByID(c.Param("roomId"))
	if errors.Is(err, storage.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return nil
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
		return nil
	}
	if !room.HasMember(me.UserID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not a member of this room"})
		return nil
	}
	return room
}
