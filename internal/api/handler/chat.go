package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"homeservices/chatcore/internal/config"
	"homeservices/chatcore/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const maxPageSize = 200

// MyChats is the worker's contact list: every customer with a room.
func (h *Handler) MyChats(c *gin.Context) {
	me := identityFrom(c)
	if me.Role != models.RoleWorker {
		c.JSON(http.StatusForbidden, gin.H{"error": "Workers only"})
		return
	}
	withActivity := c.Query("includeActivity") == "true"

	chats, err := h.Storage.ListChatPartners(me.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list chats"})
		return
	}

	out := make([]gin.H, 0, len(chats))
	for _, chat := range chats {
		out = append(out, gin.H{
			"roomId":      chat.RoomID,
			"user":        h.toContact(chat.Peer, 0, withActivity),
			"unreadCount": chat.Unread,
		})
	}
	c.JSON(http.StatusOK, out)
}

// ResolveRoom returns the pair's room id, creating the room on first use.
func (h *Handler) ResolveRoom(c *gin.Context) {
	me := identityFrom(c)
	customerID, workerID := c.Query("customerId"), c.Query("workerId")
	if customerID == "" || workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customerId and workerId are required"})
		return
	}
	if me.UserID != customerID && me.UserID != workerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
		return
	}

	room, err := h.Storage.ResolveRoom(customerID, workerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": room.RoomID})
}

// Messages returns the room's latest messages, newest first.
func (h *Handler) Messages(c *gin.Context) {
	room := h.memberRoom(c)
	if room == nil {
		return
	}
	limit := config.MessagePageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}

	history, err := h.Storage.GetChatHistory(room.RoomID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}
	msgs := make([]models.Message, 0, len(history))
	for _, row := range history {
		msgs = append(msgs, row.ToMessage())
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage persists a text message ({content}) or an image message
// (multipart "images" files) and pushes it to the room's other sockets.
func (h *Handler) PostMessage(c *gin.Context) {
	room := h.memberRoom(c)
	if room == nil {
		return
	}
	me := identityFrom(c)

	row := models.ChatHistory{
		RoomID:     room.RoomID,
		SenderID:   me.UserID,
		SenderRole: string(me.Role),
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		urls, err := h.saveImages(c)
		if err != nil {
			log.Warn().Err(err).Str("room_id", room.RoomID).Msg("image upload rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		row.Images = pq.StringArray(urls)
		row.Content = strings.TrimSpace(c.PostForm("content"))
	} else {
		var req struct {
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
			return
		}
		row.Content = strings.TrimSpace(req.Content)
		if row.Content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}
	}

	if err := h.Storage.SaveMessage(&row); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save message"})
		return
	}
	msg := row.ToMessage()
	if h.Hub != nil {
		if err := h.Hub.Broadcast(room.RoomID, me.UserID, models.EventNewMessage, gin.H{"roomId": room.RoomID, "message": msg}); err != nil {
			log.Warn().Err(err).Str("room_id", room.RoomID).Msg("newMessage push failed")
		}
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) saveImages(c *gin.Context) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}
	files := form.File["images"]
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in upload")
	}

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		ct := fh.Header.Get("Content-Type")
		if ct != "" && !strings.HasPrefix(ct, "image/") {
			return nil, fmt.Errorf("%s is not an image", fh.Filename)
		}
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if ext == "" {
			ext = ".jpg"
		}
		name := uuid.NewString() + ext
		if err := c.SaveUploadedFile(fh, filepath.Join(h.UploadDir, name)); err != nil {
			return nil, fmt.Errorf("store %s: %w", fh.Filename, err)
		}
		urls = append(urls, publicURL(c, "/uploads/"+name))
	}
	return urls, nil
}

func publicURL(c *gin.Context, path string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + path
}

// MarkRead marks the room read for the caller and pushes the new receipts.
func (h *Handler) MarkRead(c *gin.Context) {
	room := h.memberRoom(c)
	if room == nil {
		return
	}
	me := identityFrom(c)

	rows, err := h.Storage.MarkRoomRead(room.RoomID, me.UserID, h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark read"})
		return
	}

	updated := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msg := row.ToMessage()
		updated = append(updated, msg)
		if h.Hub == nil {
			continue
		}
		payload := models.MessageReadPayload{RoomID: room.RoomID, MessageID: msg.ID, ReadBy: models.ToWireReceipts(msg.ReadBy)}
		if err := h.Hub.Broadcast(room.RoomID, me.UserID, models.EventMessageRead, payload); err != nil {
			log.Warn().Err(err).Str("room_id", room.RoomID).Msg("messageRead push failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"updatedMessages": updated})
}
