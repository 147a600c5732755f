package handler

import (
	"errors"
	"net/http"
	"time"

	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// contactJSON is the contact list entry shape.
type contactJSON struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	IsOnline    bool       `json:"isOnline"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
	UnreadCount int64      `json:"unreadCount"`
}

func (h *Handler) toContact(u models.User, unread int64, withActivity bool) contactJSON {
	out := contactJSON{ID: u.ID, Name: u.DisplayName, Email: u.Email, UnreadCount: unread}
	if !withActivity {
		return out
	}
	out.LastSeenAt = u.LastSeenAt
	online, seen, err := h.Storage.Presence(u.ID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", u.ID).Msg("presence lookup failed")
		return out
	}
	out.IsOnline = online
	if seen != nil {
		out.LastSeenAt = seen
	}
	return out
}

// Me returns the caller's profile.
func (h *Handler) Me(c *gin.Context) {
	me := identityFrom(c)
	user, err := h.Storage.GetUserByID(me.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    user.ID,
		"role":  user.Role,
		"name":  user.DisplayName,
		"email": user.Email,
	})
}

// ApprovedWorkers is the customer's contact list.
func (h *Handler) ApprovedWorkers(c *gin.Context) {
	me := identityFrom(c)
	if me.Role != models.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{"error": "Customers only"})
		return
	}
	withActivity := c.Query("includeActivity") == "true"

	workers, err := h.Storage.ListApprovedWorkers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list workers"})
		return
	}

	out := make([]contactJSON, 0, len(workers))
	for _, w := range workers {
		var unread int64
		room, err := h.Storage.FindRoom(me.UserID, w.ID)
		if err != nil {
			log.Warn().Err(err).Str("worker_id", w.ID).Msg("room lookup failed")
		}
		if room != nil {
			if unread, err = h.Storage.CountUnread(room.RoomID, me.UserID); err != nil {
				log.Warn().Err(err).Str("room_id", room.RoomID).Msg("unread count failed")
			}
		}
		out = append(out, h.toContact(w, unread, withActivity))
	}
	c.JSON(http.StatusOK, out)
}
