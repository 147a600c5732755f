// Package storage is the devserver's persistence: users, rooms and messages
// in PostgreSQL, presence and event fan-out in Redis.
package storage

import (
	"context"
	"errors"
	"time"

	"homeservices/chatcore/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Redis keys.
const (
	broadcastChannel = "chat:broadcast"
	onlineSetKey     = "presence:online"
	lastSeenHashKey  = "presence:last_seen"
)

// ChatSummary is one entry of a worker's chat list.
type ChatSummary struct {
	RoomID string
	Peer   models.User
	Unread int64
}

type Storage interface {
	SaveUser(user *models.User) error
	GetUserByID(id string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	ListApprovedWorkers() ([]models.User, error)
	ListChatPartners(workerID string) ([]ChatSummary, error)
	UpdateLastSeen(userID string, at time.Time) error

	ResolveRoom(customerID, workerID string) (*models.ChatRoom, error)
	FindRoom(customerID, workerID string) (*models.ChatRoom, error)
	GetRoomByID(roomID string) (*models.ChatRoom, error)

	SaveMessage(msg *models.ChatHistory) error
	GetChatHistory(roomID string, limit int) ([]models.ChatHistory, error)
	MarkRoomRead(roomID, userID string, at time.Time) ([]models.ChatHistory, error)
	CountUnread(roomID, userID string) (int64, error)

	SetOnline(userID string, at time.Time) error
	SetOffline(userID string, at time.Time) error
	Presence(userID string) (online bool, lastSeen *time.Time, err error)

	PublishEvent(frame models.RoomFrame) error
	Subscribe(ctx context.Context) <-chan models.RoomFrame
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}
