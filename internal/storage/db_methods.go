package storage

import (
	"errors"
	"fmt"
	"time"

	"homeservices/chatcore/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// unreadScope selects the messages of roomID that userID has not read yet.
func unreadScope(roomID, userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.ChatHistory{}).
			Where("room_id = ? AND sender_id <> ?", roomID, userID).
			Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = chat_histories.id AND r.user_id = ?)", userID)
	}
}

// SaveUser inserts or updates the user row.
func (s *Service) SaveUser(user *models.User) error {
	return s.DB.Save(user).Error
}

func (s *Service) GetUserByID(id string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListApprovedWorkers returns every worker a customer may contact.
func (s *Service) ListApprovedWorkers() ([]models.User, error) {
	var workers []models.User
	err := s.DB.Where("role = ? AND approved = ?", models.RoleWorker, true).
		Order("display_name asc").
		Find(&workers).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to list approved workers")
		return nil, err
	}
	return workers, nil
}

// ListChatPartners returns the customers that have a room with workerID,
// most recent room first, with the worker's unread count per room.
func (s *Service) ListChatPartners(workerID string) ([]ChatSummary, error) {
	var rooms []models.ChatRoom
	if err := s.DB.Where("worker_id = ?", workerID).Order("created_at desc").Find(&rooms).Error; err != nil {
		return nil, err
	}
	out := make([]ChatSummary, 0, len(rooms))
	for _, room := range rooms {
		peer, err := s.GetUserByID(room.CustomerID)
		if errors.Is(err, ErrNotFound) {
			log.Warn().Str("room_id", room.RoomID).Str("customer_id", room.CustomerID).Msg("room without customer row")
			continue
		}
		if err != nil {
			return nil, err
		}
		unread, err := s.CountUnread(room.RoomID, workerID)
		if err != nil {
			return nil, err
		}
		out = append(out, ChatSummary{RoomID: room.RoomID, Peer: *peer, Unread: unread})
	}
	return out, nil
}

func (s *Service) UpdateLastSeen(userID string, at time.Time) error {
	return s.DB.Model(&models.User{}).Where("id = ?", userID).Update("last_seen_at", at).Error
}

// ResolveRoom returns the pair's room, creating it on first use.
// The unique (customer_id, worker_id) index makes concurrent calls converge.
func (s *Service) ResolveRoom(customerID, workerID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.DB.Where(models.ChatRoom{CustomerID: customerID, WorkerID: workerID}).
		Attrs(models.ChatRoom{RoomID: uuid.NewString()}).
		FirstOrCreate(&room).Error
	if err != nil {
		// lost an insert race, the row exists now
		if again, ferr := s.FindRoom(customerID, workerID); ferr == nil && again != nil {
			return again, nil
		}
		log.Error().Err(err).Str("customer_id", customerID).Str("worker_id", workerID).Msg("failed to resolve room")
		return nil, err
	}
	return &room, nil
}

// FindRoom is ResolveRoom without the create; it returns nil, nil when absent.
func (s *Service) FindRoom(customerID, workerID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.DB.Where("customer_id = ? AND worker_id = ?", customerID, workerID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Service) GetRoomByID(roomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom

	err := s.DB.Where("room_id = ?", roomID).First(&room).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room")
		return nil, err
	}
	return &room, nil
}

// SaveMessage inserts msg; its ID and CreatedAt are filled in by GORM.
func (s *Service) SaveMessage(msg *models.ChatHistory) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Error().Err(err).Str("room_id", msg.RoomID).Msg("failed to save message")
		return err
	}
	return nil
}

// GetChatHistory returns up to limit messages of the room, newest first.
func (s *Service) GetChatHistory(roomID string, limit int) ([]models.ChatHistory, error) {
	var history []models.ChatHistory
	q := s.DB.Preload("ReadBy").Where("room_id = ?", roomID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&history).Error; err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get chat history")
		return nil, err
	}
	return history, nil
}

// MarkRoomRead records a receipt of userID on every unread message of the
// room and returns those messages with their receipts reloaded.
func (s *Service) MarkRoomRead(roomID, userID string, at time.Time) ([]models.ChatHistory, error) {
	var ids []string
	if err := s.DB.Scopes(unreadScope(roomID, userID)).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.ChatHistory{}, nil
	}

	rows := make([]models.MessageRead, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.MessageRead{MessageID: id, UserID: userID, ReadAt: at})
	}
	if err := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to save read receipts")
		return nil, err
	}

	var updated []models.ChatHistory
	if err := s.DB.Preload("ReadBy").Where("id IN ?", ids).Order("created_at asc").Find(&updated).Error; err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) CountUnread(roomID, userID string) (int64, error) {
	var n int64
	err := s.DB.Scopes(unreadScope(roomID, userID)).Count(&n).Error
	return n, err
}
