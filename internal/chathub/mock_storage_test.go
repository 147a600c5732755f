package chathub_test

import (
	"context"
	"time"

	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage.
// Subscribe is not mocked: it hands out Frames, which tests feed directly.
type MockStorage struct {
	mock.Mock
	Frames chan models.RoomFrame
}

func newMockStorage() *MockStorage {
	return &MockStorage{Frames: make(chan models.RoomFrame, 16)}
}

func (m *MockStorage) SaveUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) GetUserByID(id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByEmail(email string) (*models.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) ListApprovedWorkers() ([]models.User, error) {
	args := m.Called()
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockStorage) ListChatPartners(workerID string) ([]storage.ChatSummary, error) {
	args := m.Called(workerID)
	return args.Get(0).([]storage.ChatSummary), args.Error(1)
}

func (m *MockStorage) UpdateLastSeen(userID string, at time.Time) error {
	args := m.Called(userID, at)
	return args.Error(0)
}

func (m *MockStorage) ResolveRoom(customerID, workerID string) (*models.ChatRoom, error) {
	args := m.Called(customerID, workerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *MockStorage) FindRoom(customerID, workerID string) (*models.ChatRoom, error) {
	args := m.Called(customerID, workerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *MockStorage) GetRoomByID(roomID string) (*models.ChatRoom, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *MockStorage) SaveMessage(msg *models.ChatHistory) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) GetChatHistory(roomID string, limit int) ([]models.ChatHistory, error) {
	args := m.Called(roomID, limit)
	return args.Get(0).([]models.ChatHistory), args.Error(1)
}

func (m *MockStorage) MarkRoomRead(roomID, userID string, at time.Time) ([]models.ChatHistory, error) {
	args := m.Called(roomID, userID, at)
	return args.Get(0).([]models.ChatHistory), args.Error(1)
}

func (m *MockStorage) CountUnread(roomID, userID string) (int64, error) {
	args := m.Called(roomID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SetOnline(userID string, at time.Time) error {
	args := m.Called(userID, at)
	return args.Error(0)
}

func (m *MockStorage) SetOffline(userID string, at time.Time) error {
	args := m.Called(userID, at)
	return args.Error(0)
}

func (m *MockStorage) Presence(userID string) (bool, *time.Time, error) {
	args := m.Called(userID)
	var seen *time.Time
	if v := args.Get(1); v != nil {
		seen = v.(*time.Time)
	}
	return args.Bool(0), seen, args.Error(2)
}

func (m *MockStorage) PublishEvent(frame models.RoomFrame) error {
	args := m.Called(frame)
	return args.Error(0)
}

func (m *MockStorage) Subscribe(ctx context.Context) <-chan models.RoomFrame {
	return m.Frames
}
