package chathub_test

import (
	"homeservices/chatcore/internal/models"
)

type MockClient struct {
	userID      string
	roomID      string
	connType    string
	RecvChannel chan models.Envelope
	closed      chan struct{}
}

func newMockClient(userID, connType, roomID string) *MockClient {
	return &MockClient{
		userID:      userID,
		roomID:      roomID,
		connType:    connType,
		RecvChannel: make(chan models.Envelope, 10),
		closed:      make(chan struct{}),
	}
}

func (c *MockClient) GetUserID() string {
	return c.userID
}

func (c *MockClient) GetRoomID() string {
	return c.roomID
}

func (c *MockClient) SetRoomID(roomID string) {
	c.roomID = roomID
}

func (c *MockClient) GetConnType() string {
	return c.connType
}

func (c *MockClient) GetSendChannel() chan<- models.Envelope {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}
