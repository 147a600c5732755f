// Package chat is the real-time chat core: presence tracking, the room
// session state machine and the message reconciliation store.
package chat

import (
	"context"
	"errors"

	"homeservices/chatcore/internal/models"
)

var (
	ErrRoomResolution = errors.New("chat: unable to open conversation")
	ErrSendFailed     = errors.New("chat: message not sent")
	ErrUploadFailed   = errors.New("chat: image upload failed")
	ErrEmptyMessage   = errors.New("chat: message is empty")
	ErrNoActiveRoom   = errors.New("chat: no active conversation")
	ErrSuperseded     = errors.New("chat: room selection superseded")
	ErrUnknownContact = errors.New("chat: unknown contact")
)

// Backend is the subset of the REST contract the room session needs.
type Backend interface {
	ResolveRoom(ctx context.Context, customerID, workerID string) (models.Room, error)
	// Messages returns the initial page, newest first.
	Messages(ctx context.Context, roomID string) ([]models.Message, error)
	SendMessage(ctx context.Context, roomID, content string) (models.Message, error)
	UploadImages(ctx context.Context, room models.Room, assets []models.ImageAsset) (models.Message, error)
	MarkRead(ctx context.Context, roomID string) ([]models.Message, error)
}
