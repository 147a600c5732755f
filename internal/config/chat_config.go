package config

import "time"

const (
	// Presence
	HeartbeatInterval = 30 * time.Second
	JustNowWindow     = 5 * time.Minute

	// Read receipts
	ReadReceiptDebounce = 500 * time.Millisecond

	// REST timeouts. Image uploads get more room because of the payload size.
	RequestTimeout     = 15 * time.Second
	ImageUploadTimeout = 90 * time.Second

	// Real-time connection
	DialTimeout    = 10 * time.Second
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 * 1024
	SendBufferSize = 64

	// Messages page size requested from /messages
	MessagePageSize = 50
)
