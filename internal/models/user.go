package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the marketplace side a user acts on.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleWorker   Role = "worker"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleWorker
}

// Identity is the local user's id and role, as returned by GET /users/me.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Contact is a conversation partner shown in the contact list.
// IsOnline is only meaningful once a presence event has been seen.
type Contact struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	UnreadCount int        `json:"unreadCount"`
}

// User is the devserver's account row.
type User struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	Email       string     `gorm:"uniqueIndex" json:"email"`
	DisplayName string     `json:"name"`
	Role        Role       `gorm:"type:text;not null;index" json:"role"`
	Approved    bool       `gorm:"index" json:"approved"` // workers only
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
}

// BeforeCreate is a GORM hook that generates the UUID if none is set.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
