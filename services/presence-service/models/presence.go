package models

import "time"

// User is the slice of the dashboard's users table that presence reads and writes.
// The table itself belongs to the account module.
type User struct {
	ID         string    `json:"id" gorm:"primaryKey;size:64"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsOnline   bool      `json:"is_online" gorm:"not null;default:false;index"`
	LastActive time.Time `json:"last_active" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type UserPresence struct {
	UserID     string    `json:"user_id"`
	Name       string    `json:"name,omitempty"`
	IsOnline   bool      `json:"is_online"`
	LastActive time.Time `json:"last_active"`
}

// PresenceRequest is the body of heartbeat and offline calls when no token identifies the user.
type PresenceRequest struct {
	UserID string `json:"user_id"`
}

type HeartbeatResponse struct {
	Status                   string `json:"status"`
	HeartbeatIntervalSeconds int    `json:"heartbeat_interval_seconds"`
}

type StatusResponse struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastActive time.Time `json:"last_active"`
}

type OnlineUsersResponse struct {
	Count int            `json:"count"`
	Users []UserPresence `json:"users"`
}
