package auth

import "time"

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

// Session rows are written once at login and never deleted; expiry is
// enforced at validation time against ExpiresAt.
type Session struct {
	SessionID string    `gorm:"type:varchar(64);primaryKey" json:"session_id"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

func (Session) TableName() string { return "sessions" }
