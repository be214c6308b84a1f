package model

import (
	"time"

	"github.com/google/uuid"
)

// LoginSessionModel mirrors the 'login_sessions' table.
type LoginSessionModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email          string    `gorm:"type:varchar(255);not null"`
	CodeHash       string    `gorm:"type:char(64);not null"`
	CodeExpiresAt  time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"not null;index"`
	State          string    `gorm:"type:varchar(16);not null"`
	FailedAttempts int       `gorm:"not null"`
	ResendCount    int       `gorm:"not null"`
	LastSentAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName explicitly sets the table name for GORM.
func (LoginSessionModel) TableName() string {
	return "login_sessions"
}
