package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the account that owns videos and holds the credit balance.
type User struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string    `gorm:"column:email;type:text;not null;uniqueIndex"`
	Credits   int       `gorm:"column:credits;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
