package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VideoCharacter is a blueprint character. ImageURL being set marks it complete.
type VideoCharacter struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VideoID        uuid.UUID `gorm:"column:video_id;type:uuid;not null"`
	Position       int       `gorm:"column:position;not null"`
	Name           string    `gorm:"column:name;not null"`
	ImagePrompt    string    `gorm:"column:image_prompt;not null"`
	ImageStorageID *string   `gorm:"column:image_storage_id"`
	ImageURL       *string   `gorm:"column:image_url"`
	InProcess      bool      `gorm:"column:in_process;not null;default:false"`
	Version        int       `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (VideoCharacter) TableName() string { return "video_characters" }

// HasImage reports whether the character image has been generated.
func (c VideoCharacter) HasImage() bool {
	return c.ImageURL != nil && *c.ImageURL != ""
}

// CharacterKey is the form scenes use to reference a character by name.
func CharacterKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
