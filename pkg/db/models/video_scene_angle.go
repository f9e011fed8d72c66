package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoSceneAngle is an alternate camera sub-clip of a scene.
type VideoSceneAngle struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SceneID        uuid.UUID `gorm:"column:scene_id;type:uuid;not null"`
	Position       int       `gorm:"column:position;not null"`
	ImagePrompt    string    `gorm:"column:image_prompt;not null"`
	VideoPrompt    string    `gorm:"column:video_prompt;not null"`
	ImageStorageID *string   `gorm:"column:image_storage_id"`
	ImageURL       *string   `gorm:"column:image_url"`
	ClipStorageID  *string   `gorm:"column:clip_storage_id"`
	ClipURL        *string   `gorm:"column:clip_url"`
	Version        int       `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (VideoSceneAngle) TableName() string { return "video_scene_angles" }
