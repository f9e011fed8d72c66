package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/reelforge-backend/pkg/db/types"
)

// WordTiming is one captioned word with its offsets in the narration audio.
type WordTiming struct {
	Text    string `json:"text"`
	StartMs int    `json:"startMs"`
	EndMs   int    `json:"endMs"`
}

// VideoScene is one blueprint scene and its independently generated outputs.
type VideoScene struct {
	ID                uuid.UUID                    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VideoID           uuid.UUID                    `gorm:"column:video_id;type:uuid;not null"`
	Position          int                          `gorm:"column:position;not null"`
	CharactersInScene dbtypes.JSONList[string]     `gorm:"column:characters_in_scene;type:jsonb;not null"`
	Narration         string                       `gorm:"column:narration;not null;default:''"`
	ImagePrompt       string                       `gorm:"column:image_prompt;not null"`
	VideoPrompt       string                       `gorm:"column:video_prompt;not null"`
	ImageStorageID    *string                      `gorm:"column:image_storage_id"`
	ImageURL          *string                      `gorm:"column:image_url"`
	ClipStorageID     *string                      `gorm:"column:clip_storage_id"`
	ClipURL           *string                      `gorm:"column:clip_url"`
	AudioStorageID    *string                      `gorm:"column:audio_storage_id"`
	AudioURL          *string                      `gorm:"column:audio_url"`
	Words             dbtypes.JSONList[WordTiming] `gorm:"column:words;type:jsonb;not null"`
	ImageInProcess    bool                         `gorm:"column:image_in_process;not null;default:false"`
	VideoInProcess    bool                         `gorm:"column:video_in_process;not null;default:false"`
	AudioInProcess    bool                         `gorm:"column:audio_in_process;not null;default:false"`
	Version           int                          `gorm:"column:version;not null;default:1"`
	CreatedAt         time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                    `gorm:"column:updated_at;autoUpdateTime"`

	Angles []VideoSceneAngle `gorm:"foreignKey:SceneID"`
}

func (VideoScene) TableName() string { return "video_scenes" }

func (s VideoScene) HasImage() bool {
	return s.ImageURL != nil && *s.ImageURL != ""
}

func (s VideoScene) HasClip() bool {
	return s.ClipURL != nil && *s.ClipURL != ""
}

func (s VideoScene) HasAudio() bool {
	return s.AudioURL != nil && *s.AudioURL != ""
}

// NeedsAudio reports whether narration exists and has not been voiced yet.
func (s VideoScene) NeedsAudio() bool {
	return strings.TrimSpace(s.Narration) != "" && !s.HasAudio()
}
