package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

// Video is the aggregate root of one generation job. Characters and scenes are
// keyed child rows ordered by position.
type Video struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	Prompt          string               `gorm:"column:prompt;not null"`
	Style           enums.VideoStyle     `gorm:"column:style;not null"`
	Music           string               `gorm:"column:music;not null;default:''"`
	Voice           string               `gorm:"column:voice;not null;default:''"`
	AspectRatio     enums.AspectRatio    `gorm:"column:aspect_ratio;not null"`
	DurationSeconds int                  `gorm:"column:duration_seconds;not null"`
	ImagesPerPrompt int                  `gorm:"column:images_per_prompt;not null;default:1"`
	MultiAngle      bool                 `gorm:"column:multi_angle;not null;default:false"`
	VideoModelTier  enums.VideoModelTier `gorm:"column:video_model_tier;not null;default:'standard'"`
	Dramatic        bool                 `gorm:"column:dramatic;not null;default:false"`
	Title           string               `gorm:"column:title;not null;default:''"`

	RunStatus       enums.RunStatus `gorm:"column:run_status;type:run_status_enum;not null;default:'idle'"`
	RunError        *string         `gorm:"column:run_error"`
	ActiveRunID     *uuid.UUID      `gorm:"column:active_run_id;type:uuid"`
	CancelRequested bool            `gorm:"column:cancel_requested;not null;default:false"`

	RenderID          *string            `gorm:"column:render_id"`
	BucketName        *string            `gorm:"column:bucket_name"`
	RenderStatus      enums.RenderStatus `gorm:"column:render_status;type:render_status_enum;not null;default:'none'"`
	RenderError       *string            `gorm:"column:render_error"`
	RenderRequestedAt *time.Time         `gorm:"column:render_requested_at"`
	VideoURL          *string            `gorm:"column:video_url"`

	Version   int       `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Characters []VideoCharacter `gorm:"foreignKey:VideoID"`
	Scenes     []VideoScene     `gorm:"foreignKey:VideoID"`
}

// IsRunning reports whether a workflow run currently owns the video.
func (v *Video) IsRunning() bool {
	return v != nil && v.RunStatus == enums.RunStatusRunning
}
