package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

// WorkflowRun is one durable execution of the generation pipeline for a video.
type WorkflowRun struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VideoID        uuid.UUID       `gorm:"column:video_id;type:uuid;not null"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	Status         enums.RunStatus `gorm:"column:status;type:run_status_enum;not null"`
	ResumeCount    int             `gorm:"column:resume_count;not null;default:0"`
	LeaseOwner     *string         `gorm:"column:lease_owner"`
	LeaseExpiresAt *time.Time      `gorm:"column:lease_expires_at"`
	Error          *string         `gorm:"column:error"`
	CreditsSpent   int             `gorm:"column:credits_spent;not null;default:0"`
	StartedAt      time.Time       `gorm:"column:started_at;not null"`
	ResumedAt      *time.Time      `gorm:"column:resumed_at"`
	FinishedAt     *time.Time      `gorm:"column:finished_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
