package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStep marks a checkpointed step of a run as completed.
type WorkflowStep struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID       uuid.UUID `gorm:"column:run_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	CompletedAt time.Time `gorm:"column:completed_at;not null"`
}
