package payloads

import (
	"time"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/google/uuid"
)

// GenerationRequestedEvent asks a worker to execute (or resume) a workflow run.
type GenerationRequestedEvent struct {
	RunID       uuid.UUID `json:"run_id"`
	VideoID     uuid.UUID `json:"video_id"`
	UserID      uuid.UUID `json:"user_id"`
	ResumeCount int       `json:"resume_count"`
}

// GenerationFinishedEvent summarises a run once it reaches a terminal state.
type GenerationFinishedEvent struct {
	RunID               uuid.UUID       `json:"run_id"`
	VideoID             uuid.UUID       `json:"video_id"`
	UserID              uuid.UUID       `json:"user_id"`
	Status              enums.RunStatus `json:"status"`
	Error               string          `json:"error,omitempty"`
	CreditsSpent        int             `json:"credits_spent"`
	CharactersTotal     int             `json:"characters_total"`
	CharactersCompleted int             `json:"characters_completed"`
	ScenesTotal         int             `json:"scenes_total"`
	ScenesCompleted     int             `json:"scenes_completed"`
	ResumeCount         int             `json:"resume_count"`
	StartedAt           time.Time       `json:"started_at"`
	FinishedAt          time.Time       `json:"finished_at"`
}

// RenderCompletedEvent is emitted when the renderer reports back.
type RenderCompletedEvent struct {
	VideoID  uuid.UUID          `json:"video_id"`
	UserID   uuid.UUID          `json:"user_id"`
	RenderID string             `json:"render_id"`
	Status   enums.RenderStatus `json:"status"`
	VideoURL string             `json:"video_url,omitempty"`
	Error    string             `json:"error,omitempty"`
}
