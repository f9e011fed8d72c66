package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// GenerationRunRow mirrors the generation_runs BigQuery schema, one row per finished run.
type GenerationRunRow struct {
	EventID             string             `bigquery:"event_id"`
	RunID               string             `bigquery:"run_id"`
	VideoID             string             `bigquery:"video_id"`
	UserID              string             `bigquery:"user_id"`
	Status              string             `bigquery:"status"`
	Error               *string            `bigquery:"error"`
	CreditsSpent        int64              `bigquery:"credits_spent"`
	CharactersTotal     int64              `bigquery:"characters_total"`
	CharactersCompleted int64              `bigquery:"characters_completed"`
	ScenesTotal         int64              `bigquery:"scenes_total"`
	ScenesCompleted     int64              `bigquery:"scenes_completed"`
	ResumeCount         int64              `bigquery:"resume_count"`
	DurationMs          int64              `bigquery:"duration_ms"`
	StartedAt           time.Time          `bigquery:"started_at"`
	FinishedAt          time.Time          `bigquery:"finished_at"`
	Payload             cbigquery.NullJSON `bigquery:"payload"`
}

// RenderEventRow mirrors the render_events BigQuery schema.
type RenderEventRow struct {
	EventID    string    `bigquery:"event_id"`
	OccurredAt time.Time `bigquery:"occurred_at"`
	VideoID    string    `bigquery:"video_id"`
	UserID     string    `bigquery:"user_id"`
	RenderID   string    `bigquery:"render_id"`
	Status     string    `bigquery:"status"`
	Error      *string   `bigquery:"error"`
}
