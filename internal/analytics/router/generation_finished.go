package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	"github.com/angelmondragon/reelforge-backend/internal/analytics/writer"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
)

type generationFinishedHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newGenerationFinishedHandler(w Writer, logg *logger.Logger) Handler {
	return &generationFinishedHandler{writer: w, logg: logg}
}

func (h *generationFinishedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.GenerationFinishedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, envelope.EventType)
	}
	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}

	finishedAt := event.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = envelope.OccurredAt
	}
	row := types.GenerationRunRow{
		EventID:             envelope.EventID,
		RunID:               event.RunID.String(),
		VideoID:             event.VideoID.String(),
		UserID:              event.UserID.String(),
		Status:              string(event.Status),
		Error:               optionalString(event.Error),
		CreditsSpent:        int64(event.CreditsSpent),
		CharactersTotal:     int64(event.CharactersTotal),
		CharactersCompleted: int64(event.CharactersCompleted),
		ScenesTotal:         int64(event.ScenesTotal),
		ScenesCompleted:     int64(event.ScenesCompleted),
		ResumeCount:         int64(event.ResumeCount),
		DurationMs:          durationMs(event.StartedAt.UTC(), finishedAt.UTC()),
		StartedAt:           event.StartedAt.UTC(),
		FinishedAt:          finishedAt.UTC(),
		Payload:             raw,
	}
	return h.writer.InsertGenerationRun(ctx, row)
}
