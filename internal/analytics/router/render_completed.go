package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
)

type renderCompletedHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newRenderCompletedHandler(w Writer, logg *logger.Logger) Handler {
	return &renderCompletedHandler{writer: w, logg: logg}
}

func (h *renderCompletedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.RenderCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, envelope.EventType)
	}
	return h.writer.InsertRenderEvent(ctx, types.RenderEventRow{
		EventID:    envelope.EventID,
		OccurredAt: envelope.OccurredAt.UTC(),
		VideoID:    event.VideoID.String(),
		UserID:     event.UserID.String(),
		RenderID:   event.RenderID,
		Status:     string(event.Status),
		Error:      optionalString(event.Error),
	})
}
