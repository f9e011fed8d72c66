package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/api/responses"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	renderclient "github.com/angelmondragon/reelforge-backend/pkg/render"
)

const maxWebhookBody = 1 << 20

type renderSubmitter interface {
	Submit(ctx context.Context, videoID, userID uuid.UUID) (*models.Video, error)
}

type renderWebhookHandler interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// VideoRender submits the finished scenes to the renderer.
func VideoRender(svc renderSubmitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "render service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		videoID, err := pathUUID(r, "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		video, err := svc.Submit(r.Context(), videoID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, videoResponseFromModel(video))
	}
}

// RenderWebhook accepts signed completion callbacks from the renderer.
func RenderWebhook(svc renderWebhookHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "render service unavailable"))
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		if err := svc.HandleWebhook(r.Context(), body, r.Header.Get(renderclient.SignatureHeader)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
