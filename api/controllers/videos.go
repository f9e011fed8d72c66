package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/api/responses"
	"github.com/angelmondragon/reelforge-backend/api/validators"
	"github.com/angelmondragon/reelforge-backend/internal/blueprint"
	"github.com/angelmondragon/reelforge-backend/internal/pipeline"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/pagination"
)

const maxPromptLength = 4000

type blueprintCompiler interface {
	Compile(ctx context.Context, input blueprint.CompileInput) (*models.Video, error)
}

type videoReader interface {
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Video, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Video], error)
}

type runStarter interface {
	Start(ctx context.Context, videoID, userID uuid.UUID) (pipeline.StartResult, error)
}

type cancelRequester interface {
	RequestCancel(ctx context.Context, videoID, userID uuid.UUID) error
}

type videoCreateRequest struct {
	Prompt          string `json:"prompt" validate:"required,max=4000"`
	Style           string `json:"style" validate:"required,video_style"`
	DurationSeconds int    `json:"duration_seconds" validate:"required,min=5,max=600"`
	AspectRatio     string `json:"aspect_ratio" validate:"required,aspect_ratio"`
	Dramatic        bool   `json:"dramatic"`
	Music           string `json:"music" validate:"max=200"`
	Voice           string `json:"voice" validate:"max=100"`
	VideoModelTier  string `json:"video_model_tier" validate:"omitempty,video_model_tier"`
	MultiAngle      bool   `json:"multi_angle"`
	ImagesPerPrompt int    `json:"images_per_prompt" validate:"omitempty,min=1,max=4"`
}

func (r videoCreateRequest) toInput(userID uuid.UUID) (blueprint.CompileInput, error) {
	style, err := enums.ParseVideoStyle(strings.TrimSpace(r.Style))
	if err != nil {
		return blueprint.CompileInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid style")
	}
	ratio, err := enums.ParseAspectRatio(strings.TrimSpace(r.AspectRatio))
	if err != nil {
		return blueprint.CompileInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid aspect_ratio")
	}
	tier, err := enums.ParseVideoModelTier(strings.TrimSpace(r.VideoModelTier))
	if err != nil {
		return blueprint.CompileInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid video_model_tier")
	}
	return blueprint.CompileInput{
		UserID:          userID,
		Prompt:          validators.SanitizeText(r.Prompt, maxPromptLength),
		Style:           style,
		DurationSeconds: r.DurationSeconds,
		AspectRatio:     ratio,
		Dramatic:        r.Dramatic,
		Music:           validators.SanitizeText(r.Music, 200),
		Voice:           validators.SanitizeText(r.Voice, 100),
		Tier:            tier,
		MultiAngle:      r.MultiAngle,
		ImagesPerPrompt: r.ImagesPerPrompt,
	}, nil
}

// VideoCreate compiles a prompt into a blueprint and persists the new video.
func VideoCreate(svc blueprintCompiler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "blueprint service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload videoCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		video, err := svc.Compile(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, videoResponseFromModel(video))
	}
}

// VideoList pages the caller's videos, newest first.
func VideoList(repo videoReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := repo.ListByUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := pagination.Page[videoSummaryResponse]{
			Items:      make([]videoSummaryResponse, 0, len(page.Items)),
			NextCursor: page.NextCursor,
		}
		for i := range page.Items {
			out.Items = append(out.Items, videoSummaryFromModel(&page.Items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// VideoDetail returns one video with its characters and scenes.
func VideoDetail(repo videoReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := loadOwnedVideo(w, r, repo, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, videoResponseFromModel(video))
	}
}

// VideoEstimate prices the assets a full run would still generate.
func VideoEstimate(repo videoReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := loadOwnedVideo(w, r, repo, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, pipeline.EstimateCost(video))
	}
}

// VideoGenerate queues a workflow run. A video with nothing left to generate is
// reported as skipped with 200, a queued run answers 202.
func VideoGenerate(svc runStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline unavailable"))
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

		result, err := svc.Start(r.Context(), videoID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Skipped {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

// VideoCancel flags the running generation for cancellation at the next wave boundary.
func VideoCancel(repo cancelRequester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		if err := repo.RequestCancel(r.Context(), videoID, userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]bool{"cancel_requested": true})
	}
}

func loadOwnedVideo(w http.ResponseWriter, r *http.Request, repo videoReader, logg *logger.Logger) (*models.Video, bool) {
	userID, err := requireUser(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	videoID, err := pathUUID(r, "videoId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	video, err := repo.FindForUser(r.Context(), videoID, userID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return video, true
}
