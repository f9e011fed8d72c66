package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/api/responses"
	"github.com/angelmondragon/reelforge-backend/internal/generation"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

type characterImageRequest struct {
	Regenerate         bool   `json:"regenerate"`
	BaseImageStorageID string `json:"base_image_storage_id" validate:"max=512"`
	Prompt             string `json:"prompt" validate:"max=4000"`
}

type scenePromptRequest struct {
	Prompt string `json:"prompt" validate:"max=4000"`
}

type sceneAudioRequest struct {
	VoiceID string `json:"voice_id" validate:"max=100"`
}

// assetIDs resolves the caller and the video plus one child id from the path.
func assetIDs(r *http.Request, child string) (userID, videoID, itemID uuid.UUID, err error) {
	if userID, err = requireUser(r); err != nil {
		return
	}
	if videoID, err = pathUUID(r, "videoId"); err != nil {
		return
	}
	itemID, err = pathUUID(r, child)
	return
}

// CharacterImageGenerate directly generates or regenerates one character reference.
func CharacterImageGenerate(assets generation.Assets, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if assets == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "asset generator unavailable"))
			return
		}
		userID, videoID, characterID, err := assetIDs(r, "characterId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload characterImageRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := assets.CharacterImage(r.Context(), generation.CharacterImageInput{
			UserID:             userID,
			VideoID:            videoID,
			CharacterID:        characterID,
			Regenerate:         payload.Regenerate,
			BaseImageStorageID: strings.TrimSpace(payload.BaseImageStorageID),
			Prompt:             strings.TrimSpace(payload.Prompt),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// SceneImageGenerate stills one scene, conditioned on its characters.
func SceneImageGenerate(assets generation.Assets, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if assets == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "asset generator unavailable"))
			return
		}
		userID, videoID, sceneID, err := assetIDs(r, "sceneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload scenePromptRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := assets.SceneImage(r.Context(), generation.SceneImageInput{
			UserID:  userID,
			VideoID: videoID,
			SceneID: sceneID,
			Prompt:  strings.TrimSpace(payload.Prompt),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// SceneVideoGenerate animates one scene still into a clip.
func SceneVideoGenerate(assets generation.Assets, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if assets == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "asset generator unavailable"))
			return
		}
		userID, videoID, sceneID, err := assetIDs(r, "sceneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload scenePromptRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := assets.SceneVideo(r.Context(), generation.SceneVideoInput{
			UserID:  userID,
			VideoID: videoID,
			SceneID: sceneID,
			Prompt:  strings.TrimSpace(payload.Prompt),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// SceneAudioGenerate voices one scene's narration and transcribes word timings.
func SceneAudioGenerate(assets generation.Assets, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if assets == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "asset generator unavailable"))
			return
		}
		userID, videoID, sceneID, err := assetIDs(r, "sceneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload sceneAudioRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := assets.SceneAudio(r.Context(), generation.SceneAudioInput{
			UserID:  userID,
			VideoID: videoID,
			SceneID: sceneID,
			VoiceID: strings.TrimSpace(payload.VoiceID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
