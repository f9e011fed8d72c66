package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

type characterResponse struct {
	ID          uuid.UUID `json:"id"`
	Position    int       `json:"position"`
	Name        string    `json:"name"`
	ImagePrompt string    `json:"image_prompt"`
	ImageURL    *string   `json:"image_url"`
	InProcess   bool      `json:"in_process"`
	Version     int       `json:"version"`
}

type angleResponse struct {
	ID          uuid.UUID `json:"id"`
	ImagePrompt string    `json:"image_prompt"`
	VideoPrompt string    `json:"video_prompt"`
	ImageURL    *string   `json:"image_url"`
	ClipURL     *string   `json:"clip_url"`
}

type sceneResponse struct {
	ID                uuid.UUID           `json:"id"`
	Position          int                 `json:"position"`
	CharactersInScene []string            `json:"characters_in_scene"`
	Narration         string              `json:"narration"`
	ImagePrompt       string              `json:"image_prompt"`
	VideoPrompt       string              `json:"video_prompt"`
	ImageURL          *string             `json:"image_url"`
	ClipURL           *string             `json:"clip_url"`
	AudioURL          *string             `json:"audio_url"`
	Words             []models.WordTiming `json:"words"`
	ImageInProcess    bool                `json:"image_in_process"`
	VideoInProcess    bool                `json:"video_in_process"`
	AudioInProcess    bool                `json:"audio_in_process"`
	Angles            []angleResponse     `json:"angles,omitempty"`
	Version           int                 `json:"version"`
}

type videoSummaryResponse struct {
	ID              uuid.UUID            `json:"id"`
	Title           string               `json:"title"`
	Prompt          string               `json:"prompt"`
	Style           enums.VideoStyle     `json:"style"`
	AspectRatio     enums.AspectRatio    `json:"aspect_ratio"`
	DurationSeconds int                  `json:"duration_seconds"`
	VideoModelTier  enums.VideoModelTier `json:"video_model_tier"`
	RunStatus       enums.RunStatus      `json:"run_status"`
	RunError        *string              `json:"run_error"`
	RenderStatus    enums.RenderStatus   `json:"render_status"`
	VideoURL        *string              `json:"video_url"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

type videoResponse struct {
	videoSummaryResponse
	Music           string              `json:"music"`
	Voice           string              `json:"voice"`
	Dramatic        bool                `json:"dramatic"`
	MultiAngle      bool                `json:"multi_angle"`
	ImagesPerPrompt int                 `json:"images_per_prompt"`
	CancelRequested bool                `json:"cancel_requested"`
	ActiveRunID     *uuid.UUID          `json:"active_run_id"`
	RenderError     *string             `json:"render_error"`
	Characters      []characterResponse `json:"characters"`
	Scenes          []sceneResponse     `json:"scenes"`
}

func videoSummaryFromModel(v *models.Video) videoSummaryResponse {
	return videoSummaryResponse{
		ID:              v.ID,
		Title:           v.Title,
		Prompt:          v.Prompt,
		Style:           v.Style,
		AspectRatio:     v.AspectRatio,
		DurationSeconds: v.DurationSeconds,
		VideoModelTier:  v.VideoModelTier,
		RunStatus:       v.RunStatus,
		RunError:        v.RunError,
		RenderStatus:    v.RenderStatus,
		VideoURL:        v.VideoURL,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

func videoResponseFromModel(v *models.Video) videoResponse {
	resp := videoResponse{
		videoSummaryResponse: videoSummaryFromModel(v),
		Music:                v.Music,
		Voice:                v.Voice,
		Dramatic:             v.Dramatic,
		MultiAngle:           v.MultiAngle,
		ImagesPerPrompt:      v.ImagesPerPrompt,
		CancelRequested:      v.CancelRequested,
		ActiveRunID:          v.ActiveRunID,
		RenderError:          v.RenderError,
		Characters:           make([]characterResponse, 0, len(v.Characters)),
		Scenes:               make([]sceneResponse, 0, len(v.Scenes)),
	}
	for _, c := range v.Characters {
		resp.Characters = append(resp.Characters, characterResponse{
			ID:          c.ID,
			Position:    c.Position,
			Name:        c.Name,
			ImagePrompt: c.ImagePrompt,
			ImageURL:    c.ImageURL,
			InProcess:   c.InProcess,
			Version:     c.Version,
		})
	}
	for _, s := range v.Scenes {
		scene := sceneResponse{
			ID:                s.ID,
			Position:          s.Position,
			CharactersInScene: []string(s.CharactersInScene),
			Narration:         s.Narration,
			ImagePrompt:       s.ImagePrompt,
			VideoPrompt:       s.VideoPrompt,
			ImageURL:          s.ImageURL,
			ClipURL:           s.ClipURL,
			AudioURL:          s.AudioURL,
			Words:             []models.WordTiming(s.Words),
			ImageInProcess:    s.ImageInProcess,
			VideoInProcess:    s.VideoInProcess,
			AudioInProcess:    s.AudioInProcess,
			Version:           s.Version,
		}
		if scene.CharactersInScene == nil {
			scene.CharactersInScene = []string{}
		}
		if scene.Words == nil {
			scene.Words = []models.WordTiming{}
		}
		for _, a := range s.Angles {
			scene.Angles = append(scene.Angles, angleResponse{
				ID:          a.ID,
				ImagePrompt: a.ImagePrompt,
				VideoPrompt: a.VideoPrompt,
				ImageURL:    a.ImageURL,
				ClipURL:     a.ClipURL,
			})
		}
		resp.Scenes = append(resp.Scenes, scene)
	}
	return resp
}
