package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/credits"
	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/elevenlabs"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/fal"
	"github.com/angelmondragon/reelforge-backend/pkg/gemini"
)

type SceneImageInput struct {
	UserID  uuid.UUID
	VideoID uuid.UUID
	SceneID uuid.UUID
	// ReferenceStorageIDs conditions the image. Nil resolves the scene's characters.
	ReferenceStorageIDs []string
	Prompt              string
}

type SceneVideoInput struct {
	UserID  uuid.UUID
	VideoID uuid.UUID
	SceneID uuid.UUID
	Prompt  string
}

type SceneAudioInput struct {
	UserID  uuid.UUID
	VideoID uuid.UUID
	SceneID uuid.UUID
	// VoiceID falls back to the video voice, then the configured default.
	VoiceID string
}

func (g *Generator) SceneImage(ctx context.Context, input SceneImageInput) (*Result, error) {
	video, scene, err := g.loadScene(ctx, input.UserID, input.VideoID, input.SceneID)
	if err != nil {
		return nil, err
	}

	refs := input.ReferenceStorageIDs
	if refs == nil {
		var missing []string
		refs, missing = ResolveCharacterRefs(video, scene)
		if len(missing) > 0 && g.logg != nil {
			logCtx := g.logg.WithFields(ctx, map[string]any{
				"scene_id":   scene.ID.String(),
				"unresolved": missing,
			})
			g.logg.Warn(logCtx, "generation.scene.refs_dropped")
		}
	}
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		prompt = scene.ImagePrompt
	}

	return g.run(ctx, g.sceneJob(video, scene, input.UserID, enums.AssetKindSceneImage, imageSlot,
		func(ctx context.Context) (payload, error) {
			images := make([]gemini.InlineImage, 0, len(refs))
			for _, key := range refs {
				ref, err := g.fetchReference(ctx, key)
				if err != nil {
					return payload{}, err
				}
				images = append(images, ref)
			}
			img, err := g.images.GenerateImage(ctx, scenePrompt(video, prompt, len(images)), images)
			if err != nil {
				return payload{}, imageFailure(err)
			}
			return payload{data: img.Data, contentType: img.MIMEType}, nil
		},
		nil,
		func(stored storedAsset) videos.ScenePatch {
			return videos.ScenePatch{
				ImageStorageID: ptr(stored.key),
				ImageURL:       ptr(stored.url),
				ImageInProcess: ptr(false),
			}
		},
	))
}

func (g *Generator) SceneVideo(ctx context.Context, input SceneVideoInput) (*Result, error) {
	video, scene, err := g.loadScene(ctx, input.UserID, input.VideoID, input.SceneID)
	if err != nil {
		return nil, err
	}
	if !scene.HasImage() {
		return nil, ErrSceneImageMissing
	}
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		prompt = scene.VideoPrompt
	}
	req := fal.VideoRequest{
		ImageURL:        *scene.ImageURL,
		Prompt:          prompt,
		Premium:         video.VideoModelTier.IsPremium(),
		AspectRatio:     string(video.AspectRatio),
		DurationSeconds: clipSeconds(video),
	}

	return g.run(ctx, g.sceneJob(video, scene, input.UserID, enums.AssetKindSceneVideo, clipSlot,
		func(ctx context.Context) (payload, error) {
			clip, err := g.clips.GenerateVideo(ctx, req)
			if err != nil {
				if errors.Is(err, fal.ErrEmptyResult) {
					return payload{}, noCandidates(err)
				}
				return payload{}, generationFailed(err, "video model")
			}
			return payload{data: clip.Data, contentType: clip.ContentType}, nil
		},
		nil,
		func(stored storedAsset) videos.ScenePatch {
			return videos.ScenePatch{
				ClipStorageID:  ptr(stored.key),
				ClipURL:        ptr(stored.url),
				VideoInProcess: ptr(false),
			}
		},
	))
}

// SceneAudio voices the narration, stores it and transcribes the stored file into
// word timings for captions.
func (g *Generator) SceneAudio(ctx context.Context, input SceneAudioInput) (*Result, error) {
	video, scene, err := g.loadScene(ctx, input.UserID, input.VideoID, input.SceneID)
	if err != nil {
		return nil, err
	}
	narration := strings.TrimSpace(scene.Narration)
	if narration == "" {
		return nil, ErrNarrationMissing
	}
	voice := firstNonEmpty(input.VoiceID, video.Voice, g.defaultVoice)

	return g.run(ctx, g.sceneJob(video, scene, input.UserID, enums.AssetKindSceneAudio, audioSlot,
		func(ctx context.Context) (payload, error) {
			audio, err := g.speech.Synthesize(ctx, narration, voice)
			if err != nil {
				if errors.Is(err, elevenlabs.ErrEmptyAudio) {
					return payload{}, noCandidates(err)
				}
				return payload{}, generationFailed(err, "speech synthesis")
			}
			return payload{data: audio.Data, contentType: audio.ContentType}, nil
		},
		func(ctx context.Context, stored *storedAsset) error {
			words, err := g.transcriber.Transcribe(ctx, stored.url)
			if err != nil {
				return generationFailed(err, "transcription")
			}
			stored.words = make([]models.WordTiming, 0, len(words))
			for _, w := range words {
				stored.words = append(stored.words, models.WordTiming{Text: w.Text, StartMs: w.StartMs, EndMs: w.EndMs})
			}
			return nil
		},
		func(stored storedAsset) videos.ScenePatch {
			return videos.ScenePatch{
				AudioStorageID: ptr(stored.key),
				AudioURL:       ptr(stored.url),
				Words:          stored.words,
				AudioInProcess: ptr(false),
			}
		},
	))
}

func (g *Generator) loadScene(ctx context.Context, userID, videoID, sceneID uuid.UUID) (*models.Video, *models.VideoScene, error) {
	video, err := g.loadVideo(ctx, userID, videoID)
	if err != nil {
		return nil, nil, err
	}
	scene, err := g.videos.FindScene(ctx, video.ID, sceneID)
	if err != nil {
		return nil, nil, err
	}
	return video, scene, nil
}

// sceneSlot names the scene columns one generator owns.
type sceneSlot struct {
	fingerprint func(*models.VideoScene) string
	flag        func(on bool) videos.ScenePatch
}

var (
	imageSlot = sceneSlot{
		fingerprint: func(s *models.VideoScene) string { return deref(s.ImageStorageID) + "|" + deref(s.ImageURL) },
		flag:        func(on bool) videos.ScenePatch { return videos.ScenePatch{ImageInProcess: ptr(on)} },
	}
	clipSlot = sceneSlot{
		fingerprint: func(s *models.VideoScene) string { return deref(s.ClipStorageID) + "|" + deref(s.ClipURL) },
		flag:        func(on bool) videos.ScenePatch { return videos.ScenePatch{VideoInProcess: ptr(on)} },
	}
	audioSlot = sceneSlot{
		fingerprint: func(s *models.VideoScene) string { return deref(s.AudioStorageID) + "|" + deref(s.AudioURL) },
		flag:        func(on bool) videos.ScenePatch { return videos.ScenePatch{AudioInProcess: ptr(on)} },
	}
)

func (g *Generator) sceneJob(
	video *models.Video,
	scene *models.VideoScene,
	userID uuid.UUID,
	kind enums.AssetKind,
	slot sceneSlot,
	produce func(context.Context) (payload, error),
	enrich func(context.Context, *storedAsset) error,
	patch func(storedAsset) videos.ScenePatch,
) job {
	return job{
		kind:        kind,
		video:       video,
		userID:      userID,
		itemID:      scene.ID,
		cost:        credits.CostFor(kind, video.VideoModelTier),
		version:     scene.Version,
		fingerprint: slot.fingerprint(scene),
		read: func(ctx context.Context) (int, string, error) {
			current, err := g.videos.FindScene(ctx, video.ID, scene.ID)
			if err != nil {
				return 0, "", err
			}
			return current.Version, slot.fingerprint(current), nil
		},
		flag: func(ctx context.Context, version int, on bool) (int, error) {
			return g.videos.PatchScene(ctx, scene.ID, version, slot.flag(on))
		},
		produce: produce,
		enrich:  enrich,
		write: func(ctx context.Context, version int, stored storedAsset) (int, error) {
			return g.videos.PatchScene(ctx, scene.ID, version, patch(stored))
		},
	}
}

// ResolveCharacterRefs maps the scene's character names to stored character images.
// Names without a generated character are returned separately and left out.
func ResolveCharacterRefs(video *models.Video, scene *models.VideoScene) ([]string, []string) {
	byName := make(map[string]*models.VideoCharacter, len(video.Characters))
	for i := range video.Characters {
		c := &video.Characters[i]
		byName[models.CharacterKey(c.Name)] = c
	}
	refs := make([]string, 0, len(scene.CharactersInScene))
	var missing []string
	for _, name := range scene.CharactersInScene {
		c, ok := byName[models.CharacterKey(name)]
		if !ok || c.ImageStorageID == nil || *c.ImageStorageID == "" {
			missing = append(missing, name)
			continue
		}
		refs = append(refs, *c.ImageStorageID)
	}
	return refs, missing
}

func scenePrompt(video *models.Video, prompt string, refCount int) string {
	var b strings.Builder
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\n\nStyle: %s. Aspect ratio %s.", video.Style, video.AspectRatio)
	if refCount > 0 {
		fmt.Fprintf(&b, " Match the appearance of the %d character reference image(s).", refCount)
	}
	return b.String()
}

// clipSeconds spreads the target duration over the scenes, snapped to the 5 or 10
// second clips the video models produce.
func clipSeconds(video *models.Video) int {
	scenes := len(video.Scenes)
	if scenes == 0 || video.DurationSeconds <= 0 {
		return 5
	}
	per := int(math.Ceil(float64(video.DurationSeconds) / float64(scenes)))
	if per > 5 {
		return 10
	}
	return 5
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
