package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/credits"
	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/gemini"
)

// CharacterImageInput targets one character of a video.
type CharacterImageInput struct {
	UserID      uuid.UUID
	VideoID     uuid.UUID
	CharacterID uuid.UUID
	// Regenerate replaces an existing image, using it as the base reference unless
	// BaseImageStorageID names another one.
	Regenerate         bool
	BaseImageStorageID string
	// Prompt overrides the blueprint image prompt when set.
	Prompt string
}

func (g *Generator) CharacterImage(ctx context.Context, input CharacterImageInput) (*Result, error) {
	video, err := g.loadVideo(ctx, input.UserID, input.VideoID)
	if err != nil {
		return nil, err
	}
	character, err := g.videos.FindCharacter(ctx, video.ID, input.CharacterID)
	if err != nil {
		return nil, err
	}
	if character.HasImage() && !input.Regenerate {
		return nil, ErrCharacterAlreadyGenerated
	}

	baseKey := strings.TrimSpace(input.BaseImageStorageID)
	if baseKey == "" && input.Regenerate {
		baseKey = deref(character.ImageStorageID)
	}
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		prompt = character.ImagePrompt
	}

	return g.run(ctx, job{
		kind:        enums.AssetKindCharacterImage,
		video:       video,
		userID:      input.UserID,
		itemID:      character.ID,
		cost:        credits.CostFor(enums.AssetKindCharacterImage, video.VideoModelTier),
		version:     character.Version,
		fingerprint: characterFingerprint(character),
		read: func(ctx context.Context) (int, string, error) {
			current, err := g.videos.FindCharacter(ctx, video.ID, character.ID)
			if err != nil {
				return 0, "", err
			}
			return current.Version, characterFingerprint(current), nil
		},
		flag: func(ctx context.Context, version int, on bool) (int, error) {
			return g.videos.PatchCharacter(ctx, character.ID, version, videos.CharacterPatch{InProcess: ptr(on)})
		},
		produce: func(ctx context.Context) (payload, error) {
			var refs []gemini.InlineImage
			if baseKey != "" {
				ref, err := g.fetchReference(ctx, baseKey)
				if err != nil {
					return payload{}, err
				}
				refs = append(refs, ref)
			}
			img, err := g.images.GenerateImage(ctx, characterPrompt(video, prompt, len(refs) > 0), refs)
			if err != nil {
				return payload{}, imageFailure(err)
			}
			return payload{data: img.Data, contentType: img.MIMEType}, nil
		},
		write: func(ctx context.Context, version int, stored storedAsset) (int, error) {
			return g.videos.PatchCharacter(ctx, character.ID, version, videos.CharacterPatch{
				ImageStorageID: ptr(stored.key),
				ImageURL:       ptr(stored.url),
				InProcess:      ptr(false),
			})
		},
	})
}

// fetchReference downloads a stored image so it can be sent inline.
func (g *Generator) fetchReference(ctx context.Context, key string) (gemini.InlineImage, error) {
	data, err := g.blob.Get(ctx, key)
	if err != nil {
		return gemini.InlineImage{}, storageFailed(err, "fetch reference "+key)
	}
	return gemini.InlineImage{MIMEType: mimetype.Detect(data).String(), Data: data}, nil
}

func imageFailure(err error) error {
	if errors.Is(err, gemini.ErrNoCandidates) || errors.Is(err, gemini.ErrNoImage) {
		return noCandidates(err)
	}
	return generationFailed(err, "image model")
}

func characterPrompt(video *models.Video, prompt string, hasBase bool) string {
	var b strings.Builder
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\n\nStyle: %s. Aspect ratio %s.", video.Style, video.AspectRatio)
	b.WriteString(" Single character, full body, neutral pose, plain background, no text.")
	if hasBase {
		b.WriteString(" Keep the identity of the character in the reference image.")
	}
	return b.String()
}

func characterFingerprint(c *models.VideoCharacter) string {
	return deref(c.ImageStorageID) + "|" + deref(c.ImageURL)
}
