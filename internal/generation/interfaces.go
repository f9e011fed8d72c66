package generation

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/credits"
	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/pkg/assemblyai"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/elevenlabs"
	"github.com/angelmondragon/reelforge-backend/pkg/fal"
	"github.com/angelmondragon/reelforge-backend/pkg/gemini"
)

// ImageModel renders a still from a prompt and optional inline reference images.
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt string, refs []gemini.InlineImage) (gemini.InlineImage, error)
}

// VideoModel animates a still image.
type VideoModel interface {
	GenerateVideo(ctx context.Context, req fal.VideoRequest) (fal.Video, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (elevenlabs.Audio, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) ([]assemblyai.Word, error)
}

// CreditLedger is the slice of credits.Service the generators depend on.
type CreditLedger interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Debit(ctx context.Context, input credits.DebitInput) (*models.CreditLedgerEntry, error)
}

// VideoStore is the slice of videos.Repository the generators depend on.
type VideoStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	FindCharacter(ctx context.Context, videoID, characterID uuid.UUID) (*models.VideoCharacter, error)
	FindScene(ctx context.Context, videoID, sceneID uuid.UUID) (*models.VideoScene, error)
	PatchCharacter(ctx context.Context, id uuid.UUID, expectedVersion int, patch videos.CharacterPatch) (int, error)
	PatchScene(ctx context.Context, id uuid.UUID, expectedVersion int, patch videos.ScenePatch) (int, error)
}

// Assets is what the orchestrator and the API call to produce one asset.
type Assets interface {
	CharacterImage(ctx context.Context, input CharacterImageInput) (*Result, error)
	SceneImage(ctx context.Context, input SceneImageInput) (*Result, error)
	SceneVideo(ctx context.Context, input SceneVideoInput) (*Result, error)
	SceneAudio(ctx context.Context, input SceneAudioInput) (*Result, error)
}
