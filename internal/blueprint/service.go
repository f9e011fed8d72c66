// Package blueprint compiles a free text idea into a persisted video blueprint.
package blueprint

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/internal/credits"
	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/reelforge-backend/pkg/db/types"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
)

var ErrScriptFailed = pkgerrors.New(pkgerrors.CodeGenerationFailed, "script generation failed")

// ScriptModel returns JSON constrained by schema.
type ScriptModel interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

type creditGate interface {
	Check(ctx context.Context, userID uuid.UUID, cost int) error
	DebitTx(ctx context.Context, tx *gorm.DB, input credits.DebitInput) (*models.CreditLedgerEntry, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CompileInput is the user request plus the options persisted on the video.
type CompileInput struct {
	UserID          uuid.UUID
	Prompt          string
	Style           enums.VideoStyle
	DurationSeconds int
	AspectRatio     enums.AspectRatio
	Dramatic        bool
	Music           string
	Voice           string
	Tier            enums.VideoModelTier
	MultiAngle      bool
	ImagesPerPrompt int
}

type Service struct {
	model   ScriptModel
	credits creditGate
	videos  videos.Repository
	tx      txRunner
	catalog *Catalog
	metrics *metrics.PipelineMetrics
	logg    *logger.Logger
}

// NewService wires the compiler. A nil catalog selects the embedded one.
func NewService(model ScriptModel, gate creditGate, repo videos.Repository, tx txRunner, catalog *Catalog, m *metrics.PipelineMetrics, logg *logger.Logger) (*Service, error) {
	if model == nil {
		return nil, fmt.Errorf("script model required")
	}
	if gate == nil {
		return nil, fmt.Errorf("credits service required")
	}
	if repo == nil {
		return nil, fmt.Errorf("video repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		var err error
		if catalog, err = DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	return &Service{model: model, credits: gate, videos: repo, tx: tx, catalog: catalog, metrics: m, logg: logg}, nil
}

// Compile charges one blueprint, asks the script model for the plan and persists the
// resulting video in the same transaction as the debit.
func (s *Service) Compile(ctx context.Context, input CompileInput) (*models.Video, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prompt is required")
	}
	if input.DurationSeconds <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration must be positive")
	}
	if input.Tier == "" {
		input.Tier = enums.VideoModelTierStandard
	}
	if input.ImagesPerPrompt <= 0 {
		input.ImagesPerPrompt = 1
	}

	cost := credits.CostFor(enums.AssetKindBlueprint, input.Tier)
	if err := s.credits.Check(ctx, input.UserID, cost); err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(s.catalog, input)
	if err != nil {
		return nil, err
	}
	raw, err := s.model.GenerateJSON(ctx, prompt, Schema(input.MultiAngle))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, ErrScriptFailed, err.Error())
	}
	bp, err := Parse(raw)
	if err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"user_id":   input.UserID.String(),
				"raw_bytes": len(raw),
			})
			s.logg.Error(logCtx, "blueprint.parse_failed", err)
		}
		return nil, err
	}

	video := toVideo(input, bp)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.videos.WithTx(tx).Create(ctx, video); err != nil {
			return err
		}
		videoID := video.ID
		_, err := s.credits.DebitTx(ctx, tx, credits.DebitInput{
			UserID:  input.UserID,
			VideoID: &videoID,
			Kind:    enums.AssetKindBlueprint,
			Amount:  cost,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddCredits(string(enums.AssetKindBlueprint), cost)

	if s.logg != nil {
		logCtx := s.logg.WithVideoID(ctx, video.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"characters": len(video.Characters),
			"scenes":     len(video.Scenes),
			"dramatic":   input.Dramatic,
		})
		s.logg.Info(logCtx, "blueprint.compiled")
	}
	return video, nil
}

func toVideo(input CompileInput, bp *Blueprint) *models.Video {
	video := &models.Video{
		UserID:          input.UserID,
		Prompt:          strings.TrimSpace(input.Prompt),
		Style:           input.Style,
		Music:           input.Music,
		Voice:           input.Voice,
		AspectRatio:     input.AspectRatio,
		DurationSeconds: input.DurationSeconds,
		ImagesPerPrompt: input.ImagesPerPrompt,
		MultiAngle:      input.MultiAngle,
		VideoModelTier:  input.Tier,
		Dramatic:        input.Dramatic,
		Title:           strings.TrimSpace(bp.Title),
	}
	for _, c := range bp.Characters {
		video.Characters = append(video.Characters, models.VideoCharacter{
			Name:        strings.TrimSpace(c.Name),
			ImagePrompt: c.ImagePrompt,
		})
	}
	for _, sc := range bp.Scenes {
		scene := models.VideoScene{
			CharactersInScene: dbtypes.JSONList[string](sc.CharactersInTheScene),
			Narration:         sc.Narration,
			ImagePrompt:       sc.ImagePrompt,
			VideoPrompt:       sc.VideoPrompt,
		}
		if input.MultiAngle {
			for _, a := range sc.Angles {
				scene.Angles = append(scene.Angles, models.VideoSceneAngle{ImagePrompt: a.ImagePrompt, VideoPrompt: a.VideoPrompt})
			}
		}
		video.Scenes = append(video.Scenes, scene)
	}
	return video
}
