// Package render hands finished videos to the external renderer and settles the
// render when the renderer calls back.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
	renderclient "github.com/angelmondragon/reelforge-backend/pkg/render"
)

const (
	eventSource  = "render"
	webhookScope = "render-webhook"
	timeoutError = "render timed out"
)

var (
	ErrNothingToRender = pkgerrors.New(pkgerrors.CodeValidation, "video has no generated scene clips")
	ErrBadSignature    = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	ErrBadPayload      = pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook payload")
)

// Renderer submits a composition for rendering.
type Renderer interface {
	Submit(ctx context.Context, doc renderclient.Document, webhookURL string) (renderclient.Submission, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type keyGuard interface {
	CheckAndMarkKey(ctx context.Context, scope, id string) (bool, error)
	DeleteKey(ctx context.Context, scope, id string) error
}

type Service struct {
	renderer   Renderer
	videos     videos.Repository
	tx         txRunner
	outbox     eventEmitter
	guard      keyGuard
	secret     string
	webhookURL string
	timeout    time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

type Params struct {
	Renderer   Renderer
	Videos     videos.Repository
	DB         txRunner
	Outbox     eventEmitter
	Guard      keyGuard
	Secret     string
	WebhookURL string
	Timeout    time.Duration
	Logger     *logger.Logger
}

func NewService(p Params) (*Service, error) {
	switch {
	case p.Renderer == nil:
		return nil, errors.New("renderer required")
	case p.Videos == nil:
		return nil, errors.New("video repository required")
	case p.DB == nil:
		return nil, errors.New("transaction runner required")
	case p.Outbox == nil:
		return nil, errors.New("outbox service required")
	case p.Guard == nil:
		return nil, errors.New("idempotency guard required")
	case strings.TrimSpace(p.WebhookURL) == "":
		return nil, errors.New("webhook url required")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Service{
		renderer:   p.Renderer,
		videos:     p.Videos,
		tx:         p.DB,
		outbox:     p.Outbox,
		guard:      p.Guard,
		secret:     p.Secret,
		webhookURL: p.WebhookURL,
		timeout:    timeout,
		logg:       p.Logger,
		now:        time.Now,
	}, nil
}

// Submit sends the video's generated clips to the renderer and marks the render pending.
func (s *Service) Submit(ctx context.Context, videoID, userID uuid.UUID) (*models.Video, error) {
	video, err := s.videos.FindForUser(ctx, videoID, userID)
	if err != nil {
		return nil, err
	}
	if video.IsRunning() {
		return nil, videos.ErrVideoAlreadyRunning
	}
	doc, ok := document(video)
	if !ok {
		return nil, ErrNothingToRender
	}

	sub, err := s.renderer.Submit(ctx, doc, s.webhookURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render submission failed")
	}
	if err := s.videos.MarkRenderPending(ctx, video.ID, sub.RenderID, sub.BucketName, s.now()); err != nil {
		return nil, err
	}

	s.info(ctx, video.ID, "render.submitted", map[string]any{
		"render_id": sub.RenderID,
		"scenes":    len(doc.Scenes),
	})
	return s.videos.FindByID(ctx, video.ID)
}

// document keeps only scenes that have a clip. ok is false when none do.
func document(video *models.Video) (renderclient.Document, bool) {
	doc := renderclient.Document{
		VideoID:     video.ID.String(),
		Title:       video.Title,
		AspectRatio: string(video.AspectRatio),
		Music:       video.Music,
	}
	for _, sc := range video.Scenes {
		if !sc.HasClip() {
			continue
		}
		scene := renderclient.Scene{ClipURL: *sc.ClipURL, Narration: sc.Narration}
		if sc.AudioURL != nil {
			scene.AudioURL = *sc.AudioURL
		}
		for _, w := range sc.Words {
			scene.Words = append(scene.Words, renderclient.Word{Text: w.Text, StartMs: w.StartMs, EndMs: w.EndMs})
		}
		doc.Scenes = append(doc.Scenes, scene)
	}
	return doc, len(doc.Scenes) > 0
}

// HandleWebhook verifies and applies a renderer callback. Replays are accepted and
// change nothing.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if err := renderclient.VerifySignature(s.secret, body, signature); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, ErrBadSignature.Message())
	}
	var payload renderclient.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, ErrBadPayload.Message())
	}
	if strings.TrimSpace(payload.RenderID) == "" {
		return ErrBadPayload
	}

	key := payload.RenderID + ":" + strings.ToLower(payload.Type)
	already, err := s.guard.CheckAndMarkKey(ctx, webhookScope, key)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook idempotency check failed")
	}
	if already {
		if s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "render_id", payload.RenderID), "render.webhook.duplicate")
		}
		return nil
	}

	outcome := videos.RenderOutcome{Succeeded: payload.Succeeded()}
	if outcome.Succeeded {
		outcome.VideoURL = payload.OutputURL
	} else {
		outcome.Error = payload.ErrorMessage()
	}
	if _, err := s.settle(ctx, payload.RenderID, outcome); err != nil {
		// let the renderer's retry through
		_ = s.guard.DeleteKey(context.WithoutCancel(ctx), webhookScope, key)
		return err
	}
	return nil
}

// ExpirePending fails renders that have been pending longer than the timeout.
func (s *Service) ExpirePending(ctx context.Context, limit int) (int, error) {
	pending, err := s.videos.ListPendingRenders(ctx, s.now().Add(-s.timeout), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, v := range pending {
		if v.RenderID == nil {
			continue
		}
		changed, err := s.settle(ctx, *v.RenderID, videos.RenderOutcome{Error: timeoutError})
		if err != nil {
			return expired, fmt.Errorf("expire render %s: %w", *v.RenderID, err)
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) settle(ctx context.Context, renderID string, outcome videos.RenderOutcome) (bool, error) {
	var (
		video   *models.Video
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		video, changed, err = s.videos.WithTx(tx).FinishRender(ctx, renderID, outcome)
		if err != nil || !changed {
			return err
		}
		event := payloads.RenderCompletedEvent{
			VideoID:  video.ID,
			UserID:   video.UserID,
			RenderID: renderID,
			Status:   enums.RenderStatusFailed,
			Error:    outcome.Error,
		}
		if outcome.Succeeded {
			event.Status = enums.RenderStatusSucceeded
			event.VideoURL = outcome.VideoURL
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRenderCompleted,
			AggregateType: enums.AggregateVideo,
			AggregateID:   video.ID,
			Actor:         &outbox.ActorRef{UserID: video.UserID, Source: eventSource},
			Data:          event,
			Version:       1,
			OccurredAt:    s.now().UTC(),
		})
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.info(ctx, video.ID, "render.settled", map[string]any{
			"render_id": renderID,
			"succeeded": outcome.Succeeded,
		})
	}
	return changed, nil
}

func (s *Service) info(ctx context.Context, videoID uuid.UUID, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithVideoID(ctx, videoID.String()), fields), msg)
}
