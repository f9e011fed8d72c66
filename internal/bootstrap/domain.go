// Package bootstrap assembles the generation domain shared by the api, worker and cron binaries.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/reelforge-backend/internal/blueprint"
	"github.com/angelmondragon/reelforge-backend/internal/credits"
	"github.com/angelmondragon/reelforge-backend/internal/generation"
	"github.com/angelmondragon/reelforge-backend/internal/pipeline"
	"github.com/angelmondragon/reelforge-backend/internal/render"
	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/internal/workflow"
	"github.com/angelmondragon/reelforge-backend/pkg/assemblyai"
	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db"
	"github.com/angelmondragon/reelforge-backend/pkg/elevenlabs"
	"github.com/angelmondragon/reelforge-backend/pkg/fal"
	"github.com/angelmondragon/reelforge-backend/pkg/gemini"
	"github.com/angelmondragon/reelforge-backend/pkg/instance"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/reelforge-backend/pkg/redis"
	renderclient "github.com/angelmondragon/reelforge-backend/pkg/render"
	"github.com/angelmondragon/reelforge-backend/pkg/storage"
	"github.com/angelmondragon/reelforge-backend/pkg/storage/blobstore"
)

// Domain holds the wired generation services.
type Domain struct {
	Videos     videos.Repository
	Runs       workflow.Repository
	Credits    credits.Service
	Outbox     *outbox.Service
	Blob       storage.Blob
	Assets     *generation.Generator
	Blueprints *blueprint.Service
	Pipeline   *pipeline.Orchestrator
	Render     *render.Service
	Metrics    *metrics.PipelineMetrics

	closers []io.Closer
}

// NewDomain dials every provider and builds the services on top of dbClient and redisClient.
func NewDomain(ctx context.Context, cfg *config.Config, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer, logg *logger.Logger) (*Domain, error) {
	d := &Domain{
		Videos:  videos.NewRepository(dbClient.DB()),
		Runs:    workflow.NewRepository(dbClient.DB()),
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics: metrics.NewPipelineMetrics(reg),
	}
	fail := func(err error) (*Domain, error) {
		return nil, multierr.Append(err, d.Close())
	}

	creditsSvc, err := credits.NewService(credits.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		return fail(err)
	}
	d.Credits = creditsSvc

	blob, err := blobstore.Open(ctx, cfg, logg)
	if err != nil {
		return fail(fmt.Errorf("open blob storage: %w", err))
	}
	d.Blob = blob
	if c, ok := blob.(io.Closer); ok {
		d.closers = append(d.closers, c)
	}

	geminiClient, err := gemini.NewClient(ctx, cfg.Gemini, logg)
	if err != nil {
		return fail(fmt.Errorf("gemini client: %w", err))
	}
	d.closers = append(d.closers, geminiClient)

	falClient, err := fal.NewClient(cfg.Fal, logg)
	if err != nil {
		return fail(fmt.Errorf("fal client: %w", err))
	}
	speech, err := elevenlabs.NewClient(cfg.ElevenLabs)
	if err != nil {
		return fail(fmt.Errorf("elevenlabs client: %w", err))
	}
	transcriber, err := assemblyai.NewClient(cfg.AssemblyAI)
	if err != nil {
		return fail(fmt.Errorf("assemblyai client: %w", err))
	}

	d.Assets, err = generation.NewGenerator(generation.Params{
		Videos:       d.Videos,
		Credits:      d.Credits,
		Blob:         blob,
		Images:       geminiClient,
		Clips:        falClient,
		Speech:       speech,
		Transcriber:  transcriber,
		KeyPrefix:    cfg.Storage.KeyPrefix,
		DefaultVoice: cfg.ElevenLabs.DefaultVoiceID,
		Metrics:      d.Metrics,
		Logger:       logg,
	})
	if err != nil {
		return fail(err)
	}

	d.Blueprints, err = blueprint.NewService(geminiClient, d.Credits, d.Videos, dbClient, nil, d.Metrics, logg)
	if err != nil {
		return fail(err)
	}

	d.Pipeline, err = pipeline.NewOrchestrator(pipeline.Params{
		DB:      dbClient,
		Videos:  d.Videos,
		Runs:    d.Runs,
		Credits: d.Credits,
		Assets:  d.Assets,
		Outbox:  d.Outbox,
		Policy:  pipeline.NewRetryPolicy(cfg.Pipeline),
		Config:  cfg.Pipeline,
		Owner:   instance.GetID(),
		Metrics: d.Metrics,
		Logger:  logg,
	})
	if err != nil {
		return fail(err)
	}

	renderer, err := renderclient.NewClient(cfg.Render)
	if err != nil {
		return fail(fmt.Errorf("render client: %w", err))
	}
	guard, err := idempotency.NewManager(redisClient, cfg.Render.WebhookTTL)
	if err != nil {
		return fail(err)
	}
	d.Render, err = render.NewService(render.Params{
		Renderer:   renderer,
		Videos:     d.Videos,
		DB:         dbClient,
		Outbox:     d.Outbox,
		Guard:      guard,
		Secret:     cfg.Render.WebhookSecret,
		WebhookURL: cfg.Render.WebhookURL(cfg.App.PublicURL),
		Timeout:    cfg.Render.Timeout,
		Logger:     logg,
	})
	if err != nil {
		return fail(err)
	}
	return d, nil
}

// Close releases the provider clients.
func (d *Domain) Close() error {
	if d == nil {
		return nil
	}
	var err error
	for i := len(d.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, d.closers[i].Close())
	}
	d.closers = nil
	return err
}
