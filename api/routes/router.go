package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/reelforge-backend/api/controllers"
	analyticscontrollers "github.com/angelmondragon/reelforge-backend/api/controllers/analytics"
	"github.com/angelmondragon/reelforge-backend/api/middleware"
	"github.com/angelmondragon/reelforge-backend/internal/analytics"
	"github.com/angelmondragon/reelforge-backend/internal/blueprint"
	"github.com/angelmondragon/reelforge-backend/internal/generation"
	"github.com/angelmondragon/reelforge-backend/internal/pipeline"
	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/pagination"
)

// cacheStore is the redis surface the API middleware needs.
type cacheStore interface {
	middleware.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type creditsService interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error)
}

type blueprintService interface {
	Compile(ctx context.Context, input blueprint.CompileInput) (*models.Video, error)
}

type videoStore interface {
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Video, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Video], error)
	RequestCancel(ctx context.Context, videoID, userID uuid.UUID) error
}

type pipelineService interface {
	Start(ctx context.Context, videoID, userID uuid.UUID) (pipeline.StartResult, error)
}

type renderService interface {
	Submit(ctx context.Context, videoID, userID uuid.UUID) (*models.Video, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// Dependencies are the services the HTTP surface is built on. Storage and Warehouse
// only take part in readiness.
type Dependencies struct {
	DB         controllers.Pinger
	Cache      cacheStore
	Storage    controllers.Pinger
	Warehouse  controllers.Pinger
	Credits    creditsService
	Blueprints blueprintService
	Videos     videoStore
	Pipeline   pipelineService
	Assets     generation.Assets
	Render     renderService
	Analytics  analytics.Service
	Metrics    http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	generationLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("generation", cfg.RateLimit.GenerationWindow, cfg.RateLimit.GenerationLimit),
		deps.Cache,
		logg,
	)

	checks := map[string]controllers.Pinger{
		"db":        deps.DB,
		"storage":   deps.Storage,
		"warehouse": deps.Warehouse,
	}
	if deps.Cache != nil {
		checks["redis"] = deps.Cache
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Post("/api/v1/webhooks/render", controllers.RenderWebhook(deps.Render, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Cache != nil {
			r.Use(middleware.Idempotency(deps.Cache, logg))
		}

		r.Get("/credits", controllers.CreditsBalance(deps.Credits, logg))
		r.Get("/analytics/usage", analyticscontrollers.UsageAnalytics(deps.Analytics, logg))

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", controllers.VideoList(deps.Videos, logg))
			r.Post("/", controllers.VideoCreate(deps.Blueprints, logg))

			r.Route("/{videoId}", func(r chi.Router) {
				r.Get("/", controllers.VideoDetail(deps.Videos, logg))
				r.Get("/estimate", controllers.VideoEstimate(deps.Videos, logg))
				r.Post("/cancel", controllers.VideoCancel(deps.Videos, logg))

				r.Group(func(r chi.Router) {
					r.Use(generationLimit)
					r.Post("/generate", controllers.VideoGenerate(deps.Pipeline, logg))
					r.Post("/render", controllers.VideoRender(deps.Render, logg))
					r.Post("/characters/{characterId}/image", controllers.CharacterImageGenerate(deps.Assets, logg))
					r.Post("/scenes/{sceneId}/image", controllers.SceneImageGenerate(deps.Assets, logg))
					r.Post("/scenes/{sceneId}/video", controllers.SceneVideoGenerate(deps.Assets, logg))
					r.Post("/scenes/{sceneId}/audio", controllers.SceneAudioGenerate(deps.Assets, logg))
				})
			})
		})
	})

	return r
}
