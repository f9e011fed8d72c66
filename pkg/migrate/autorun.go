package migrate

import (
	"context"
	"fmt"
	"path"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

// AutoMigrate applies pending migrations at startup when running in dev with
// REELFORGE_AUTO_MIGRATE set. It is a no-op everywhere else.
func AutoMigrate(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	m, err := New(sqlDB)
	if err != nil {
		return err
	}
	results, err := m.Up(ctx)
	LogResults(ctx, logg, results)
	return err
}

// LogResults writes one line per migration goose touched.
func LogResults(ctx context.Context, logg *logger.Logger, results []*goose.MigrationResult) {
	if logg == nil {
		return
	}
	if len(results) == 0 {
		logg.Info(ctx, "migrate.up_to_date")
		return
	}
	for _, r := range results {
		fields := map[string]any{
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
			"empty":       r.Empty,
		}
		if r.Source != nil {
			fields["version"] = r.Source.Version
			fields["file"] = path.Base(r.Source.Path)
		}
		logCtx := logg.WithFields(ctx, fields)
		if r.Error != nil {
			logg.Error(logCtx, "migrate.failed", r.Error)
			continue
		}
		logg.Info(logCtx, "migrate.applied")
	}
}
