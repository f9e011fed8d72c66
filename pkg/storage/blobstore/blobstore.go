// Package blobstore picks the storage.Blob driver named by configuration.
package blobstore

import (
	"context"
	"fmt"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/storage"
	"github.com/angelmondragon/reelforge-backend/pkg/storage/gcs"
	"github.com/angelmondragon/reelforge-backend/pkg/storage/s3"
)

// Open returns the configured blob driver.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.Blob, error) {
	switch cfg.Storage.NormalizedDriver() {
	case config.StorageDriverGCS:
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.StorageDriverS3:
		client, err := s3.NewClient(ctx, cfg.S3, logg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
