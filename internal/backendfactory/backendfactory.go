// Package backendfactory builds a storage.Backend from a config.StorageConfig,
// dispatching on the backend tag the way the teacher's cmd/backend/main.go
// dispatches on its own worlds/games/filestore backend-selection flags.
package backendfactory

import (
	"context"
	"fmt"

	"github.com/savevault/syncengine/internal/config"
	"github.com/savevault/syncengine/internal/storage"
	"github.com/savevault/syncengine/internal/storage/localbackend"
	"github.com/savevault/syncengine/internal/storage/s3backend"
)

// New constructs the Backend named by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		return localbackend.New(cfg.Local.BasePath), nil
	case config.BackendS3:
		return s3backend.New(ctx, s3backend.Config{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ConnectTimeout: cfg.ConnectionTimeout(),
		})
	case config.BackendGoogleDrive:
		return storage.NewUnimplemented(string(config.BackendGoogleDrive))
	case config.BackendWebDAV:
		return storage.NewUnimplemented(string(config.BackendWebDAV))
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}
