package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atelier-erp/atelier-erp/internal/catalog"
)

// CatalogWarmupJob pre-populates the reference cache after deploys and on a
// schedule, so receipt bursts never queue behind cold lookups.
type CatalogWarmupJob struct {
	Catalog *catalog.Service
	Logger  *slog.Logger
}

// NewCatalogWarmupJob wires dependencies for the warmup handler.
func NewCatalogWarmupJob(svc *catalog.Service, logger *slog.Logger) *CatalogWarmupJob {
	return &CatalogWarmupJob{Catalog: svc, Logger: logger}
}

// Handle processes catalog warmup tasks.
func (j *CatalogWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalog == nil {
		return errors.New("catalog warmup: handler not configured")
	}
	n, err := j.Catalog.Warmup(ctx)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("catalog cache warmed", slog.Int("references", n))
	}
	return nil
}
