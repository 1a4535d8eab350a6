package stock

import (
	"context"

	"github.com/atelier-erp/atelier-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, batchKey string) (Batch, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxRepository exposes transactional operations used by the service. The
// ledger mutation and its movement record go through the same transaction so
// neither can commit without the other.
type TxRepository interface {
	InsertBatch(ctx context.Context, batch Batch) (Batch, error)
	GetBatchForUpdate(ctx context.Context, batchKey string) (Batch, error)
	UpdateBatch(ctx context.Context, batch Batch) error
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CatalogPort resolves an external material code at receipt time.
type CatalogPort interface {
	Resolve(ctx context.Context, externalCode string) (MaterialInfo, error)
}

// MetricsPort counts posted movements.
type MetricsPort interface {
	ObserveMovement(kind string)
}
