package production

import (
	"context"
	"time"

	"github.com/atelier-erp/atelier-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	ListHistory(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error)
}

// TxRepository exposes transactional operations used by the service. Status
// updates, assignment bookkeeping and history entries for one stage event
// commit or roll back together.
type TxRepository interface {
	InsertItem(ctx context.Context, item Item) (Item, error)
	GetItemsForUpdate(ctx context.Context, productRef string, status Status) ([]Item, error)
	UpdateItemStatus(ctx context.Context, itemID int64, status Status) error
	InsertAssignment(ctx context.Context, itemID int64, stage Stage) error
	TransitionAssignments(ctx context.Context, itemID int64, stage Stage, from, to AssignmentState, at time.Time) error
	InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts status transitions.
type MetricsPort interface {
	ObserveTransition(stage string)
}
