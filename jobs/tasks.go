package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBoardSync mirrors completed production stages onto the project board.
	TaskBoardSync = "board:sync"
	// TaskCatalogWarmup pre-populates the reference cache.
	TaskCatalogWarmup = "catalog:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// BoardTransition is one item status change carried in a board sync task.
type BoardTransition struct {
	ItemID     int64  `json:"item_id"`
	ProductRef string `json:"product_ref"`
	ClientName string `json:"client_name"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// BoardSyncPayload describes a completed stage to push to the project board.
type BoardSyncPayload struct {
	Stage           string            `json:"stage"`
	Transitions     []BoardTransition `json:"transitions"`
	DurationMinutes int               `json:"duration_minutes"`
	CompletedAt     time.Time         `json:"completed_at"`
}

// NewBoardSyncTask constructs a board sync task.
func NewBoardSyncTask(payload BoardSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBoardSync, data, asynq.MaxRetry(5)), nil
}

// CatalogWarmupPayload carries no parameters today; the struct keeps the wire
// format extensible.
type CatalogWarmupPayload struct{}

// NewCatalogWarmupTask constructs a catalog warmup task.
func NewCatalogWarmupTask() (*asynq.Task, error) {
	data, err := json.Marshal(CatalogWarmupPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogWarmup, data), nil
}

// IdempotencyCleanupPayload bounds how old a key must be before removal.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
