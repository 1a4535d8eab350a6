package production

import (
	"context"
	"time"
)

// ItemTransition describes one item's status change within a stage event.
type ItemTransition struct {
	ItemID     int64
	ProductRef string
	ClientName string
	FromStatus Status
	ToStatus   Status
}

// StageCompletedEvent is emitted after a completed stage commits, so the
// external project board can be brought in line with workshop state.
type StageCompletedEvent struct {
	Stage           Stage
	Transitions     []ItemTransition
	DurationMinutes int
	CompletedAt     time.Time
}

// IntegrationHandler receives production events for board synchronisation.
type IntegrationHandler interface {
	HandleStageCompleted(ctx context.Context, evt StageCompletedEvent) error
}
