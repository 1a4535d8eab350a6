// Package integration bridges production events to background jobs.
package integration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atelier-erp/atelier-erp/internal/production"
	"github.com/atelier-erp/atelier-erp/jobs"
)

// BoardHooks implements production.IntegrationHandler by enqueueing board
// sync tasks. Enqueueing happens after the stage transaction commits; a queue
// outage therefore surfaces to the caller without rolling back workshop state.
type BoardHooks struct {
	client *jobs.Client
	logger *slog.Logger
}

// NewBoardHooks builds the hooks.
func NewBoardHooks(client *jobs.Client, logger *slog.Logger) *BoardHooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardHooks{client: client, logger: logger}
}

// HandleStageCompleted enqueues a board sync task for a completed stage.
func (h *BoardHooks) HandleStageCompleted(ctx context.Context, evt production.StageCompletedEvent) error {
	if h.client == nil {
		return nil
	}
	payload := jobs.BoardSyncPayload{
		Stage:           string(evt.Stage),
		DurationMinutes: evt.DurationMinutes,
		CompletedAt:     evt.CompletedAt,
	}
	for _, tr := range evt.Transitions {
		payload.Transitions = append(payload.Transitions, jobs.BoardTransition{
			ItemID:     tr.ItemID,
			ProductRef: tr.ProductRef,
			ClientName: tr.ClientName,
			FromStatus: string(tr.FromStatus),
			ToStatus:   string(tr.ToStatus),
		})
	}
	info, err := h.client.EnqueueBoardSync(ctx, payload)
	if err != nil {
		return fmt.Errorf("integration: enqueue board sync: %w", err)
	}
	h.logger.Debug("board sync enqueued",
		slog.String("task_id", info.ID),
		slog.String("stage", payload.Stage))
	return nil
}
