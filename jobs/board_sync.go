package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

// BoardSyncJob pushes completed stage transitions to the external project
// board. Failures are retried by Asynq; the workshop state already committed,
// so retries only ever replay the notification.
type BoardSyncJob struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

// NewBoardSyncJob wires dependencies for the board sync handler.
func NewBoardSyncJob(baseURL string, logger *slog.Logger) *BoardSyncJob {
	return &BoardSyncJob{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Logger:  logger,
	}
}

// Handle processes board sync tasks.
func (j *BoardSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("board sync: handler not configured")
	}
	var payload BoardSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if j.BaseURL == "" {
		// Board integration disabled, drop the task quietly.
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return asynq.SkipRetry
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.BaseURL+"/api/board/sync", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.Client.Do(req)
	if err != nil {
		return fmt.Errorf("board sync: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("board sync: unexpected status %d", resp.StatusCode)
	}

	j.logger().Info("board synced",
		slog.String("stage", payload.Stage),
		slog.Int("transitions", len(payload.Transitions)))
	return nil
}

func (j *BoardSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
