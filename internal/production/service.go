package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atelier-erp/atelier-erp/internal/shared"
)

// Service advances production items through the routing graph and keeps task
// assignments in lockstep.
type Service struct {
	repo        RepositoryPort
	routing     RoutingTable
	audit       AuditPort
	metrics     MetricsPort
	integration IntegrationHandler
	logger      *slog.Logger
}

// NewService builds Service. A nil routing table falls back to the default
// workshop routing.
func NewService(repo RepositoryPort, routing RoutingTable, audit AuditPort, metrics MetricsPort, integration IntegrationHandler, logger *slog.Logger) *Service {
	if routing == nil {
		routing = DefaultRoutingTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, routing: routing, audit: audit, metrics: metrics, integration: integration, logger: logger}
}

// CreateItem registers a new production item in TO_DO with a pending cutting
// assignment.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	if input.ClientName == "" || input.ProductRef == "" {
		return Item{}, errors.New("production: client and product reference required")
	}
	if input.Quantity <= 0 {
		return Item{}, errors.New("production: quantity must be positive")
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertItem(ctx, Item{
			ClientName: input.ClientName,
			ProductRef: input.ProductRef,
			Category:   input.Category,
			Quantity:   input.Quantity,
			Status:     StatusToDo,
		})
		if err != nil {
			return err
		}
		item = created
		return tx.InsertAssignment(ctx, created.ID, StageCutting)
	})
	if err != nil {
		return Item{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "production:create",
			Entity:   "production_item",
			EntityID: fmt.Sprintf("%d", item.ID),
			Meta:     map[string]any{"product_ref": item.ProductRef, "client": item.ClientName, "qty": item.Quantity},
		})
	}
	return item, nil
}

// StartStage moves matching items from the stage's expected predecessor status
// into its in-progress status. Items in any other status are silently skipped,
// which makes a double start a no-op for already-transitioned items.
func (s *Service) StartStage(ctx context.Context, input StartStageInput) (StageResult, error) {
	if !input.Stage.IsValid() {
		return StageResult{}, ErrInvalidStage
	}
	from, to, ok := input.Stage.startTransition()
	if !ok {
		return StageResult{}, fmt.Errorf("%w: %s cannot be started", ErrInvalidStage, input.Stage)
	}
	if len(input.ProductRefs) == 0 {
		return StageResult{}, errors.New("production: at least one product reference required")
	}

	now := time.Now().UTC()
	var result StageResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, ref := range dedupe(input.ProductRefs) {
			items, err := tx.GetItemsForUpdate(ctx, ref, from)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				s.logger.Warn("no items in expected status, skipping reference",
					slog.String("product_ref", ref),
					slog.String("stage", string(input.Stage)),
					slog.String("expected", string(from)))
				result.Skipped = append(result.Skipped, ref)
				continue
			}
			for _, item := range items {
				if err := tx.UpdateItemStatus(ctx, item.ID, to); err != nil {
					return err
				}
				if err := tx.TransitionAssignments(ctx, item.ID, input.Stage, AssignmentPending, AssignmentInProgress, now); err != nil {
					return err
				}
				if _, err := tx.InsertHistory(ctx, HistoryEntry{
					ItemID:     item.ID,
					ProductRef: item.ProductRef,
					Stage:      input.Stage,
					FromStatus: from,
					ToStatus:   to,
					Origin:     "STAGE_START",
					CreatedAt:  now,
				}); err != nil {
					return err
				}
				item.Status = to
				result.Updated = append(result.Updated, item)
			}
		}
		return nil
	})
	if err != nil {
		return StageResult{}, err
	}
	s.observe(ctx, "start", input.Stage, result, input.ActorID)
	return result, nil
}

// CompleteStage moves matching in-progress items to their successor status per
// the routing table, closes their assignments and records history with the
// stage duration. References with no item in the expected status are skipped
// with a warning so a mixed batch still processes what it can.
func (s *Service) CompleteStage(ctx context.Context, input CompleteStageInput) (StageResult, error) {
	if !input.Stage.IsValid() {
		return StageResult{}, ErrInvalidStage
	}
	from, ok := input.Stage.completeFrom()
	if !ok {
		return StageResult{}, ErrInvalidStage
	}
	if len(input.ProductRefs) == 0 {
		return StageResult{}, errors.New("production: at least one product reference required")
	}
	if input.DurationMinutes < 0 {
		return StageResult{}, ErrInvalidDuration
	}

	now := time.Now().UTC()
	var (
		result      StageResult
		transitions []ItemTransition
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, ref := range dedupe(input.ProductRefs) {
			items, err := tx.GetItemsForUpdate(ctx, ref, from)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				s.logger.Warn("no items in expected status, skipping reference",
					slog.String("product_ref", ref),
					slog.String("stage", string(input.Stage)),
					slog.String("expected", string(from)))
				result.Skipped = append(result.Skipped, ref)
				continue
			}
			for _, item := range items {
				to := s.successor(input.Stage, input.HasCutting, item.Category)
				if err := tx.UpdateItemStatus(ctx, item.ID, to); err != nil {
					return err
				}
				if err := tx.TransitionAssignments(ctx, item.ID, input.Stage, input.Stage.completeAssignmentFrom(), AssignmentDone, now); err != nil {
					return err
				}
				if next, ok := stageFor(to); ok {
					if err := tx.InsertAssignment(ctx, item.ID, next); err != nil {
						return err
					}
				}
				if _, err := tx.InsertHistory(ctx, HistoryEntry{
					ItemID:          item.ID,
					ProductRef:      item.ProductRef,
					Stage:           input.Stage,
					FromStatus:      from,
					ToStatus:        to,
					DurationMinutes: input.DurationMinutes,
					Origin:          "STAGE_COMPLETE",
					CreatedAt:       now,
				}); err != nil {
					return err
				}
				transitions = append(transitions, ItemTransition{
					ItemID:     item.ID,
					ProductRef: item.ProductRef,
					ClientName: item.ClientName,
					FromStatus: from,
					ToStatus:   to,
				})
				item.Status = to
				result.Updated = append(result.Updated, item)
			}
		}
		return nil
	})
	if err != nil {
		return StageResult{}, err
	}
	s.observe(ctx, "complete", input.Stage, result, input.ActorID)
	if s.integration != nil && len(transitions) > 0 {
		evt := StageCompletedEvent{
			Stage:           input.Stage,
			Transitions:     transitions,
			DurationMinutes: input.DurationMinutes,
			CompletedAt:     now,
		}
		// The transaction already committed; losing the board event must not
		// make the caller believe the transition failed.
		if err := s.integration.HandleStageCompleted(ctx, evt); err != nil {
			s.logger.Error("stage completion event not delivered",
				slog.String("stage", string(input.Stage)),
				slog.Int("transitions", len(transitions)),
				slog.Any("error", err))
		}
	}
	return result, nil
}

// ListItems lists production items.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, ErrUnknownStatus
	}
	return s.repo.ListItems(ctx, filter)
}

// History lists production history entries, newest first.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	if filter.Stage != "" && !filter.Stage.IsValid() {
		return nil, ErrInvalidStage
	}
	return s.repo.ListHistory(ctx, filter)
}

// successor decides the status an item reaches when a stage completes.
func (s *Service) successor(stage Stage, hasCutting bool, category string) Status {
	switch stage {
	case StageCutting:
		return s.routing.NextAfterCutting(hasCutting, category)
	case StageConfection, StageAssembly:
		return StatusReadyToShip
	case StageShipment:
		return StatusShipped
	default:
		return StatusReadyToShip
	}
}

func (s *Service) observe(ctx context.Context, action string, stage Stage, result StageResult, actorID int64) {
	if s.metrics != nil {
		for range result.Updated {
			s.metrics.ObserveTransition(string(stage))
		}
	}
	if s.audit != nil && len(result.Updated) > 0 {
		ids := make([]int64, 0, len(result.Updated))
		for _, item := range result.Updated {
			ids = append(ids, item.ID)
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("production:%s:%s", action, stage),
			Entity:   "production_item",
			EntityID: fmt.Sprintf("%s:%d", stage, len(ids)),
			Meta:     map[string]any{"item_ids": ids, "skipped": result.Skipped},
		})
	}
}

func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
