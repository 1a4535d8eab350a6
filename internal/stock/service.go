package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier-erp/internal/shared"
)

// Service coordinates batch ledger mutations and movement recording.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort) *Service {
	return &Service{repo: repo, catalog: catalog, audit: audit, idempotency: idem, metrics: metrics}
}

// Receive creates a new batch and records its ENTRY movement.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Batch, Movement, error) {
	if input.MaterialExternalCode == "" {
		return Batch{}, Movement{}, errors.New("stock: material external code required")
	}
	if input.Quantity.Sign() <= 0 {
		return Batch{}, Movement{}, ErrInvalidQuantity
	}
	if !input.Unit.IsValid() {
		return Batch{}, Movement{}, ErrInvalidUnit
	}
	if input.WidthMM.Sign() < 0 {
		return Batch{}, Movement{}, fmt.Errorf("%w: width must not be negative", ErrInvalidAttribute)
	}
	if input.UnitPrice.Sign() < 0 {
		return Batch{}, Movement{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidAttribute)
	}
	if err := validateRefID(input.RefID); err != nil {
		return Batch{}, Movement{}, err
	}

	info, err := s.catalog.Resolve(ctx, input.MaterialExternalCode)
	if err != nil {
		return Batch{}, Movement{}, fmt.Errorf("stock: resolve material %q: %w", input.MaterialExternalCode, err)
	}

	now := time.Now().UTC()
	batchKey := input.BatchKey
	if batchKey == "" {
		batchKey = fmt.Sprintf("%s-%d", info.InternalCode, now.UnixNano())
	}
	supplier := input.Supplier
	if supplier == "" {
		supplier = info.DefaultSupplier
	}
	origin := input.Origin
	if origin == "" {
		origin = OriginReceiving
	}

	batch := Batch{
		MaterialRef:       info.InternalCode,
		BatchKey:          batchKey,
		Quantity:          input.Quantity,
		Unit:              input.Unit,
		WidthMM:           input.WidthMM,
		Location:          input.Location,
		SupplierBatchCode: input.SupplierBatchCode,
		Supplier:          supplier,
		UnitPrice:         input.UnitPrice,
	}

	key := fmt.Sprintf("%s:%s:%s", MovementEntry, info.InternalCode, batchKey)
	insertedKey, err := s.claimKey(ctx, key)
	if err != nil {
		return Batch{}, Movement{}, err
	}

	var movement Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		batch = created
		movement, err = s.record(ctx, tx, Movement{
			Kind:        MovementEntry,
			MaterialRef: batch.MaterialRef,
			BatchKey:    batch.BatchKey,
			QtyBefore:   decimal.Zero,
			QtyDelta:    input.Quantity,
			Unit:        input.Unit,
			Origin:      origin,
			Note:        input.Note,
			RefID:       input.RefID,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		s.releaseKey(ctx, key, insertedKey)
		return Batch{}, Movement{}, err
	}
	s.observe(ctx, movement, input.ActorID)
	return batch, movement, nil
}

// Consume posts an EXIT or CONSUMPTION against a batch. The quantity must not
// exceed what the batch holds; the row lock taken inside the transaction keeps
// two concurrent consumptions from over-drawing the same batch.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (Batch, Movement, error) {
	if input.BatchKey == "" {
		return Batch{}, Movement{}, errors.New("stock: batch key required")
	}
	if !input.Kind.Outbound() {
		return Batch{}, Movement{}, ErrInvalidMovementKind
	}
	if input.Quantity.Sign() <= 0 {
		return Batch{}, Movement{}, ErrInvalidQuantity
	}
	if err := validateRefID(input.RefID); err != nil {
		return Batch{}, Movement{}, err
	}
	origin := input.Origin
	if origin == "" {
		origin = OriginManual
	}

	now := time.Now().UTC()
	var (
		batch    Batch
		movement Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, input.BatchKey)
		if err != nil {
			return err
		}
		if input.Quantity.GreaterThan(current.Quantity) {
			return &InsufficientStockError{
				BatchKey:  current.BatchKey,
				Requested: input.Quantity,
				Available: current.Quantity,
			}
		}
		before := current.Quantity
		current.Quantity = current.Quantity.Sub(input.Quantity)
		if err := tx.UpdateBatch(ctx, current); err != nil {
			return err
		}
		batch = current
		movement, err = s.record(ctx, tx, Movement{
			Kind:        input.Kind,
			MaterialRef: current.MaterialRef,
			BatchKey:    current.BatchKey,
			QtyBefore:   before,
			QtyDelta:    input.Quantity.Neg(),
			Unit:        current.Unit,
			Origin:      origin,
			Note:        input.Note,
			RefID:       input.RefID,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		return Batch{}, Movement{}, err
	}
	s.observe(ctx, movement, input.ActorID)
	return batch, movement, nil
}

// Adjust updates non-quantity attributes of a batch and records an ADJUSTMENT
// movement with a zero delta.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Batch, Movement, error) {
	if input.BatchKey == "" {
		return Batch{}, Movement{}, errors.New("stock: batch key required")
	}
	if input.Location == nil && input.UnitPrice == nil && input.Unit == nil {
		return Batch{}, Movement{}, ErrNoOpAdjustment
	}
	if input.Unit != nil && !input.Unit.IsValid() {
		return Batch{}, Movement{}, ErrInvalidUnit
	}
	if input.UnitPrice != nil && input.UnitPrice.Sign() < 0 {
		return Batch{}, Movement{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidAttribute)
	}
	origin := input.Origin
	if origin == "" {
		origin = OriginManual
	}

	now := time.Now().UTC()
	var (
		batch    Batch
		movement Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBatchForUpdate(ctx, input.BatchKey)
		if err != nil {
			return err
		}
		if input.Location != nil {
			current.Location = *input.Location
		}
		if input.UnitPrice != nil {
			current.UnitPrice = *input.UnitPrice
		}
		if input.Unit != nil {
			current.Unit = *input.Unit
		}
		if err := tx.UpdateBatch(ctx, current); err != nil {
			return err
		}
		batch = current
		movement, err = s.record(ctx, tx, Movement{
			Kind:        MovementAdjustment,
			MaterialRef: current.MaterialRef,
			BatchKey:    current.BatchKey,
			QtyBefore:   current.Quantity,
			QtyDelta:    decimal.Zero,
			Unit:        current.Unit,
			Origin:      origin,
			Note:        input.Note,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		return Batch{}, Movement{}, err
	}
	s.observe(ctx, movement, input.ActorID)
	return batch, movement, nil
}

// SplitWidth performs a délaizage: a strip of width is removed from a roll
// without consuming its length. The source batch keeps its quantity and width;
// a sibling batch with the reduced width and the same quantity is created for
// downstream tracking.
func (s *Service) SplitWidth(ctx context.Context, input SplitWidthInput) (SplitResult, error) {
	if input.BatchKey == "" {
		return SplitResult{}, errors.New("stock: batch key required")
	}
	if input.WidthToRemoveMM.Sign() <= 0 {
		return SplitResult{}, ErrInvalidWidthReduction
	}
	origin := input.Origin
	if origin == "" {
		origin = OriginDelaizage
	}

	now := time.Now().UTC()
	var result SplitResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.GetBatchForUpdate(ctx, input.BatchKey)
		if err != nil {
			return err
		}
		if input.WidthToRemoveMM.Cmp(source.WidthMM) >= 0 {
			return ErrInvalidWidthReduction
		}
		derived := Batch{
			MaterialRef:       source.MaterialRef,
			BatchKey:          fmt.Sprintf("%s-DL-%d", source.BatchKey, now.UnixNano()),
			Quantity:          source.Quantity,
			Unit:              source.Unit,
			WidthMM:           source.WidthMM.Sub(input.WidthToRemoveMM),
			Location:          source.Location,
			SupplierBatchCode: source.SupplierBatchCode,
			Supplier:          source.Supplier,
			UnitPrice:         source.UnitPrice,
		}
		created, err := tx.InsertBatch(ctx, derived)
		if err != nil {
			return err
		}
		note := input.Note
		if note == "" {
			note = fmt.Sprintf("délaizage of %s: removed %s mm", source.BatchKey, input.WidthToRemoveMM)
		}
		movement, err := s.record(ctx, tx, Movement{
			Kind:        MovementWidthReduction,
			MaterialRef: created.MaterialRef,
			BatchKey:    created.BatchKey,
			QtyBefore:   decimal.Zero,
			QtyDelta:    created.Quantity,
			Unit:        created.Unit,
			Origin:      origin,
			Note:        note,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		result = SplitResult{Source: source, Derived: created, Movement: movement}
		return nil
	})
	if err != nil {
		return SplitResult{}, err
	}
	s.observe(ctx, result.Movement, input.ActorID)
	return result, nil
}

// GetBatch returns a batch by key.
func (s *Service) GetBatch(ctx context.Context, batchKey string) (Batch, error) {
	if batchKey == "" {
		return Batch{}, errors.New("stock: batch key required")
	}
	return s.repo.GetBatch(ctx, batchKey)
}

// Movements lists history entries, newest first.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, ErrInvalidMovementKind
	}
	return s.repo.ListMovements(ctx, filter)
}

// record computes QtyAfter from the before/delta captured at operation time
// rather than re-reading state, so the entry reflects the instant of the
// business operation even under concurrent access.
func (s *Service) record(ctx context.Context, tx TxRepository, movement Movement) (Movement, error) {
	if movement.Kind == MovementAdjustment && !movement.QtyDelta.IsZero() {
		return Movement{}, errors.New("stock: adjustment movements must carry a zero delta")
	}
	movement.QtyAfter = movement.QtyBefore.Add(movement.QtyDelta)
	if movement.QtyAfter.Sign() < 0 {
		return Movement{}, &InsufficientStockError{
			BatchKey:  movement.BatchKey,
			Requested: movement.QtyDelta.Neg(),
			Available: movement.QtyBefore,
		}
	}
	return tx.InsertMovement(ctx, movement)
}

func (s *Service) claimKey(ctx context.Context, key string) (bool, error) {
	if s.idempotency == nil {
		return false, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) releaseKey(ctx context.Context, key string, inserted bool) {
	if inserted {
		_ = s.idempotency.Delete(ctx, key)
	}
}

func (s *Service) observe(ctx context.Context, movement Movement, actorID int64) {
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(movement.Kind))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("stock:%s", movement.Kind),
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%s:%s", movement.MaterialRef, movement.BatchKey),
			Meta: map[string]any{
				"qty_before": movement.QtyBefore.String(),
				"qty_delta":  movement.QtyDelta.String(),
				"qty_after":  movement.QtyAfter.String(),
				"origin":     movement.Origin,
			},
		})
	}
}

func validateRefID(refID string) error {
	if refID == "" {
		return nil
	}
	if _, err := uuid.Parse(refID); err != nil {
		return fmt.Errorf("stock: invalid ref id: %w", err)
	}
	return nil
}
