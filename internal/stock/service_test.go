package stock

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier-erp/internal/shared"
)

type memoryRepo struct {
	batches   map[string]Batch
	movements []Movement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: make(map[string]Batch)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetBatch(ctx context.Context, batchKey string) (Batch, error) {
	if b, ok := r.batches[batchKey]; ok {
		return b, nil
	}
	return Batch{}, ErrBatchNotFound
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	result := []Movement{}
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.BatchKey != "" && m.BatchKey != filter.BatchKey {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch Batch) (Batch, error) {
	if _, exists := tx.repo.batches[batch.BatchKey]; exists {
		return Batch{}, ErrDuplicateBatch
	}
	tx.repo.nextID++
	batch.ID = tx.repo.nextID
	tx.repo.batches[batch.BatchKey] = batch
	return batch, nil
}

func (tx *memoryTx) GetBatchForUpdate(ctx context.Context, batchKey string) (Batch, error) {
	if b, ok := tx.repo.batches[batchKey]; ok {
		return b, nil
	}
	return Batch{}, ErrBatchNotFound
}

func (tx *memoryTx) UpdateBatch(ctx context.Context, batch Batch) error {
	if _, ok := tx.repo.batches[batch.BatchKey]; !ok {
		return ErrBatchNotFound
	}
	tx.repo.batches[batch.BatchKey] = batch
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (Movement, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement, nil
}

type fakeCatalog struct {
	refs map[string]MaterialInfo
}

func (c *fakeCatalog) Resolve(ctx context.Context, externalCode string) (MaterialInfo, error) {
	if info, ok := c.refs[externalCode]; ok {
		return info, nil
	}
	return MaterialInfo{}, shared.ErrNotFound
}

func newTestService(repo *memoryRepo) *Service {
	catalog := &fakeCatalog{refs: map[string]MaterialInfo{
		"EXT-TISSU-01": {InternalCode: "TIS-001", Category: "CF", DefaultSupplier: "Textiles Durand"},
	}}
	return NewService(repo, catalog, nil, nil, nil)
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestReceiveCreatesBatchWithEntryMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	batch, movement, err := svc.Receive(ctx, ReceiveInput{
		MaterialExternalCode: "EXT-TISSU-01",
		BatchKey:             "B1",
		Quantity:             dec("100"),
		Unit:                 UnitLinearMetre,
		WidthMM:              dec("1400"),
		Location:             "A-03",
	})
	require.NoError(t, err)
	require.Equal(t, "TIS-001", batch.MaterialRef)
	require.Equal(t, "Textiles Durand", batch.Supplier)
	require.True(t, batch.Quantity.Equal(dec("100")))

	require.Equal(t, MovementEntry, movement.Kind)
	require.True(t, movement.QtyBefore.IsZero())
	require.True(t, movement.QtyDelta.Equal(dec("100")))
	require.True(t, movement.QtyAfter.Equal(dec("100")))

	_, _, err = svc.Receive(ctx, ReceiveInput{
		MaterialExternalCode: "EXT-TISSU-01",
		BatchKey:             "B1",
		Quantity:             dec("10"),
		Unit:                 UnitLinearMetre,
	})
	require.ErrorIs(t, err, ErrDuplicateBatch)
}

func TestReceiveUnknownMaterial(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, _, err := svc.Receive(context.Background(), ReceiveInput{
		MaterialExternalCode: "EXT-UNKNOWN",
		Quantity:             dec("5"),
		Unit:                 UnitPiece,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConsumeDecrementsAndGuardsStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.Receive(ctx, ReceiveInput{
		MaterialExternalCode: "EXT-TISSU-01",
		BatchKey:             "B1",
		Quantity:             dec("100"),
		Unit:                 UnitLinearMetre,
	})
	require.NoError(t, err)

	batch, movement, err := svc.Consume(ctx, ConsumeInput{BatchKey: "B1", Quantity: dec("30"), Kind: MovementExit})
	require.NoError(t, err)
	require.True(t, batch.Quantity.Equal(dec("70")))
	require.Equal(t, MovementExit, movement.Kind)
	require.True(t, movement.QtyBefore.Equal(dec("100")))
	require.True(t, movement.QtyDelta.Equal(dec("-30")))
	require.True(t, movement.QtyAfter.Equal(dec("70")))

	moveCount := len(repo.movements)
	_, _, err = svc.Consume(ctx, ConsumeInput{BatchKey: "B1", Quantity: dec("80"), Kind: MovementExit})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(dec("70")))

	current, err := svc.GetBatch(ctx, "B1")
	require.NoError(t, err)
	require.True(t, current.Quantity.Equal(dec("70")))
	require.Len(t, repo.movements, moveCount, "rejected consumption must not record a movement")
}

func TestConsumeValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, _, err := svc.Consume(ctx, ConsumeInput{BatchKey: "B1", Quantity: dec("0"), Kind: MovementExit})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, _, err = svc.Consume(ctx, ConsumeInput{BatchKey: "B1", Quantity: dec("1"), Kind: MovementEntry})
	require.ErrorIs(t, err, ErrInvalidMovementKind)

	_, _, err = svc.Consume(ctx, ConsumeInput{BatchKey: "GHOST", Quantity: dec("1"), Kind: MovementExit})
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestAdjustNeverMovesQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.Receive(ctx, ReceiveInput{
		MaterialExternalCode: "EXT-TISSU-01",
		BatchKey:             "B1",
		Quantity:             dec("42.5"),
		Unit:                 UnitLinearMetre,
	})
	require.NoError(t, err)

	location := "B-12"
	price := dec("9.90")
	batch, movement, err := svc.Adjust(ctx, AdjustInput{BatchKey: "B1", Location: &location, UnitPrice: &price})
	require.NoError(t, err)
	require.Equal(t, "B-12", batch.Location)
	require.True(t, batch.UnitPrice.Equal(dec("9.90")))
	require.True(t, batch.Quantity.Equal(dec("42.5")))
	require.Equal(t, MovementAdjustment, movement.Kind)
	require.True(t, movement.QtyDelta.IsZero())
	require.True(t, movement.QtyBefore.Equal(movement.QtyAfter))

	unit := UnitSquareMetre
	batch, _, err = svc.Adjust(ctx, AdjustInput{BatchKey: "B1", Unit: &unit})
	require.NoError(t, err)
	require.Equal(t, UnitSquareMetre, batch.Unit)
	require.True(t, batch.Quantity.Equal(dec("42.5")))

	_, _, err = svc.Adjust(ctx, AdjustInput{BatchKey: "B1"})
	require.ErrorIs(t, err, ErrNoOpAdjustment)
}

func TestSplitWidthSpawnsSiblingBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.Receive(ctx, ReceiveInput{
		MaterialExternalCode: "EXT-TISSU-01",
		BatchKey:             "B2",
		Quantity:             dec("50"),
		Unit:                 UnitLinearMetre,
		WidthMM:              dec("1400"),
	})
	require.NoError(t, err)

	result, err := svc.SplitWidth(ctx, SplitWidthInput{BatchKey: "B2", WidthToRemoveMM: dec("300")})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.Derived.BatchKey, "B2-DL-"))
	require.True(t, result.Derived.WidthMM.Equal(dec("1100")))
	require.True(t, result.Derived.Quantity.Equal(dec("50")))
	require.Equal(t, MovementWidthReduction, result.Movement.Kind)
	require.True(t, result.Movement.QtyAfter.Equal(dec("50")))

	source, err := svc.GetBatch(ctx, "B2")
	require.NoError(t, err)
	require.True(t, source.WidthMM.Equal(dec("1400")), "délaizage must not touch the source width")
	require.True(t, source.Quantity.Equal(dec("50")), "délaizage must not touch the source quantity")

	for _, w := range []string{"1400", "1500", "0", "-10"} {
		_, err := svc.SplitWidth(ctx, SplitWidthInput{BatchKey: "B2", WidthToRemoveMM: dec(w)})
		require.ErrorIs(t, err, ErrInvalidWidthReduction, "width %s must be rejected", w)
	}
}

func TestAuditCompleteness(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.Receive(ctx, ReceiveInput{
		MaterialExternalCode: "EXT-TISSU-01",
		BatchKey:             "B1",
		Quantity:             dec("10"),
		Unit:                 UnitLinearMetre,
		WidthMM:              dec("1200"),
	})
	require.NoError(t, err)
	_, _, err = svc.Consume(ctx, ConsumeInput{BatchKey: "B1", Quantity: dec("4"), Kind: MovementConsumption})
	require.NoError(t, err)
	location := "C-01"
	_, _, err = svc.Adjust(ctx, AdjustInput{BatchKey: "B1", Location: &location})
	require.NoError(t, err)
	_, err = svc.SplitWidth(ctx, SplitWidthInput{BatchKey: "B1", WidthToRemoveMM: dec("200")})
	require.NoError(t, err)

	require.Len(t, repo.movements, 4, "each mutation records exactly one movement")
	for _, m := range repo.movements {
		require.True(t, m.QtyAfter.Equal(m.QtyBefore.Add(m.QtyDelta)),
			"movement %d: after must equal before+delta", m.ID)
	}
}

func TestMovementsHonourCallerLimit(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.Receive(ctx, ReceiveInput{
		MaterialExternalCode: "EXT-TISSU-01",
		BatchKey:             "B1",
		Quantity:             dec("10"),
		Unit:                 UnitLinearMetre,
		WidthMM:              dec("1200"),
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _, err = svc.Consume(ctx, ConsumeInput{BatchKey: "B1", Quantity: dec("1"), Kind: MovementConsumption})
		require.NoError(t, err)
	}

	limited, err := svc.Movements(ctx, MovementFilter{BatchKey: "B1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)

	// No limit means the caller gets the full history, not a silent cap.
	all, err := svc.Movements(ctx, MovementFilter{BatchKey: "B1"})
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestMovementsRejectsUnknownKind(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Movements(context.Background(), MovementFilter{Kind: MovementKind("TELEPORT")})
	require.ErrorIs(t, err, ErrInvalidMovementKind)
}
