package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-erp/atelier-erp/internal/platform/db"
)

// Repository persists batches and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrBatchNotFound indicates a missing batch row.
var ErrBatchNotFound = errors.New("stock: batch not found")

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const batchColumns = `id, material_ref, batch_key, quantity, unit, width_mm, location, supplier_batch_code, supplier, unit_price, created_at, updated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.MaterialRef, &b.BatchKey, &b.Quantity, &b.Unit, &b.WidthMM, &b.Location, &b.SupplierBatchCode, &b.Supplier, &b.UnitPrice, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

// GetBatch reads a batch without locking.
func (r *Repository) GetBatch(ctx context.Context, batchKey string) (Batch, error) {
	if r == nil {
		return Batch{}, errors.New("stock repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE batch_key=$1`, batchKey)
	return scanBatch(row)
}

// ListMovements returns history entries newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	query := `SELECT id, kind, material_ref, batch_key, qty_before, qty_delta, qty_after, unit, origin, note, COALESCE(ref_id::text, ''), created_at
FROM stock_movements WHERE 1=1`
	args := []any{}
	pos := 1
	if filter.MaterialRef != "" {
		query += fmt.Sprintf(" AND material_ref=$%d", pos)
		args = append(args, filter.MaterialRef)
		pos++
	}
	if filter.BatchKey != "" {
		query += fmt.Sprintf(" AND batch_key=$%d", pos)
		args = append(args, filter.BatchKey)
		pos++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind=$%d", pos)
		args = append(args, string(filter.Kind))
		pos++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", pos)
		args = append(args, filter.From)
		pos++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", pos)
		args = append(args, filter.To)
		pos++
	}
	query += " ORDER BY created_at DESC, id DESC"
	// The caller decides how much history to read; callers without an opinion
	// get the handler default.
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", pos)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Kind, &m.MaterialRef, &m.BatchKey, &m.QtyBefore, &m.QtyDelta, &m.QtyAfter, &m.Unit, &m.Origin, &m.Note, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (Batch, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO stock_batches (material_ref, batch_key, quantity, unit, width_mm, location, supplier_batch_code, supplier, unit_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
RETURNING `+batchColumns, batch.MaterialRef, batch.BatchKey, batch.Quantity, string(batch.Unit), batch.WidthMM, batch.Location, batch.SupplierBatchCode, batch.Supplier, batch.UnitPrice)
	created, err := scanBatch(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Batch{}, ErrDuplicateBatch
		}
		return Batch{}, err
	}
	return created, nil
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, batchKey string) (Batch, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE batch_key=$1 FOR UPDATE`, batchKey)
	return scanBatch(row)
}

func (r *txRepository) UpdateBatch(ctx context.Context, batch Batch) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_batches
SET quantity=$2, unit=$3, location=$4, unit_price=$5, updated_at=NOW()
WHERE batch_key=$1`, batch.BatchKey, batch.Quantity, string(batch.Unit), batch.Location, batch.UnitPrice)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (kind, material_ref, batch_key, qty_before, qty_delta, qty_after, unit, origin, note, ref_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		string(movement.Kind), movement.MaterialRef, movement.BatchKey, movement.QtyBefore, movement.QtyDelta, movement.QtyAfter, string(movement.Unit), movement.Origin, movement.Note, nullUUID(movement.RefID), nullCreatedAt(movement.CreatedAt)).Scan(&movement.ID)
	if err != nil {
		return Movement{}, err
	}
	return movement, nil
}

func nullUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullCreatedAt(t time.Time) any {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
