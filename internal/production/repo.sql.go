package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-erp/atelier-erp/internal/platform/db"
)

// Repository persists production items, assignments and history in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const itemColumns = `id, client_name, product_ref, category, quantity, status, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.ClientName, &item.ProductRef, &item.Category, &item.Quantity, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// ListItems lists items, newest first.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	if r == nil {
		return nil, errors.New("production repository not initialised")
	}
	query := `SELECT ` + itemColumns + ` FROM production_items WHERE 1=1`
	args := []any{}
	pos := 1
	if filter.ClientName != "" {
		query += fmt.Sprintf(" AND client_name=$%d", pos)
		args = append(args, filter.ClientName)
		pos++
	}
	if filter.ProductRef != "" {
		query += fmt.Sprintf(" AND product_ref=$%d", pos)
		args = append(args, filter.ProductRef)
		pos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status=$%d", pos)
		args = append(args, string(filter.Status))
		pos++
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", pos)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListHistory lists history entries, newest first.
func (r *Repository) ListHistory(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	if r == nil {
		return nil, errors.New("production repository not initialised")
	}
	query := `SELECT id, item_id, product_ref, stage, from_status, to_status, duration_minutes, origin, created_at
FROM production_history WHERE 1=1`
	args := []any{}
	pos := 1
	if filter.ProductRef != "" {
		query += fmt.Sprintf(" AND product_ref=$%d", pos)
		args = append(args, filter.ProductRef)
		pos++
	}
	if filter.Stage != "" {
		query += fmt.Sprintf(" AND stage=$%d", pos)
		args = append(args, string(filter.Stage))
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
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", pos)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.ProductRef, &e.Stage, &e.FromStatus, &e.ToStatus, &e.DurationMinutes, &e.Origin, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (Item, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO production_items (client_name, product_ref, category, quantity, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING `+itemColumns,
		item.ClientName, item.ProductRef, item.Category, item.Quantity, string(item.Status))
	return scanItem(row)
}

func (r *txRepository) GetItemsForUpdate(ctx context.Context, productRef string, status Status) ([]Item, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+itemColumns+` FROM production_items
WHERE product_ref=$1 AND status=$2 ORDER BY id FOR UPDATE`, productRef, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) UpdateItemStatus(ctx context.Context, itemID int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_items SET status=$2, updated_at=NOW() WHERE id=$1`, itemID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) InsertAssignment(ctx context.Context, itemID int64, stage Stage) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO task_assignments (item_id, stage, state, created_at)
VALUES ($1,$2,$3,NOW())`, itemID, string(stage), string(AssignmentPending))
	return err
}

func (r *txRepository) TransitionAssignments(ctx context.Context, itemID int64, stage Stage, from, to AssignmentState, at time.Time) error {
	var query string
	switch to {
	case AssignmentInProgress:
		query = `UPDATE task_assignments SET state=$4, started_at=$5 WHERE item_id=$1 AND stage=$2 AND state=$3`
	case AssignmentDone:
		query = `UPDATE task_assignments SET state=$4, completed_at=$5 WHERE item_id=$1 AND stage=$2 AND state=$3`
	default:
		query = `UPDATE task_assignments SET state=$4 WHERE item_id=$1 AND stage=$2 AND state=$3`
	}
	if to == AssignmentPending {
		_, err := r.tx.Exec(ctx, query, itemID, string(stage), string(from), string(to))
		return err
	}
	_, err := r.tx.Exec(ctx, query, itemID, string(stage), string(from), string(to), at)
	return err
}

func (r *txRepository) InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO production_history (item_id, product_ref, stage, from_status, to_status, duration_minutes, origin, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		entry.ItemID, entry.ProductRef, string(entry.Stage), string(entry.FromStatus), string(entry.ToStatus), entry.DurationMinutes, entry.Origin, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return HistoryEntry{}, err
	}
	return entry, nil
}
