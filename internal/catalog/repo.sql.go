package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists reference mappings in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const referenceColumns = `id, external_code, internal_code, category, default_supplier, created_at, updated_at`

func scanReference(row pgx.Row) (Reference, error) {
	var ref Reference
	err := row.Scan(&ref.ID, &ref.ExternalCode, &ref.InternalCode, &ref.Category,
		&ref.DefaultSupplier, &ref.CreatedAt, &ref.UpdatedAt)
	return ref, err
}

// GetByExternalCode loads the mapping for an external code.
func (r *Repository) GetByExternalCode(ctx context.Context, externalCode string) (Reference, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+referenceColumns+` FROM material_references WHERE external_code = $1`,
		externalCode)
	ref, err := scanReference(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reference{}, ErrReferenceNotFound
	}
	if err != nil {
		return Reference{}, fmt.Errorf("catalog: get reference: %w", err)
	}
	return ref, nil
}

// Upsert inserts or updates a mapping keyed by external code.
func (r *Repository) Upsert(ctx context.Context, input UpsertInput) (Reference, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO material_references (external_code, internal_code, category, default_supplier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (external_code) DO UPDATE SET
			internal_code = EXCLUDED.internal_code,
			category = EXCLUDED.category,
			default_supplier = EXCLUDED.default_supplier,
			updated_at = now()
		RETURNING `+referenceColumns,
		input.ExternalCode, input.InternalCode, input.Category, input.DefaultSupplier)
	ref, err := scanReference(row)
	if err != nil {
		return Reference{}, fmt.Errorf("catalog: upsert reference: %w", err)
	}
	return ref, nil
}

// List returns reference mappings, optionally filtered by category.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Reference, error) {
	query := `SELECT ` + referenceColumns + ` FROM material_references`
	args := []any{}
	if filter.Category != "" {
		query += ` WHERE category = $1`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY external_code`
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query += fmt.Sprintf(` LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list references: %w", err)
	}
	defer rows.Close()

	var out []Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan reference: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
