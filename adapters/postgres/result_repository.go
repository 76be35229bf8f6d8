package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"

	"bootfit/internal/errors"
	"bootfit/ports"

	"github.com/jmoiron/sqlx"
)

// ResultRepositoryImpl implements ports.ResultStore for PostgreSQL
type ResultRepositoryImpl struct {
	db *sqlx.DB
}

var _ ports.ResultStore = (*ResultRepositoryImpl)(nil)

// NewResultRepository creates a new PostgreSQL result repository
func NewResultRepository(db *sqlx.DB) *ResultRepositoryImpl {
	return &ResultRepositoryImpl{db: db}
}

// Save inserts or replaces a stored result
func (r *ResultRepositoryImpl) Save(ctx context.Context, result *ports.StoredResult) error {
	if result == nil || result.ID == "" {
		return errors.InvalidInput("result id is required")
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO bootstrap_results (id, model_name, fingerprint, num_iteration, error_count, rejected, partial, created_at, blob)
		VALUES (:id, :model_name, :fingerprint, :num_iteration, :error_count, :rejected, :partial, :created_at, :blob)
		ON CONFLICT (id) DO UPDATE SET
			model_name = EXCLUDED.model_name,
			fingerprint = EXCLUDED.fingerprint,
			num_iteration = EXCLUDED.num_iteration,
			error_count = EXCLUDED.error_count,
			rejected = EXCLUDED.rejected,
			partial = EXCLUDED.partial,
			blob = EXCLUDED.blob
	`, result)
	if err != nil {
		return errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to save result "+result.ID)
	}
	return nil
}

// Load retrieves a stored result including its blob
func (r *ResultRepositoryImpl) Load(ctx context.Context, id string) (*ports.StoredResult, error) {
	var stored ports.StoredResult
	err := r.db.GetContext(ctx, &stored, `
		SELECT id, model_name, fingerprint, num_iteration, error_count, rejected, partial, created_at, blob
		FROM bootstrap_results
		WHERE id = $1
	`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("result " + id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to load result "+id)
	}
	return &stored, nil
}

// List returns result summaries, newest first, without blobs
func (r *ResultRepositoryImpl) List(ctx context.Context, limit int) ([]*ports.StoredResult, error) {
	query := `
		SELECT id, model_name, fingerprint, num_iteration, error_count, rejected, partial, created_at
		FROM bootstrap_results
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var out []*ports.StoredResult
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to list results")
	}
	return out, nil
}

// Delete removes a stored result
func (r *ResultRepositoryImpl) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bootstrap_results WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to delete result "+id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("result " + id)
	}
	return nil
}
