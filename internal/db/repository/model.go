package repository

import (
	"context"
	"database/sql"
	"fmt"

	"modelsentry/internal/domain"
)

var _ domain.ModelRepository = (*ModelRepo)(nil)

// ModelRepo stores registered semantic models in SQLite.
type ModelRepo struct {
	db *sql.DB
}

// NewModelRepo creates a new ModelRepo.
func NewModelRepo(db *sql.DB) *ModelRepo {
	return &ModelRepo{db: db}
}

// Upsert inserts the model or refreshes its server address and name.
func (r *ModelRepo) Upsert(ctx context.Context, m *domain.SemanticModel) (*domain.SemanticModel, error) {
	if m == nil || m.DatabaseName == "" {
		return nil, domain.ErrValidation("database_name is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO semantic_models (database_name, server_address, model_name)
		VALUES (?, ?, ?)
		ON CONFLICT(database_name) DO UPDATE SET
			server_address = excluded.server_address,
			model_name = excluded.model_name,
			updated_at = CURRENT_TIMESTAMP
	`, m.DatabaseName, m.ServerAddress, m.ModelName)
	if err != nil {
		return nil, mapDBError(err)
	}

	return r.Get(ctx, m.DatabaseName)
}

// Get returns a model by database name.
func (r *ModelRepo) Get(ctx context.Context, databaseName string) (*domain.SemanticModel, error) {
	var m domain.SemanticModel
	err := r.db.QueryRowContext(ctx, `
		SELECT database_name, server_address, model_name, created_at, updated_at
		FROM semantic_models WHERE database_name = ?
	`, databaseName).Scan(&m.DatabaseName, &m.ServerAddress, &m.ModelName, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("model %q not found", databaseName)
		}
		return nil, mapDBError(err)
	}
	return &m, nil
}

// List returns all registered models ordered by database name.
func (r *ModelRepo) List(ctx context.Context) ([]domain.SemanticModel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT database_name, server_address, model_name, created_at, updated_at
		FROM semantic_models ORDER BY database_name
	`)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var models []domain.SemanticModel
	for rows.Next() {
		var m domain.SemanticModel
		if err := rows.Scan(&m.DatabaseName, &m.ServerAddress, &m.ModelName, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, mapDBError(err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// Delete removes a model and everything under it in one transaction,
// leaves before roots: fix steps, fix sessions, findings, runs, model.
func (r *ModelRepo) Delete(ctx context.Context, databaseName string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM semantic_models WHERE database_name = ?`, databaseName).Scan(&exists)
	if err != nil {
		return mapDBError(err)
	}
	if exists == 0 {
		return domain.ErrNotFound("model %q not found", databaseName)
	}

	stmts := []string{
		`DELETE FROM fix_steps WHERE session_id IN (
			SELECT s.id FROM fix_sessions s
			JOIN findings f ON f.id = s.finding_id
			JOIN analysis_runs ar ON ar.id = f.run_id
			WHERE ar.model_database_name = ?)`,
		`DELETE FROM fix_sessions WHERE finding_id IN (
			SELECT f.id FROM findings f
			JOIN analysis_runs ar ON ar.id = f.run_id
			WHERE ar.model_database_name = ?)`,
		`DELETE FROM findings WHERE run_id IN (
			SELECT id FROM analysis_runs WHERE model_database_name = ?)`,
		`DELETE FROM analysis_runs WHERE model_database_name = ?`,
		`DELETE FROM semantic_models WHERE database_name = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, databaseName); err != nil {
			return mapDBError(err)
		}
	}

	return tx.Commit()
}
