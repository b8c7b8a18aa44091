package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"modelsentry/internal/domain"
)

var (
	_ domain.QueryExecutionRepository = (*QueryExecutionRepo)(nil)
	_ domain.QueryHistoryRepository   = (*QueryExecutionRepo)(nil)
)

// QueryExecutionRepo stores query executions and the append-only
// history log in SQLite. Terminal transitions write the history row in
// the same transaction as the status update.
type QueryExecutionRepo struct {
	db *sql.DB
}

// NewQueryExecutionRepo creates a new QueryExecutionRepo.
func NewQueryExecutionRepo(db *sql.DB) *QueryExecutionRepo {
	return &QueryExecutionRepo{db: db}
}

// Create inserts an execution already in RUNNING: the query path has no
// queueing phase.
func (r *QueryExecutionRepo) Create(ctx context.Context, e *domain.QueryExecution) (*domain.QueryExecution, error) {
	if e == nil || e.QueryText == "" {
		return nil, domain.ErrValidation("query text is required")
	}
	if e.ID == "" {
		e.ID = domain.NewID()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO query_executions (id, request_id, query_text, natural_language, status)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.RequestID, e.QueryText, nullString(e.NaturalLanguage), string(domain.JobStatusRunning))
	if err != nil {
		return nil, mapDBError(err)
	}

	return r.Get(ctx, e.ID)
}

// Get returns an execution by id.
func (r *QueryExecutionRepo) Get(ctx context.Context, id string) (*domain.QueryExecution, error) {
	return r.getOne(ctx, `
		SELECT id, request_id, query_text, natural_language, status, columns_json,
		       rows_json, row_count, execution_time_ms, error_message, started_at, completed_at
		FROM query_executions WHERE id = ?
	`, id)
}

// GetByRequestID returns an execution by its idempotency request id.
func (r *QueryExecutionRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.QueryExecution, error) {
	if requestID == "" {
		return nil, domain.ErrNotFound("query execution not found")
	}
	return r.getOne(ctx, `
		SELECT id, request_id, query_text, natural_language, status, columns_json,
		       rows_json, row_count, execution_time_ms, error_message, started_at, completed_at
		FROM query_executions WHERE request_id = ?
		ORDER BY started_at DESC LIMIT 1
	`, requestID)
}

// Complete stores the result set, stamps completion, and appends the
// history row, all in one transaction.
func (r *QueryExecutionRepo) Complete(ctx context.Context, id string, columns []domain.QueryColumn, rows []map[string]interface{}, executionTimeMs int64) error {
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE query_executions
		SET status = ?, columns_json = ?, rows_json = ?, row_count = ?,
		    execution_time_ms = ?, error_message = NULL, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, string(domain.JobStatusCompleted), string(columnsJSON), string(rowsJSON),
		len(rows), executionTimeMs, id, string(domain.JobStatusRunning))
	if err != nil {
		return mapDBError(err)
	}
	if err := transitionOutcomeTx(ctx, tx, res, id, "complete"); err != nil {
		return err
	}

	if err := r.appendHistory(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkFailed stores the error, stamps completion, and appends the
// history row, all in one transaction.
func (r *QueryExecutionRepo) MarkFailed(ctx context.Context, id, message string, executionTimeMs int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fail tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE query_executions
		SET status = ?, error_message = ?, execution_time_ms = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, string(domain.JobStatusFailed), message, executionTimeMs, id, string(domain.JobStatusRunning))
	if err != nil {
		return mapDBError(err)
	}
	if err := transitionOutcomeTx(ctx, tx, res, id, "fail"); err != nil {
		return err
	}

	if err := r.appendHistory(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a live execution. History rows are untouched.
func (r *QueryExecutionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM query_executions WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound("query execution %q not found", id)
	}
	return nil
}

// List returns history entries newest-first with the total count.
func (r *QueryExecutionRepo) List(ctx context.Context, filter domain.QueryHistoryFilter) ([]domain.QueryHistoryEntry, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_history`).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, query_text, natural_language, status,
		       row_count, execution_time_ms, error_message, created_at
		FROM query_history
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, filter.EffectiveLimit(), filter.EffectiveOffset())
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close()

	var entries []domain.QueryHistoryEntry
	for rows.Next() {
		var (
			e               domain.QueryHistoryEntry
			naturalLanguage sql.NullString
			status          string
			executionTimeMs sql.NullInt64
			errorMessage    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.QueryText, &naturalLanguage,
			&status, &e.RowCount, &executionTimeMs, &errorMessage, &e.CreatedAt); err != nil {
			return nil, 0, mapDBError(err)
		}
		e.NaturalLanguage = strPtr(naturalLanguage)
		e.Status = domain.JobStatus(status)
		e.ExecutionTimeMs = int64Ptr(executionTimeMs)
		e.ErrorMessage = strPtr(errorMessage)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// appendHistory copies the execution's terminal state into the
// append-only history log.
func (r *QueryExecutionRepo) appendHistory(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO query_history (execution_id, query_text, natural_language, status,
		                           row_count, execution_time_ms, error_message)
		SELECT id, query_text, natural_language, status, row_count, execution_time_ms, error_message
		FROM query_executions WHERE id = ?
	`, id)
	if err != nil {
		return mapDBError(err)
	}
	return nil
}

func (r *QueryExecutionRepo) getOne(ctx context.Context, stmt string, args ...interface{}) (*domain.QueryExecution, error) {
	var (
		e                     domain.QueryExecution
		naturalLanguage       sql.NullString
		status                string
		columnsJSON, rowsJSON sql.NullString
		executionTimeMs       sql.NullInt64
		errorMessage          sql.NullString
		completedAt           sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, stmt, args...).Scan(
		&e.ID, &e.RequestID, &e.QueryText, &naturalLanguage, &status,
		&columnsJSON, &rowsJSON, &e.RowCount, &executionTimeMs,
		&errorMessage, &e.StartedAt, &completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("query execution not found")
		}
		return nil, mapDBError(err)
	}

	e.NaturalLanguage = strPtr(naturalLanguage)
	e.Status = domain.JobStatus(status)
	e.ExecutionTimeMs = int64Ptr(executionTimeMs)
	e.ErrorMessage = strPtr(errorMessage)
	e.CompletedAt = timePtr(completedAt)
	if columnsJSON.Valid && columnsJSON.String != "" {
		if err := json.Unmarshal([]byte(columnsJSON.String), &e.Columns); err != nil {
			return nil, fmt.Errorf("unmarshal columns: %w", err)
		}
	}
	if rowsJSON.Valid && rowsJSON.String != "" {
		if err := json.Unmarshal([]byte(rowsJSON.String), &e.Rows); err != nil {
			return nil, fmt.Errorf("unmarshal rows: %w", err)
		}
	}

	return &e, nil
}

// transitionOutcomeTx distinguishes "row missing" from "precondition
// not met" after a zero-row conditional update. The re-read runs on the
// open transaction: the write pool has a single connection, so reading
// through the pool here would deadlock.
func transitionOutcomeTx(ctx context.Context, tx *sql.Tx, res sql.Result, id, verb string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM query_executions WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound("query execution %q not found", id)
		}
		return mapDBError(err)
	}
	return domain.ErrInvalidTransition("cannot %s query execution %q in its current state", verb, id)
}
