package repository

import (
	"context"
	"database/sql"
	"fmt"

	"modelsentry/internal/domain"
)

var _ domain.RunRepository = (*RunRepo)(nil)

// RunRepo stores analysis runs and findings in SQLite.
//
// Status transitions are conditional UPDATEs. When the precondition no
// longer holds (the race was lost), the update affects zero rows and
// the transition returns *InvalidTransitionError; the caller re-reads
// the already-terminal row.
type RunRepo struct {
	db *sql.DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Create inserts a PENDING run.
func (r *RunRepo) Create(ctx context.Context, run *domain.AnalysisRun) (*domain.AnalysisRun, error) {
	if run == nil {
		return nil, domain.ErrValidation("run is required")
	}
	if run.ModelDatabaseName == "" {
		return nil, domain.ErrValidation("model database name is required")
	}
	if run.ID == "" {
		run.ID = domain.NewID()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, model_database_name, status)
		VALUES (?, ?, ?)
	`, run.ID, run.ModelDatabaseName, string(domain.JobStatusPending))
	if err != nil {
		return nil, mapDBError(err)
	}

	return r.Get(ctx, run.ID)
}

// Get returns a run by id.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	return scanRun(r.db.QueryRowContext(ctx, `
		SELECT id, model_database_name, status, error_message,
		       error_count, warning_count, info_count,
		       created_at, started_at, completed_at
		FROM analysis_runs WHERE id = ?
	`, id), id)
}

// ListByModel returns all runs for a model, newest first.
func (r *RunRepo) ListByModel(ctx context.Context, databaseName string) ([]domain.AnalysisRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, model_database_name, status, error_message,
		       error_count, warning_count, info_count,
		       created_at, started_at, completed_at
		FROM analysis_runs
		WHERE model_database_name = ?
		ORDER BY created_at DESC, id DESC
	`, databaseName)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var runs []domain.AnalysisRun
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkRunning transitions PENDING → RUNNING.
func (r *RunRepo) MarkRunning(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = ?, started_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, string(domain.JobStatusRunning), id, string(domain.JobStatusPending))
	if err != nil {
		return mapDBError(err)
	}
	return r.transitionOutcome(ctx, res, id, "start")
}

// Complete inserts all findings, recomputes the severity aggregates,
// and marks the run COMPLETED, in one transaction. Readers never see a
// half-populated run.
func (r *RunRepo) Complete(ctx context.Context, id string, findings []domain.Finding) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback()

	for i := range findings {
		f := &findings[i]
		if f.ID == "" {
			f.ID = domain.NewID()
		}
		f.RunID = id
		f.Seq = i + 1
		if f.FixStatus == "" {
			f.FixStatus = domain.FixStatusUnfixed
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO findings (id, run_id, seq, rule_id, rule_name, severity,
			                      category, affected_object, object_type, fix_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.ID, f.RunID, f.Seq, f.RuleID, f.RuleName, f.Severity,
			f.Category, f.AffectedObject, f.ObjectType, f.FixStatus)
		if err != nil {
			return mapDBError(err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = ?,
		    error_count = (SELECT COUNT(*) FROM findings WHERE run_id = ? AND severity = 3 AND fix_status <> 'FIXED'),
		    warning_count = (SELECT COUNT(*) FROM findings WHERE run_id = ? AND severity = 2 AND fix_status <> 'FIXED'),
		    info_count = (SELECT COUNT(*) FROM findings WHERE run_id = ? AND severity = 1 AND fix_status <> 'FIXED'),
		    completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, string(domain.JobStatusCompleted), id, id, id, id, string(domain.JobStatusRunning))
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Lost the race to a cancel/fail; findings roll back with the tx.
		return domain.ErrInvalidTransition("run %q is not RUNNING", id)
	}

	return tx.Commit()
}

// MarkFailed transitions a non-terminal run to FAILED with the message.
func (r *RunRepo) MarkFailed(ctx context.Context, id, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)
	`, string(domain.JobStatusFailed), message, id,
		string(domain.JobStatusPending), string(domain.JobStatusRunning))
	if err != nil {
		return mapDBError(err)
	}
	return r.transitionOutcome(ctx, res, id, "fail")
}

// ListFindings returns a run's findings in evaluation order.
func (r *RunRepo) ListFindings(ctx context.Context, runID string) ([]domain.Finding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, seq, rule_id, rule_name, severity, category,
		       affected_object, object_type, fix_status, fix_summary, created_at
		FROM findings WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var findings []domain.Finding
	for rows.Next() {
		var (
			f          domain.Finding
			fixSummary sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.RunID, &f.Seq, &f.RuleID, &f.RuleName,
			&f.Severity, &f.Category, &f.AffectedObject, &f.ObjectType,
			&f.FixStatus, &fixSummary, &f.CreatedAt); err != nil {
			return nil, mapDBError(err)
		}
		f.FixSummary = strPtr(fixSummary)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// GetFinding returns one finding by id.
func (r *RunRepo) GetFinding(ctx context.Context, findingID string) (*domain.Finding, error) {
	var (
		f          domain.Finding
		fixSummary sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, run_id, seq, rule_id, rule_name, severity, category,
		       affected_object, object_type, fix_status, fix_summary, created_at
		FROM findings WHERE id = ?
	`, findingID).Scan(&f.ID, &f.RunID, &f.Seq, &f.RuleID, &f.RuleName,
		&f.Severity, &f.Category, &f.AffectedObject, &f.ObjectType,
		&f.FixStatus, &fixSummary, &f.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("finding %q not found", findingID)
		}
		return nil, mapDBError(err)
	}
	f.FixSummary = strPtr(fixSummary)
	return &f, nil
}

// UpdateFindingFix sets the fix status/summary and recomputes the
// owning run's aggregates in the same transaction.
func (r *RunRepo) UpdateFindingFix(ctx context.Context, findingID, fixStatus string, fixSummary *string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fix-status tx: %w", err)
	}
	defer tx.Rollback()

	var runID string
	err = tx.QueryRowContext(ctx,
		`SELECT run_id FROM findings WHERE id = ?`, findingID).Scan(&runID)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound("finding %q not found", findingID)
		}
		return mapDBError(err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE findings SET fix_status = ?, fix_summary = ? WHERE id = ?
	`, fixStatus, nullString(fixSummary), findingID)
	if err != nil {
		return mapDBError(err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE analysis_runs
		SET error_count = (SELECT COUNT(*) FROM findings WHERE run_id = ? AND severity = 3 AND fix_status <> ?),
		    warning_count = (SELECT COUNT(*) FROM findings WHERE run_id = ? AND severity = 2 AND fix_status <> ?),
		    info_count = (SELECT COUNT(*) FROM findings WHERE run_id = ? AND severity = 1 AND fix_status <> ?)
		WHERE id = ?
	`, runID, domain.FixStatusFixed, runID, domain.FixStatusFixed, runID, domain.FixStatusFixed, runID)
	if err != nil {
		return mapDBError(err)
	}

	return tx.Commit()
}

// transitionOutcome distinguishes "row missing" from "precondition not
// met" after a conditional transition affected zero rows.
func (r *RunRepo) transitionOutcome(ctx context.Context, res sql.Result, id, verb string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition("cannot %s run %q in its current state", verb, id)
}

func scanRun(row *sql.Row, id string) (*domain.AnalysisRun, error) {
	var (
		run                    domain.AnalysisRun
		status                 string
		errorMessage           sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&run.ID, &run.ModelDatabaseName, &status, &errorMessage,
		&run.ErrorCount, &run.WarningCount, &run.InfoCount,
		&run.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("run %q not found", id)
		}
		return nil, mapDBError(err)
	}
	run.Status = domain.JobStatus(status)
	run.ErrorMessage = strPtr(errorMessage)
	run.StartedAt = timePtr(startedAt)
	run.CompletedAt = timePtr(completedAt)
	return &run, nil
}

func scanRunRow(rows *sql.Rows) (*domain.AnalysisRun, error) {
	var (
		run                    domain.AnalysisRun
		status                 string
		errorMessage           sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := rows.Scan(&run.ID, &run.ModelDatabaseName, &status, &errorMessage,
		&run.ErrorCount, &run.WarningCount, &run.InfoCount,
		&run.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	run.Status = domain.JobStatus(status)
	run.ErrorMessage = strPtr(errorMessage)
	run.StartedAt = timePtr(startedAt)
	run.CompletedAt = timePtr(completedAt)
	return &run, nil
}
