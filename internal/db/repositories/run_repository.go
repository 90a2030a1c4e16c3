// run_repository.go implements RunRepository, the storage layer for ingested
// test runs. Insert is the only mutation: the UNIQUE (project_id, run_id)
// constraint makes the insert the single atomic point that decides between a
// first-time write and an idempotent replay, so no read-then-write check is
// needed (or allowed, it would race). The outcome is reported as a typed
// InsertOutcome so callers never inspect driver error strings.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/flakewatch/flakewatch/internal/db/models"
)

// uniqueViolation is the Postgres error code raised when an insert hits a
// unique constraint.
const uniqueViolation = pq.ErrorCode("23505")

// runIdempotencyConstraint names the UNIQUE (project_id, run_id) constraint
// from the schema. Only a violation of this constraint means a replay; a 23505
// on any other constraint (the primary key, say) is a fault.
const runIdempotencyConstraint = "test_runs_project_run_key"

// InsertOutcome classifies the result of an idempotent run insert.
type InsertOutcome int

const (
	// OutcomeCreated means the run was stored for the first time.
	OutcomeCreated InsertOutcome = iota
	// OutcomeDuplicate means a run with the same (project_id, run_id) already
	// exists. This is a successful outcome, not an error.
	OutcomeDuplicate
)

// RunRepository handles test run database operations
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Insert attempts to store a run exactly once per (project_id, run_id).
// Concurrent identical submissions are safe: the database constraint guarantees
// exactly one writer observes OutcomeCreated and every other observes
// OutcomeDuplicate. All other failures propagate as errors.
func (r *RunRepository) Insert(ctx context.Context, run *models.TestRun) (InsertOutcome, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	suitesJSON, err := json.Marshal(run.Suites)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal suites: %w", err)
	}

	query := `
		INSERT INTO test_runs (
			id, project_id, run_id, environment, run_timestamp,
			total_test_cases, passed, failed, flaky, skipped, duration_ms,
			suites, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.ProjectID,
		run.RunID,
		run.Environment,
		run.RunTimestamp,
		run.TotalTestCases,
		run.Passed,
		run.Failed,
		run.Flaky,
		run.Skipped,
		run.DurationMS,
		suitesJSON,
		run.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation && pqErr.Constraint == runIdempotencyConstraint {
			return OutcomeDuplicate, nil
		}
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	return OutcomeCreated, nil
}

// GetByRunID retrieves a stored run by its idempotency key
func (r *RunRepository) GetByRunID(ctx context.Context, projectID, runID string) (*models.TestRun, error) {
	query := `
		SELECT id, project_id, run_id, environment, run_timestamp,
		       total_test_cases, passed, failed, flaky, skipped, duration_ms,
		       suites, created_at
		FROM test_runs
		WHERE project_id = $1 AND run_id = $2
	`

	run := &models.TestRun{}
	var suitesJSON []byte

	err := r.db.QueryRowxContext(ctx, query, projectID, runID).Scan(
		&run.ID,
		&run.ProjectID,
		&run.RunID,
		&run.Environment,
		&run.RunTimestamp,
		&run.TotalTestCases,
		&run.Passed,
		&run.Failed,
		&run.Flaky,
		&run.Skipped,
		&run.DurationMS,
		&suitesJSON,
		&run.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := json.Unmarshal(suitesJSON, &run.Suites); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suites: %w", err)
	}

	return run, nil
}

// ListByProject retrieves the most recent runs for a project
func (r *RunRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]*models.TestRun, error) {
	query := `
		SELECT id, project_id, run_id, environment, run_timestamp,
		       total_test_cases, passed, failed, flaky, skipped, duration_ms,
		       suites, created_at
		FROM test_runs
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryxContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.TestRun
	for rows.Next() {
		run := &models.TestRun{}
		var suitesJSON []byte
		if err := rows.Scan(
			&run.ID,
			&run.ProjectID,
			&run.RunID,
			&run.Environment,
			&run.RunTimestamp,
			&run.TotalTestCases,
			&run.Passed,
			&run.Failed,
			&run.Flaky,
			&run.Skipped,
			&run.DurationMS,
			&suitesJSON,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal(suitesJSON, &run.Suites); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suites: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CountByProject returns the number of stored runs for a project
func (r *RunRepository) CountByProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM test_runs WHERE project_id = $1`, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}
