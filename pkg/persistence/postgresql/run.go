package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
)

// RunRepository handles run record database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
			id
		  , workflow_id
		  , status
		  , started_at
		  , finished_at
		  , block_states
		  , logs
		  , error
`

// Save upserts a run record.
func (r *RunRepository) Save(ctx context.Context, record *models.RunRecord) error {
	statesJSON, err := json.Marshal(record.BlockStates)
	if err != nil {
		return fmt.Errorf("failed to marshal block states: %w", err)
	}

	logsJSON, err := json.Marshal(record.Logs)
	if err != nil {
		return fmt.Errorf("failed to marshal logs: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (id, workflow_id, status, started_at, finished_at, block_states, logs, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			block_states = EXCLUDED.block_states,
			logs = EXCLUDED.logs,
			error = EXCLUDED.error
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.WorkflowID,
		record.Status,
		record.StartedAt,
		record.FinishedAt,
		statesJSON,
		logsJSON,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetByID returns a run record by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.RunRecord, error) {
	query := `
		SELECT` + runColumns + `
		FROM workflow_runs
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	record, err := r.scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return record, nil
}

// GetByWorkflow returns all run records for a workflow, most recent first.
func (r *RunRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	query := `
		SELECT` + runColumns + `
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.RunRecord, 0)

	for rows.Next() {
		record, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return records, nil
}

func (r *RunRepository) scanRun(scanner interface {
	Scan(dest ...any) error
}) (*models.RunRecord, error) {
	var (
		record               models.RunRecord
		statesJSON, logsJSON []byte
	)

	err := scanner.Scan(
		&record.ID,
		&record.WorkflowID,
		&record.Status,
		&record.StartedAt,
		&record.FinishedAt,
		&statesJSON,
		&logsJSON,
		&record.Error,
	)
	if err != nil {
		return nil, err
	}

	if statesJSON != nil {
		err := json.Unmarshal(statesJSON, &record.BlockStates)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal block states: %w", err)
		}
	}

	if logsJSON != nil {
		err := json.Unmarshal(logsJSON, &record.Logs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
		}
	}

	return &record, nil
}
