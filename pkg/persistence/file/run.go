package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
)

// RunRepository handles run record file operations. Each record is one JSON
// document under <root>/runs/<run_id>.json.
type RunRepository struct {
	root string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

// Save writes a run record document.
func (rr *RunRepository) Save(_ context.Context, record *models.RunRecord) error {
	if err := validateID(record.ID); err != nil {
		return persistence.NewRunError("SaveRun", record.ID, err)
	}

	err := os.MkdirAll(path.Join(rr.root, "runs"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", record.ID, err)
	}

	filePath := path.Join(rr.root, "runs", record.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// GetByID retrieves a run record by its ID.
func (rr *RunRepository) GetByID(_ context.Context, runID string) (*models.RunRecord, error) {
	if err := validateID(runID); err != nil {
		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	filePath := filepath.Clean(path.Join(rr.root, "runs", runID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}

	var record models.RunRecord

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}

	return &record, nil
}

// GetByWorkflow returns all run records for a workflow, most recent first.
func (rr *RunRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	dir := path.Join(rr.root, "runs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return make([]*models.RunRecord, 0), nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	records := make([]*models.RunRecord, 0)

	for _, file := range jsonFiles {
		runID := strings.TrimSuffix(file, ".json")

		record, err := rr.GetByID(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
		}

		if record.WorkflowID == workflowID {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	return records, nil
}
