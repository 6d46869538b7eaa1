package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/braidflow/braid/pkg/models"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFileType = errors.New("unsupported workflow file type")

// LoadWorkflowFile reads a workflow definition from a JSON or YAML file,
// picked by extension. A missing workflow id defaults to the file name so
// ad-hoc files stay runnable.
func LoadWorkflowFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow models.Workflow

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &workflow); err != nil {
			return nil, fmt.Errorf("failed to parse workflow JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &workflow); err != nil {
			return nil, fmt.Errorf("failed to parse workflow YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, filepath.Ext(path))
	}

	if workflow.ID == "" {
		workflow.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &workflow, nil
}
