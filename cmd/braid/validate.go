package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/braidflow/braid/pkg/cmd"
	"github.com/braidflow/braid/pkg/log"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/validation"
	"github.com/urfave/cli/v3"
)

// Static error variables for linter compliance.
var (
	ErrInvalidWorkflows = errors.New("invalid workflows found")
	ErrNoWorkflows      = errors.New("no workflow files or database URL given")
)

// validationTarget is one workflow to check, labeled by where it came from:
// a file path or a store id.
type validationTarget struct {
	Label    string
	Workflow *models.Workflow
	LoadErr  error
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow files, or every stored workflow",
		ArgsUsage: "[file ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Validate stored workflows instead of files",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Logging level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Logging format (json, text)",
				Sources: cli.EnvVars("LOG_FORMAT"),
				Value:   "text",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("braid")

			targets, err := collectTargets(ctx, logger, command.Args().Slice(), command.String("database-url"))
			if err != nil {
				return err
			}

			handlerRegistry := cmd.NewHandlerRegistry(cmd.NewToolRegistry(logger), logger)

			invalid := reportValidation(os.Stdout, validation.NewValidator(handlerRegistry), targets)
			if invalid > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidWorkflows, invalid)
			}

			_, _ = fmt.Fprintln(os.Stdout, "All workflows are valid! ✅")

			return nil
		},
	}
}

// collectTargets loads the workflows to validate: the given file paths, or
// every workflow in the store when paths are absent and a database URL is
// set. Files that fail to load still become targets so the report can show
// the load error in place.
func collectTargets(ctx context.Context, logger *slog.Logger, paths []string, databaseURL string) ([]validationTarget, error) {
	if len(paths) > 0 {
		targets := make([]validationTarget, 0, len(paths))

		for _, path := range paths {
			workflow, err := LoadWorkflowFile(path)
			targets = append(targets, validationTarget{Label: path, Workflow: workflow, LoadErr: err})
		}

		return targets, nil
	}

	if databaseURL == "" {
		return nil, ErrNoWorkflows
	}

	store := cmd.NewPersistence(ctx, logger, databaseURL)

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	workflows, err := store.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflows: %w", err)
	}

	targets := make([]validationTarget, 0, len(workflows))
	for _, workflow := range workflows {
		targets = append(targets, validationTarget{Label: workflow.ID, Workflow: workflow})
	}

	return targets, nil
}

// reportValidation prints one block of findings per target and a closing
// summary, returning the number of invalid workflows.
func reportValidation(out io.Writer, graphValidator *validation.Validator, targets []validationTarget) int {
	_, _ = fmt.Fprintln(out, "Workflow Validation Results:")
	_, _ = fmt.Fprintln(out, "============================")

	valid := 0
	invalid := 0

	for _, target := range targets {
		name := "(unreadable)"
		if target.Workflow != nil {
			name = target.Workflow.Name
		}

		_, _ = fmt.Fprintf(out, "\nWorkflow: %s (%s)\n", name, target.Label)

		if target.LoadErr != nil {
			_, _ = fmt.Fprintf(out, "  ❌ INVALID: %v\n", target.LoadErr)

			invalid++

			continue
		}

		issues := graphValidator.Validate(target.Workflow)
		if len(issues) == 0 {
			_, _ = fmt.Fprintf(out, "  ✅ VALID\n")

			valid++

			continue
		}

		for _, issue := range issues {
			_, _ = fmt.Fprintf(out, "  ❌ INVALID: %s\n", issue)
		}

		invalid++
	}

	_, _ = fmt.Fprintf(out, "\nValidation Summary:\n")
	_, _ = fmt.Fprintf(out, "  Total workflows: %d\n", valid+invalid)
	_, _ = fmt.Fprintf(out, "  Valid workflows: %d\n", valid)
	_, _ = fmt.Fprintf(out, "  Invalid workflows: %d\n", invalid)

	return invalid
}
