package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/braidflow/braid/pkg/cmd"
	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/log"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/validation"
	"github.com/urfave/cli/v3"
)

var (
	ErrRunFailed         = errors.New("run did not complete")
	ErrMalformedVariable = errors.New("variable overrides must be NAME=value")
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Execute a workflow file locally and report the outcome",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Workflow definition file (JSON or YAML)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "Override a workflow variable as NAME=value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Abort the run after this duration (0 runs without a limit)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the full run record as JSON instead of a summary",
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

			variables, err := parseVariables(command.StringSlice("var"))
			if err != nil {
				return err
			}

			if timeout := command.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc

				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			logger := log.WithModule("braid")

			return runWorkflowFile(ctx, logger, command.String("file"), variables, command.Bool("json"), os.Stdout)
		},
	}
}

// runWorkflowFile loads, validates and executes one workflow file, streaming
// per-block progress lines to out as blocks finish.
func runWorkflowFile(ctx context.Context, logger *slog.Logger, path string, variables map[string]string, asJSON bool, out io.Writer) error {
	workflow, err := LoadWorkflowFile(path)
	if err != nil {
		return err
	}

	handlerRegistry := cmd.NewHandlerRegistry(cmd.NewToolRegistry(logger), logger)

	if err := validation.NewValidator(handlerRegistry).Check(workflow); err != nil {
		return err
	}

	executor := execution.NewExecutor(handlerRegistry, logger)

	if !asJSON {
		_, _ = fmt.Fprintf(out, "Running workflow: %s (%d blocks)\n\n", workflow.Name, len(workflow.Blocks))

		executor.OnBlockFinished = func(_ context.Context, _ string, blockLog models.BlockLog) {
			_, _ = fmt.Fprintln(out, formatBlockLine(blockLog))
		}
	}

	record, runErr := executor.Run(ctx, workflow, variables)

	if asJSON {
		encoded, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode run record: %w", err)
		}

		_, _ = fmt.Fprintln(out, string(encoded))
	} else {
		_, _ = fmt.Fprintf(out, "\nRun %s %s after %s (%d block executions)\n",
			record.ID,
			record.Status,
			record.FinishedAt.Sub(record.StartedAt).Round(time.Millisecond),
			len(record.Logs))
	}

	if runErr != nil {
		return fmt.Errorf("%w: %s", ErrRunFailed, record.Error)
	}

	return nil
}

func formatBlockLine(blockLog models.BlockLog) string {
	mark := "✅"
	if !blockLog.Success {
		mark = "❌"
	}

	line := fmt.Sprintf("  %s %s (%s, %s)",
		mark,
		blockLog.BlockID,
		blockLog.BlockKind,
		blockLog.FinishedAt.Sub(blockLog.StartedAt).Round(time.Millisecond))

	if blockLog.Iteration > 0 {
		line = fmt.Sprintf("%s [iteration %d]", line, blockLog.Iteration)
	}

	if blockLog.Error != "" {
		line = fmt.Sprintf("%s: %s", line, blockLog.Error)
	}

	return line
}

// parseVariables turns repeated NAME=value flags into a variable override
// map. The first "=" splits; later ones belong to the value.
func parseVariables(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	variables := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedVariable, pair)
		}

		variables[name] = value
	}

	return variables, nil
}
