// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"
	"os"

	"github.com/braidflow/braid/pkg/blocks/condition"
	"github.com/braidflow/braid/pkg/blocks/function"
	"github.com/braidflow/braid/pkg/blocks/loop"
	"github.com/braidflow/braid/pkg/blocks/router"
	"github.com/braidflow/braid/pkg/blocks/tool"
	"github.com/braidflow/braid/pkg/registry"
	"github.com/braidflow/braid/pkg/tools"
	"github.com/braidflow/braid/pkg/tools/functionrunner"
	"github.com/braidflow/braid/pkg/tools/httptool"
	"github.com/braidflow/braid/pkg/tools/logtool"
)

// NewToolRegistry assembles the built-in tools. The function runner is only
// registered when FUNCTION_RUNNER_URL points at a runner service.
func NewToolRegistry(logger *slog.Logger) *tools.Registry {
	reg := tools.NewRegistry(logger)
	reg.Register(httptool.New(logger))
	reg.Register(logtool.New(logger))

	if baseURL := os.Getenv("FUNCTION_RUNNER_URL"); baseURL != "" {
		reg.Register(functionrunner.New(logger, baseURL))
	}

	return reg
}

// NewHandlerRegistry registers the block handlers. Registration order is
// dispatch priority.
func NewHandlerRegistry(invoker tools.Invoker, logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.Register(function.NewHandler(invoker, logger))
	reg.Register(router.NewHandler(logger))
	reg.Register(condition.NewHandler(logger))
	reg.Register(loop.NewHandler(logger))
	reg.Register(tool.NewHandler(invoker, logger))

	return reg
}
