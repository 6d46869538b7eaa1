package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/otelhelper"
	"github.com/braidflow/braid/pkg/registry"
)

// DefaultMaxParallel bounds how many blocks of one run execute concurrently
// when the caller does not override it.
const DefaultMaxParallel = 10

// Executor walks a workflow graph, dispatching every ready block to its
// handler. Independent branches run on their own goroutines; all bookkeeping
// happens in one scheduling transaction per completed block, so admission
// never races against pruning.
type Executor struct {
	registry *registry.Registry
	logger   *slog.Logger
	tracer   trace.Tracer

	// MaxParallel bounds concurrently executing blocks per run.
	MaxParallel int

	// OnBlockFinished, when set, observes every block log entry in the
	// order it was appended. It runs outside the scheduling lock and must
	// not call back into the executor.
	OnBlockFinished func(ctx context.Context, runID string, log models.BlockLog)
}

func NewExecutor(reg *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry:    reg,
		logger:      logger.With("module", "executor"),
		tracer:      otel.Tracer("braid.executor"),
		MaxParallel: DefaultMaxParallel,
	}
}

// run bundles the mutable state of one run. The mutex guards the scheduler's
// view (running set, in-flight count, first failure); the execution context
// has its own lock and is always acquired after this one.
type run struct {
	workflow *models.Workflow
	execCtx  *ExecutionContext
	paths    *PathResolver
	loops    *LoopController
	resolver *InputResolver

	mu       sync.Mutex
	cond     *sync.Cond
	sem      chan struct{}
	running  map[string]struct{}
	inFlight int
	failure  error

	// pending holds log entries queued for emission; a single drainer at a
	// time flushes it so observers see entries in append order.
	pending  []models.BlockLog
	emitting bool
	emitWG   sync.WaitGroup
}

// Run executes the workflow under a fresh run ID and returns the run record.
// The record is always populated, also for failed and cancelled runs; the
// error is non-nil exactly when the run did not complete.
func (e *Executor) Run(ctx context.Context, workflow *models.Workflow, variables map[string]string) (*models.RunRecord, error) {
	return e.RunWithID(ctx, "run-"+uuid.New().String()[:8], workflow, variables)
}

func (e *Executor) RunWithID(ctx context.Context, runID string, workflow *models.Workflow, variables map[string]string) (*models.RunRecord, error) {
	env := make(map[string]string, len(workflow.Variables)+len(variables))
	maps.Copy(env, workflow.Variables)
	maps.Copy(env, variables)

	execCtx := NewExecutionContext(runID, workflow.ID, env)
	paths := NewPathResolver(workflow)
	execCtx.SetActivePath(paths.InitialPath())

	r := &run{
		workflow: workflow,
		execCtx:  execCtx,
		paths:    paths,
		loops:    NewLoopController(workflow, paths, execCtx, e.logger),
		resolver: NewInputResolver(e.logger),
		sem:      make(chan struct{}, e.maxParallel()),
		running:  make(map[string]struct{}),
	}
	r.cond = sync.NewCond(&r.mu)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "run.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.RunIDKey, runID),
	)
	defer span.End()

	// Wake the scheduler when the run is cancelled while it waits.
	stopWatch := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stopWatch()

	startedAt := time.Now().UTC()

	e.logger.InfoContext(ctx, "run started",
		"workflow_id", workflow.ID,
		"run_id", runID,
		"blocks", len(workflow.Blocks))

	e.schedule(ctx, r)

	// Every queued log entry reaches the observer before the run returns.
	r.emitWG.Wait()

	record := &models.RunRecord{
		ID:          runID,
		WorkflowID:  workflow.ID,
		StartedAt:   startedAt,
		FinishedAt:  time.Now().UTC(),
		BlockStates: execCtx.BlockStates(),
		Logs:        execCtx.BlockLogs(),
	}

	err := e.outcome(ctx, r)
	switch {
	case err == nil:
		record.Status = models.RunStatusCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		record.Status = models.RunStatusCancelled
		record.Error = err.Error()
	default:
		record.Status = models.RunStatusFailed
		record.Error = err.Error()
	}

	if err != nil {
		otelhelper.SetError(span, err)
		e.logger.WarnContext(ctx, "run finished",
			"run_id", runID,
			"status", record.Status,
			"error", record.Error)

		return record, err
	}

	e.logger.InfoContext(ctx, "run finished",
		"run_id", runID,
		"status", record.Status,
		"blocks_executed", len(record.Logs))

	return record, nil
}

// schedule admits ready blocks until the run completes, fails or is
// cancelled, then drains the in-flight blocks.
func (e *Executor) schedule(ctx context.Context, r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if ctx.Err() != nil || r.failure != nil {
			break
		}

		ready := e.readyBlocks(r)
		if len(ready) == 0 {
			if r.inFlight == 0 {
				break
			}

			r.cond.Wait()

			continue
		}

		for _, block := range ready {
			r.running[block.ID] = struct{}{}
			r.inFlight++

			go e.executeBlock(ctx, r, block)
		}
	}

	for r.inFlight > 0 {
		r.cond.Wait()
	}
}

// readyBlocks returns every block that can be dispatched right now. Caller
// holds r.mu.
func (e *Executor) readyBlocks(r *run) []*models.Block {
	var ready []*models.Block

	for _, block := range r.workflow.Blocks {
		if !block.Enabled || !r.execCtx.IsActive(block.ID) {
			continue
		}

		if _, isRunning := r.running[block.ID]; isRunning {
			continue
		}

		if r.execCtx.WasExecuted(block.ID) || r.execCtx.IsFailed(block.ID) {
			continue
		}

		// A loop block executes once to produce its plan; afterwards the
		// controller owns it.
		if block.Kind == models.KindLoop && r.loops.Phase(block.ID) != LoopPending {
			continue
		}

		if !e.dependenciesReady(r, block) {
			continue
		}

		ready = append(ready, block)
	}

	return ready
}

// dependenciesReady reports whether every in-edge that can still fire has
// fired. Pruned, failed and disabled predecessors do not gate, so a block
// that lost some predecessors to pruning still runs when the rest complete.
func (e *Executor) dependenciesReady(r *run, block *models.Block) bool {
	for _, edge := range r.paths.Incoming(block.ID) {
		source, ok := r.paths.Block(edge.Source)
		if !ok || !source.Enabled {
			continue
		}

		if !r.execCtx.IsActive(source.ID) || r.execCtx.IsFailed(source.ID) {
			continue
		}

		if source.Kind == models.KindLoop {
			phase := r.loops.Phase(source.ID)
			if edge.Label == models.EdgeLabelBody {
				if phase != LoopIterating {
					return false
				}

				continue
			}

			if phase != LoopCompleted {
				return false
			}

			continue
		}

		if source.IsDecision() && edge.Labeled() {
			branch, decided := e.decisionOf(r, source)
			if !decided {
				return false
			}

			// The non-selected edge never fires and never gates.
			if branch != edge.Label {
				continue
			}
		}

		if !r.execCtx.WasExecuted(source.ID) {
			return false
		}
	}

	return true
}

func (e *Executor) decisionOf(r *run, source *models.Block) (string, bool) {
	if source.Kind == models.KindRouter {
		return r.execCtx.RouterDecision(source.ID)
	}

	return r.execCtx.ConditionDecision(source.ID)
}

func (e *Executor) executeBlock(ctx context.Context, r *run, block *models.Block) {
	started := time.Now().UTC()

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		e.finish(ctx, r, block, started, nil, nil, ctx.Err())

		return
	}
	defer func() { <-r.sem }()

	blockCtx, span := otelhelper.StartSpan(ctx, e.tracer, "block.execute",
		attribute.String(otelhelper.WorkflowIDKey, r.execCtx.WorkflowID()),
		attribute.String(otelhelper.RunIDKey, r.execCtx.RunID()),
		attribute.String(otelhelper.BlockIDKey, block.ID),
		attribute.String(otelhelper.BlockKindKey, block.Kind),
	)

	inputs, output, err := e.runBlock(blockCtx, r, block)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.End()

	e.finish(ctx, r, block, started, inputs, output, err)
}

func (e *Executor) runBlock(ctx context.Context, r *run, block *models.Block) (inputs, output map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("block handler panicked",
				"block_id", block.ID,
				"panic", rec,
				"stack", string(debug.Stack()))

			err = fmt.Errorf("block %s panicked: %v", block.ID, rec)
		}
	}()

	inputs, err = r.resolver.Resolve(block, r.execCtx)
	if err != nil {
		return inputs, nil, err
	}

	handler, err := e.registry.Resolve(block)
	if err != nil {
		return inputs, nil, err
	}

	output, err = handler.Execute(ctx, block, inputs, r.execCtx)

	return inputs, output, err
}

// finish settles a block under the scheduling lock and emits the resulting
// log entries after releasing it.
func (e *Executor) finish(ctx context.Context, r *run, block *models.Block, started time.Time, inputs, output map[string]any, err error) {
	r.mu.Lock()

	iteration := 0
	if loopID, inBody := r.loops.InBody(block.ID); inBody {
		iteration = r.execCtx.LoopIteration(loopID)
	}

	var emitted []models.BlockLog
	if err != nil {
		emitted = e.settleFailure(r, block, started, inputs, err, iteration)
	} else {
		emitted = e.settleSuccess(r, block, started, inputs, output, iteration)
	}

	r.pending = append(r.pending, emitted...)
	r.emitWG.Add(len(emitted))

	delete(r.running, block.ID)
	r.inFlight--
	r.cond.Broadcast()
	r.mu.Unlock()

	e.drainEmissions(ctx, r)
}

// drainEmissions flushes queued log entries to the logger and observer. Only
// one goroutine drains at a time, preserving append order without holding the
// scheduling lock during observer calls.
func (e *Executor) drainEmissions(ctx context.Context, r *run) {
	for {
		r.mu.Lock()

		if r.emitting || len(r.pending) == 0 {
			r.mu.Unlock()

			return
		}

		r.emitting = true
		batch := r.pending
		r.pending = nil

		r.mu.Unlock()

		for _, entry := range batch {
			e.emit(ctx, r, entry)
			r.emitWG.Done()
		}

		r.mu.Lock()
		r.emitting = false
		r.mu.Unlock()
	}
}

func (e *Executor) settleSuccess(r *run, block *models.Block, started time.Time, inputs, output map[string]any, iteration int) []models.BlockLog {
	switch block.Kind {
	case models.KindRouter, models.KindCondition:
		branch, _ := output[models.OutputKeyBranch].(string)
		if branch == "" {
			return e.settleFailure(r, block, started, inputs,
				fmt.Errorf("%s block %s selected no branch", block.Kind, block.ID), iteration)
		}

		r.execCtx.SetBlockState(block.ID, output)

		if block.Kind == models.KindRouter {
			r.execCtx.RecordRouterDecision(block.ID, branch)
		} else {
			r.execCtx.RecordConditionDecision(block.ID, branch)
		}

		r.execCtx.MarkExecuted(block.ID)

		// Decision and pruning land in the same transaction, so no block
		// on a discarded branch can be admitted in between.
		r.execCtx.RetainActivePath(r.paths.Reachable(r.execCtx))
	case models.KindLoop:
		done, err := r.loops.Begin(block.ID, output, inputs, started)
		if err != nil {
			return e.settleFailure(r, block, started, inputs, err, iteration)
		}

		if done {
			return []models.BlockLog{e.completeLoopLog(r, block)}
		}

		// The loop logs once, when its last iteration completes.
		return nil
	default:
		r.execCtx.SetBlockState(block.ID, output)
		r.execCtx.MarkExecuted(block.ID)
	}

	entry := models.BlockLog{
		BlockID:    block.ID,
		BlockKind:  block.Kind,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Inputs:     inputs,
		Output:     output,
		Success:    true,
		Iteration:  iteration,
	}
	r.execCtx.AppendBlockLog(entry)

	logs := []models.BlockLog{entry}
	logs = append(logs, e.advanceLoops(r, block.ID)...)

	return logs
}

func (e *Executor) settleFailure(r *run, block *models.Block, started time.Time, inputs map[string]any, err error, iteration int) []models.BlockLog {
	entry := models.BlockLog{
		BlockID:    block.ID,
		BlockKind:  block.Kind,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Inputs:     inputs,
		Error:      err.Error(),
		Iteration:  iteration,
	}
	r.execCtx.AppendBlockLog(entry)
	r.execCtx.MarkFailed(block.ID)
	r.execCtx.MarkExecuted(block.ID)

	logs := []models.BlockLog{entry}

	if block.BestEffort() {
		// The run continues without this block's subtree.
		r.execCtx.RetainActivePath(r.paths.Reachable(r.execCtx))

		return append(logs, e.advanceLoops(r, block.ID)...)
	}

	if r.failure == nil {
		r.failure = fmt.Errorf("block %s: %w", block.ID, err)
	}

	return logs
}

func (e *Executor) advanceLoops(r *run, blockID string) []models.BlockLog {
	var logs []models.BlockLog

	for _, loopID := range r.loops.OnBlockExecuted(blockID) {
		if loop := r.workflow.BlockByID(loopID); loop != nil {
			logs = append(logs, e.completeLoopLog(r, loop))
		}
	}

	return logs
}

func (e *Executor) completeLoopLog(r *run, block *models.Block) models.BlockLog {
	aggregate, _ := r.execCtx.BlockState(block.ID)

	entry := models.BlockLog{
		BlockID:    block.ID,
		BlockKind:  block.Kind,
		StartedAt:  r.loops.StartedAt(block.ID),
		FinishedAt: time.Now().UTC(),
		Inputs:     r.loops.Inputs(block.ID),
		Output:     aggregate,
		Success:    true,
		Iteration:  r.execCtx.LoopIteration(block.ID),
	}
	r.execCtx.AppendBlockLog(entry)

	return entry
}

func (e *Executor) emit(ctx context.Context, r *run, entry models.BlockLog) {
	if entry.Success {
		e.logger.DebugContext(ctx, "block finished",
			"run_id", r.execCtx.RunID(),
			"block_id", entry.BlockID,
			"kind", entry.BlockKind,
			"iteration", entry.Iteration)
	} else {
		e.logger.WarnContext(ctx, "block failed",
			"run_id", r.execCtx.RunID(),
			"block_id", entry.BlockID,
			"kind", entry.BlockKind,
			"error", entry.Error)
	}

	if e.OnBlockFinished != nil {
		e.OnBlockFinished(ctx, r.execCtx.RunID(), entry)
	}
}

func (e *Executor) outcome(ctx context.Context, r *run) error {
	r.mu.Lock()
	failure := r.failure
	r.mu.Unlock()

	cancelled := errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded)

	if failure != nil && !cancelled {
		return failure
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if failure != nil {
		return failure
	}

	if unfinished := e.unfinished(r); len(unfinished) > 0 {
		return fmt.Errorf("run stalled: blocks %v never became ready", unfinished)
	}

	return nil
}

func (e *Executor) unfinished(r *run) []string {
	var ids []string

	for _, block := range r.workflow.Blocks {
		if r.execCtx.IsActive(block.ID) && !r.execCtx.WasExecuted(block.ID) {
			ids = append(ids, block.ID)
		}
	}

	return ids
}

func (e *Executor) maxParallel() int {
	if e.MaxParallel > 0 {
		return e.MaxParallel
	}

	return DefaultMaxParallel
}
