package execution

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/braidflow/braid/pkg/models"
)

// LoopPhase tracks where a loop block is in its lifecycle.
type LoopPhase int

const (
	LoopPending LoopPhase = iota
	LoopIterating
	LoopCompleted
)

func (p LoopPhase) String() string {
	switch p {
	case LoopPending:
		return "pending"
	case LoopIterating:
		return "iterating"
	case LoopCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

type loopRun struct {
	block     *models.Block
	body      map[string]struct{}
	mode      string
	items     []any
	count     int
	index     int
	results   []any
	phase     LoopPhase
	inputs    map[string]any
	startedAt time.Time
}

func (run *loopRun) total() int {
	if run.mode == models.LoopModeCount {
		return run.count
	}

	return len(run.items)
}

func (run *loopRun) currentItem() any {
	if run.mode == models.LoopModeCount {
		return run.index
	}

	return run.items[run.index]
}

// LoopController drives loop blocks through their iterations. It is called
// by the executor while it holds the scheduling lock, so none of its methods
// take locks of their own beyond the context's.
type LoopController struct {
	execCtx *ExecutionContext
	paths   *PathResolver
	logger  *slog.Logger
	loops   map[string]*loopRun
}

func NewLoopController(workflow *models.Workflow, paths *PathResolver, execCtx *ExecutionContext, logger *slog.Logger) *LoopController {
	controller := &LoopController{
		execCtx: execCtx,
		paths:   paths,
		logger:  logger.With("module", "loop"),
		loops:   make(map[string]*loopRun),
	}

	for _, block := range workflow.Blocks {
		if block.Kind != models.KindLoop {
			continue
		}

		controller.loops[block.ID] = &loopRun{
			block: block,
			body:  paths.LoopBody(block.ID),
			phase: LoopPending,
		}
	}

	return controller
}

// Phase returns a loop's lifecycle phase. IDs that do not name a loop read
// as completed so done-labeled edges from them never gate readiness.
func (lc *LoopController) Phase(blockID string) LoopPhase {
	run, ok := lc.loops[blockID]
	if !ok {
		return LoopCompleted
	}

	return run.phase
}

// InBody returns the loop whose body contains the block, if any.
func (lc *LoopController) InBody(blockID string) (string, bool) {
	for id, run := range lc.loops {
		if _, ok := run.body[blockID]; ok {
			return id, true
		}
	}

	return "", false
}

// StartedAt returns when the loop block's own execution produced its plan.
func (lc *LoopController) StartedAt(blockID string) time.Time {
	run, ok := lc.loops[blockID]
	if !ok {
		return time.Time{}
	}

	return run.startedAt
}

// Inputs returns the resolved inputs the loop block was planned with.
func (lc *LoopController) Inputs(blockID string) map[string]any {
	run, ok := lc.loops[blockID]
	if !ok {
		return nil
	}

	return run.inputs
}

// Begin consumes the plan produced by the loop handler and arms the first
// iteration. It reports done=true when the loop completed without iterating,
// which happens for empty collections, zero counts and empty bodies.
func (lc *LoopController) Begin(blockID string, plan, inputs map[string]any, startedAt time.Time) (bool, error) {
	run, ok := lc.loops[blockID]
	if !ok {
		return false, fmt.Errorf("block %s is not a loop", blockID)
	}

	if run.phase != LoopPending {
		return false, fmt.Errorf("loop %s already began in phase %s", blockID, run.phase)
	}

	mode, _ := plan["mode"].(string)
	switch mode {
	case models.LoopModeCollection:
		items, ok := plan["items"].([]any)
		if !ok {
			return false, fmt.Errorf("loop %s collection plan carries no items array", blockID)
		}

		run.items = items
	case models.LoopModeCount:
		count, ok := asInt(plan["count"])
		if !ok || count < 0 {
			return false, fmt.Errorf("loop %s count plan carries no usable count", blockID)
		}

		run.count = count
	default:
		return false, fmt.Errorf("loop %s plan has unknown mode %q", blockID, mode)
	}

	run.mode = mode
	run.inputs = inputs
	run.startedAt = startedAt

	if run.total() == 0 || len(run.body) == 0 {
		lc.complete(run)

		return true, nil
	}

	run.phase = LoopIterating

	return lc.advance(run), nil
}

// OnBlockExecuted is called after any non-loop block settles. When the block
// closed out the current pass of a loop body, the iteration's outputs are
// collected and the next pass is armed. Returns the loops that completed.
func (lc *LoopController) OnBlockExecuted(blockID string) []string {
	var completed []string

	for id, run := range lc.loops {
		if run.phase != LoopIterating {
			continue
		}

		if _, ok := run.body[blockID]; !ok {
			continue
		}

		if !lc.passDone(run) {
			continue
		}

		run.results = append(run.results, lc.collect(run))
		run.index++

		if lc.advance(run) {
			completed = append(completed, id)
		}
	}

	return completed
}

// advance arms iterations until one has runnable body work or the loop runs
// out. Passes whose body blocks are all pruned or failed collect immediately
// so the loop cannot stall. Returns true when the loop completed.
func (lc *LoopController) advance(run *loopRun) bool {
	for {
		if run.index >= run.total() {
			lc.complete(run)

			return true
		}

		lc.arm(run)

		if !lc.passDone(run) {
			return false
		}

		run.results = append(run.results, lc.collect(run))
		run.index++
	}
}

// arm binds the current item, bumps the iteration counter and clears the
// body's executed marks so its blocks become ready again. Failed body blocks
// stay failed: a pruned branch never comes back in a later iteration.
func (lc *LoopController) arm(run *loopRun) {
	item := run.currentItem()

	lc.execCtx.SetLoopItem(run.block.ID, item)
	lc.execCtx.IncrementLoopIteration(run.block.ID)
	lc.execCtx.SetBlockState(run.block.ID, map[string]any{
		"item":  item,
		"index": run.index,
		"count": run.total(),
	})

	ids := make([]string, 0, len(run.body))
	for id := range run.body {
		ids = append(ids, id)
	}

	lc.execCtx.ClearExecuted(ids...)
}

// passDone reports whether every body block that can still run has run.
func (lc *LoopController) passDone(run *loopRun) bool {
	for id := range run.body {
		if !lc.execCtx.IsActive(id) || lc.execCtx.IsFailed(id) {
			continue
		}

		if !lc.execCtx.WasExecuted(id) {
			return false
		}
	}

	return true
}

// collect gathers the iteration's result from the body's terminal blocks. A
// single terminal contributes its output directly; multiple terminals are
// keyed by block ID.
func (lc *LoopController) collect(run *loopRun) any {
	terminals := make([]string, 0, 1)

	for id := range run.body {
		if !lc.execCtx.WasExecuted(id) || lc.execCtx.IsFailed(id) {
			continue
		}

		if lc.hasBodySuccessor(run, id) {
			continue
		}

		terminals = append(terminals, id)
	}

	sort.Strings(terminals)

	switch len(terminals) {
	case 0:
		return nil
	case 1:
		state, _ := lc.execCtx.BlockState(terminals[0])

		return state
	default:
		outputs := make(map[string]any, len(terminals))
		for _, id := range terminals {
			state, _ := lc.execCtx.BlockState(id)
			outputs[id] = state
		}

		return outputs
	}
}

func (lc *LoopController) hasBodySuccessor(run *loopRun, blockID string) bool {
	for _, edge := range lc.paths.Outgoing(blockID) {
		if _, ok := run.body[edge.Target]; ok {
			return true
		}
	}

	return false
}

// complete replaces the loop's block state with the ordered aggregate and
// marks the loop executed so done-labeled successors become ready.
func (lc *LoopController) complete(run *loopRun) {
	results := run.results
	if results == nil {
		results = []any{}
	}

	run.phase = LoopCompleted

	lc.execCtx.SetBlockState(run.block.ID, map[string]any{
		"results": results,
		"count":   len(results),
	})
	lc.execCtx.MarkExecuted(run.block.ID)

	lc.logger.Debug("loop completed",
		"loop_id", run.block.ID,
		"iterations", len(results))
}

func asInt(value any) (int, bool) {
	switch number := value.(type) {
	case int:
		return number, true
	case int64:
		return int(number), true
	case float64:
		return int(number), true
	default:
		return 0, false
	}
}
