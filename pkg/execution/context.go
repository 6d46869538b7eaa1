package execution

import (
	"maps"
	"sync"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// ExecutionContext is the shared state arena for a single run. All fields are
// guarded by one RWMutex; handlers running on parallel branches only ever see
// it through the read-side accessors, while the executor performs its
// decision and pruning writes while holding the write lock so admission never
// observes a half-applied decision.
type ExecutionContext struct {
	runID      string
	workflowID string

	mu                   sync.RWMutex
	blockStates          map[string]map[string]any
	blockLogs            []models.BlockLog
	environmentVariables map[string]string
	routerDecisions      map[string]string
	conditionDecisions   map[string]string
	loopIterations       map[string]int
	loopItems            map[string]any
	executedBlocks       map[string]struct{}
	failedBlocks         map[string]struct{}
	activePath           map[string]struct{}
}

var _ protocol.RunState = (*ExecutionContext)(nil)

func NewExecutionContext(runID, workflowID string, environmentVariables map[string]string) *ExecutionContext {
	env := make(map[string]string, len(environmentVariables))
	maps.Copy(env, environmentVariables)

	return &ExecutionContext{
		runID:                runID,
		workflowID:           workflowID,
		blockStates:          make(map[string]map[string]any),
		environmentVariables: env,
		routerDecisions:      make(map[string]string),
		conditionDecisions:   make(map[string]string),
		loopIterations:       make(map[string]int),
		loopItems:            make(map[string]any),
		executedBlocks:       make(map[string]struct{}),
		failedBlocks:         make(map[string]struct{}),
		activePath:           make(map[string]struct{}),
	}
}

func (c *ExecutionContext) RunID() string { return c.runID }

func (c *ExecutionContext) WorkflowID() string { return c.workflowID }

// BlockStates returns a copy of every recorded block output, keyed by block
// ID. The nested maps are copied one level deep so handlers cannot mutate
// recorded state through the snapshot.
func (c *ExecutionContext) BlockStates() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make(map[string]map[string]any, len(c.blockStates))
	for id, state := range c.blockStates {
		copied := make(map[string]any, len(state))
		maps.Copy(copied, state)
		states[id] = copied
	}

	return states
}

func (c *ExecutionContext) BlockState(blockID string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.blockStates[blockID]
	if !ok {
		return nil, false
	}

	copied := make(map[string]any, len(state))
	maps.Copy(copied, state)

	return copied, true
}

func (c *ExecutionContext) SetBlockState(blockID string, state map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blockStates[blockID] = state
}

func (c *ExecutionContext) EnvironmentVariables() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	env := make(map[string]string, len(c.environmentVariables))
	maps.Copy(env, c.environmentVariables)

	return env
}

func (c *ExecutionContext) EnvVar(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.environmentVariables[name]

	return value, ok
}

// AppendBlockLog records a block execution in completion order.
func (c *ExecutionContext) AppendBlockLog(log models.BlockLog) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blockLogs = append(c.blockLogs, log)
}

func (c *ExecutionContext) BlockLogs() []models.BlockLog {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs := make([]models.BlockLog, len(c.blockLogs))
	copy(logs, c.blockLogs)

	return logs
}

func (c *ExecutionContext) RecordRouterDecision(blockID, branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.routerDecisions[blockID] = branch
}

func (c *ExecutionContext) RouterDecision(blockID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	branch, ok := c.routerDecisions[blockID]

	return branch, ok
}

func (c *ExecutionContext) RecordConditionDecision(blockID, branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conditionDecisions[blockID] = branch
}

func (c *ExecutionContext) ConditionDecision(blockID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	branch, ok := c.conditionDecisions[blockID]

	return branch, ok
}

// SetLoopItem records the collection element (or counter value) bound to a
// loop for its current iteration. Body blocks read it through the loop's
// block state; it is kept separately so the aggregate can replace the block
// state at completion without losing the in-flight item.
func (c *ExecutionContext) SetLoopItem(loopID string, item any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loopItems[loopID] = item
}

func (c *ExecutionContext) LoopItem(loopID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.loopItems[loopID]

	return item, ok
}

// IncrementLoopIteration advances the iteration counter for a loop and
// returns the new total. After three completed passes the counter reads 3.
func (c *ExecutionContext) IncrementLoopIteration(loopID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loopIterations[loopID]++

	return c.loopIterations[loopID]
}

func (c *ExecutionContext) LoopIteration(loopID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loopIterations[loopID]
}

func (c *ExecutionContext) MarkExecuted(blockID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.executedBlocks[blockID] = struct{}{}
}

func (c *ExecutionContext) WasExecuted(blockID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.executedBlocks[blockID]

	return ok
}

// ClearExecuted removes blocks from the executed set so a loop body can run
// again on the next iteration.
func (c *ExecutionContext) ClearExecuted(blockIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range blockIDs {
		delete(c.executedBlocks, id)
	}
}

func (c *ExecutionContext) MarkFailed(blockID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failedBlocks[blockID] = struct{}{}
}

func (c *ExecutionContext) IsFailed(blockID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.failedBlocks[blockID]

	return ok
}

// SetActivePath seeds the reachable block set at run start.
func (c *ExecutionContext) SetActivePath(path map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activePath = make(map[string]struct{}, len(path))
	maps.Copy(c.activePath, path)
}

// RetainActivePath intersects the active path with a freshly computed
// reachable set. Blocks only ever leave the path, so a block pruned by one
// decision can never be re-admitted by a later one.
func (c *ExecutionContext) RetainActivePath(reachable map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.activePath {
		if _, ok := reachable[id]; !ok {
			delete(c.activePath, id)
		}
	}
}

func (c *ExecutionContext) IsActive(blockID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.activePath[blockID]

	return ok
}

func (c *ExecutionContext) ActivePath() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := make(map[string]struct{}, len(c.activePath))
	maps.Copy(path, c.activePath)

	return path
}
