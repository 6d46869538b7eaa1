package execution

import (
	"github.com/braidflow/braid/pkg/models"
)

// PathResolver computes which blocks remain reachable as decisions land and
// best-effort blocks fail. The executor intersects its results into the
// context's active path, so recomputing from the roots every time is safe:
// pruning stays monotonic because admission only ever shrinks.
type PathResolver struct {
	workflow *models.Workflow
	blocks   map[string]*models.Block
	outgoing map[string][]*models.Edge
	incoming map[string][]*models.Edge
}

func NewPathResolver(workflow *models.Workflow) *PathResolver {
	resolver := &PathResolver{
		workflow: workflow,
		blocks:   make(map[string]*models.Block, len(workflow.Blocks)),
		outgoing: make(map[string][]*models.Edge),
		incoming: make(map[string][]*models.Edge),
	}

	for _, block := range workflow.Blocks {
		resolver.blocks[block.ID] = block
	}

	for _, edge := range workflow.Edges {
		resolver.outgoing[edge.Source] = append(resolver.outgoing[edge.Source], edge)
		resolver.incoming[edge.Target] = append(resolver.incoming[edge.Target], edge)
	}

	return resolver
}

func (p *PathResolver) Outgoing(blockID string) []*models.Edge { return p.outgoing[blockID] }

func (p *PathResolver) Incoming(blockID string) []*models.Edge { return p.incoming[blockID] }

func (p *PathResolver) Block(blockID string) (*models.Block, bool) {
	block, ok := p.blocks[blockID]

	return block, ok
}

// InitialPath returns every enabled block reachable from the workflow roots
// before any decision has been made.
func (p *PathResolver) InitialPath() map[string]struct{} {
	return p.reachable(nil)
}

// Reachable recomputes the conducting subgraph against recorded decisions
// and failures.
func (p *PathResolver) Reachable(execCtx *ExecutionContext) map[string]struct{} {
	return p.reachable(execCtx)
}

func (p *PathResolver) reachable(execCtx *ExecutionContext) map[string]struct{} {
	visited := make(map[string]struct{}, len(p.blocks))

	var queue []string
	for _, root := range p.workflow.Roots() {
		if !root.Enabled {
			continue
		}

		visited[root.ID] = struct{}{}
		queue = append(queue, root.ID)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range p.outgoing[current] {
			if !p.conducts(edge, execCtx) {
				continue
			}

			target, ok := p.blocks[edge.Target]
			if !ok || !target.Enabled {
				continue
			}

			if _, seen := visited[edge.Target]; seen {
				continue
			}

			visited[edge.Target] = struct{}{}
			queue = append(queue, edge.Target)
		}
	}

	return visited
}

// conducts reports whether an edge can carry execution. Edges out of failed
// blocks never conduct; edges out of a decided router or condition conduct
// only when unlabeled or labeled with the selected branch.
func (p *PathResolver) conducts(edge *models.Edge, execCtx *ExecutionContext) bool {
	source, ok := p.blocks[edge.Source]
	if !ok || !source.Enabled {
		return false
	}

	if execCtx == nil {
		return true
	}

	if execCtx.IsFailed(edge.Source) {
		return false
	}

	if !edge.Labeled() {
		return true
	}

	switch source.Kind {
	case models.KindRouter:
		if branch, decided := execCtx.RouterDecision(source.ID); decided {
			return edge.Label == branch
		}
	case models.KindCondition:
		if branch, decided := execCtx.ConditionDecision(source.ID); decided {
			return edge.Label == branch
		}
	}

	return true
}

// LoopBody returns the blocks reachable from a loop's body edges without
// crossing back through the loop or into its done targets.
func (p *PathResolver) LoopBody(loopID string) map[string]struct{} {
	doneTargets := make(map[string]struct{})
	var queue []string

	for _, edge := range p.outgoing[loopID] {
		switch edge.Label {
		case models.EdgeLabelBody:
			queue = append(queue, edge.Target)
		case models.EdgeLabelDone:
			doneTargets[edge.Target] = struct{}{}
		}
	}

	body := make(map[string]struct{}, len(queue))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == loopID {
			continue
		}

		if _, done := doneTargets[current]; done {
			continue
		}

		if _, seen := body[current]; seen {
			continue
		}

		body[current] = struct{}{}

		for _, edge := range p.outgoing[current] {
			queue = append(queue, edge.Target)
		}
	}

	return body
}
