// Package validation checks workflow graphs before they are stored or run.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// Issue is one validation finding. BlockID is empty for workflow-level
// findings.
type Issue struct {
	BlockID string `json:"block_id,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.BlockID == "" {
		return i.Message
	}

	return fmt.Sprintf("block %s: %s", i.BlockID, i.Message)
}

// Error carries every finding for one workflow.
type Error struct {
	WorkflowID string
	Issues     []Issue
}

func (e *Error) Error() string {
	messages := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		messages[i] = issue.String()
	}

	return fmt.Sprintf("workflow %s is invalid: %s", e.WorkflowID, strings.Join(messages, "; "))
}

// Validator checks workflows against structural rules and against each block
// handler's config schema.
type Validator struct {
	registry *registry.Registry
	validate *validator.Validate
}

// NewValidator creates a validator bound to a handler registry.
func NewValidator(reg *registry.Registry) *Validator {
	return &Validator{
		registry: reg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate returns every finding for the workflow. An empty slice means the
// workflow is acceptable.
func (v *Validator) Validate(workflow *models.Workflow) []Issue {
	var issues []Issue

	issues = append(issues, v.structIssues(workflow)...)
	issues = append(issues, v.blockIssues(workflow)...)
	issues = append(issues, v.edgeIssues(workflow)...)
	issues = append(issues, v.decisionIssues(workflow)...)
	issues = append(issues, v.loopIssues(workflow)...)
	issues = append(issues, v.cycleIssues(workflow)...)
	issues = append(issues, v.configIssues(workflow)...)

	return issues
}

// Check returns an *Error carrying all findings, or nil when the workflow is
// acceptable.
func (v *Validator) Check(workflow *models.Workflow) error {
	issues := v.Validate(workflow)
	if len(issues) == 0 {
		return nil
	}

	return &Error{WorkflowID: workflow.ID, Issues: issues}
}

func (v *Validator) structIssues(workflow *models.Workflow) []Issue {
	err := v.validate.Struct(workflow)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []Issue{{Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		issues = append(issues, Issue{
			Message: fmt.Sprintf("%s failed the %q constraint", fieldError.Namespace(), fieldError.Tag()),
		})
	}

	return issues
}

func (v *Validator) blockIssues(workflow *models.Workflow) []Issue {
	var issues []Issue

	seen := make(map[string]bool, len(workflow.Blocks))

	for _, block := range workflow.Blocks {
		if block.ID == "" {
			issues = append(issues, Issue{Message: "found block with empty id"})

			continue
		}

		if seen[block.ID] {
			issues = append(issues, Issue{BlockID: block.ID, Message: "duplicate block id"})
		}

		seen[block.ID] = true

		if block.Kind == "" {
			issues = append(issues, Issue{BlockID: block.ID, Message: "no kind specified"})

			continue
		}

		if _, err := v.registry.Resolve(block); err != nil {
			issues = append(issues, Issue{BlockID: block.ID, Message: fmt.Sprintf("no handler for kind %q", block.Kind)})
		}
	}

	return issues
}

func (v *Validator) edgeIssues(workflow *models.Workflow) []Issue {
	var issues []Issue

	ids := make(map[string]bool, len(workflow.Blocks))
	for _, block := range workflow.Blocks {
		ids[block.ID] = true
	}

	for _, edge := range workflow.Edges {
		if !ids[edge.Source] {
			issues = append(issues, Issue{Message: fmt.Sprintf("edge references non-existent source block %q", edge.Source)})
		}

		if !ids[edge.Target] {
			issues = append(issues, Issue{Message: fmt.Sprintf("edge references non-existent target block %q", edge.Target)})
		}
	}

	return issues
}

// decisionIssues cross-checks branch labels on outgoing edges against what
// the decision block can actually decide.
func (v *Validator) decisionIssues(workflow *models.Workflow) []Issue {
	var issues []Issue

	for _, block := range workflow.Blocks {
		var allowed map[string]bool

		switch block.Kind {
		case models.KindCondition:
			allowed = map[string]bool{models.BranchTrue: true, models.BranchFalse: true}
		case models.KindRouter:
			allowed = routerLabels(block)
			if allowed == nil {
				// Malformed route config; the schema check reports it.
				continue
			}
		default:
			continue
		}

		for _, edge := range workflow.OutgoingEdges(block.ID) {
			if edge.Labeled() && !allowed[edge.Label] {
				issues = append(issues, Issue{
					BlockID: block.ID,
					Message: fmt.Sprintf("outgoing edge label %q matches no branch", edge.Label),
				})
			}
		}
	}

	return issues
}

// routerLabels collects the labels a router block can select: each configured
// route label plus the default branch. Returns nil when the route list is
// malformed.
func routerLabels(block *models.Block) map[string]bool {
	rawRoutes, ok := block.Config["routes"].([]any)
	if !ok {
		return nil
	}

	labels := make(map[string]bool, len(rawRoutes)+1)

	for _, rawRoute := range rawRoutes {
		route, ok := rawRoute.(map[string]any)
		if !ok {
			return nil
		}

		label, ok := route["label"].(string)
		if !ok {
			return nil
		}

		labels[label] = true
	}

	if fallback, ok := block.Config["default"].(string); ok {
		labels[fallback] = true
	}

	return labels
}

func (v *Validator) loopIssues(workflow *models.Workflow) []Issue {
	var issues []Issue

	for _, block := range workflow.Blocks {
		if block.Kind != models.KindLoop {
			continue
		}

		bodyEdges := 0

		for _, edge := range workflow.OutgoingEdges(block.ID) {
			switch edge.Label {
			case models.EdgeLabelBody:
				bodyEdges++
			case models.EdgeLabelDone:
			default:
				issues = append(issues, Issue{
					BlockID: block.ID,
					Message: fmt.Sprintf("loop outgoing edges must be labeled %q or %q, got %q", models.EdgeLabelBody, models.EdgeLabelDone, edge.Label),
				})
			}
		}

		if bodyEdges == 0 {
			issues = append(issues, Issue{BlockID: block.ID, Message: "loop has no body edges"})

			continue
		}

		// Raw reachability from the body edges. The engine's body traversal
		// stops at done targets, so the overlap has to be caught here, before
		// it silently truncates the body.
		reach := bodyReach(workflow, block.ID)

		for _, edge := range workflow.OutgoingEdges(block.ID) {
			if edge.Label == models.EdgeLabelDone && reach[edge.Target] {
				issues = append(issues, Issue{
					BlockID: block.ID,
					Message: fmt.Sprintf("block %q is wired as both loop body and done target", edge.Target),
				})
			}
		}

		for memberID := range reach {
			member := workflow.BlockByID(memberID)
			if member != nil && member.Kind == models.KindLoop {
				issues = append(issues, Issue{
					BlockID: block.ID,
					Message: fmt.Sprintf("loop body contains nested loop %q", memberID),
				})
			}
		}
	}

	return issues
}

// bodyReach returns every block reachable from a loop's body edges, stopping
// only at the loop block itself.
func bodyReach(workflow *models.Workflow, loopID string) map[string]bool {
	var queue []string

	for _, edge := range workflow.OutgoingEdges(loopID) {
		if edge.Label == models.EdgeLabelBody {
			queue = append(queue, edge.Target)
		}
	}

	reach := make(map[string]bool)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == loopID || reach[current] {
			continue
		}

		reach[current] = true

		for _, edge := range workflow.OutgoingEdges(current) {
			queue = append(queue, edge.Target)
		}
	}

	return reach
}

// cycleIssues rejects any directed cycle. Loop iteration is driven by the
// controller re-arming body blocks, never by back-edges, so a cycle in the
// edge set can only deadlock readiness.
func (v *Validator) cycleIssues(workflow *models.Workflow) []Issue {
	indegree := make(map[string]int, len(workflow.Blocks))
	for _, block := range workflow.Blocks {
		indegree[block.ID] = 0
	}

	for _, edge := range workflow.Edges {
		if _, ok := indegree[edge.Target]; ok {
			indegree[edge.Target]++
		}
	}

	queue := make([]string, 0, len(indegree))

	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, edge := range workflow.OutgoingEdges(id) {
			if _, ok := indegree[edge.Target]; !ok {
				continue
			}

			indegree[edge.Target]--
			if indegree[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}

	if visited == len(indegree) {
		return nil
	}

	var stuck []string

	for id, degree := range indegree {
		if degree > 0 {
			stuck = append(stuck, id)
		}
	}

	sort.Strings(stuck)

	return []Issue{{Message: fmt.Sprintf("cycle detected involving blocks %v", stuck)}}
}

// configIssues validates each block's config against the owning handler's
// JSON schema.
func (v *Validator) configIssues(workflow *models.Workflow) []Issue {
	var issues []Issue

	for _, block := range workflow.Blocks {
		handler, err := v.registry.Resolve(block)
		if err != nil {
			continue
		}

		schema := handler.Schema()
		if schema == nil {
			continue
		}

		config := block.Config
		if config == nil {
			config = map[string]any{}
		}

		schemaLoader := gojsonschema.NewGoLoader(schema)
		configLoader := gojsonschema.NewGoLoader(config)

		result, err := gojsonschema.Validate(schemaLoader, configLoader)
		if err != nil {
			issues = append(issues, Issue{BlockID: block.ID, Message: fmt.Sprintf("config schema check failed: %v", err)})

			continue
		}

		for _, resultError := range result.Errors() {
			issues = append(issues, Issue{BlockID: block.ID, Message: resultError.String()})
		}
	}

	return issues
}
