// Package schedule publishes run requests on cron schedules. One cron entry
// is registered per active workflow that declares a schedule.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const SourceID = "schedule"

type Source struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	cron        *cron.Cron
}

func NewSource(persistence persistence.Persistence, eventBus eventbus.EventBus, logger *slog.Logger) *Source {
	return &Source{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger.With("module", "schedule_source"),
	}
}

func (s *Source) Name() string {
	return SourceID
}

// Start registers one cron entry per scheduled workflow and starts the
// scheduler. The entry set is fixed at start; restart the dispatcher to pick
// up schedule changes.
func (s *Source) Start(ctx context.Context) error {
	workflows, err := s.persistence.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	for _, workflow := range s.scheduled(workflows) {
		workflowID := workflow.ID

		_, err := s.cron.AddFunc(workflow.Schedule, func() {
			s.publish(ctx, workflowID)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule workflow %s: %w", workflowID, err)
		}

		s.logger.InfoContext(ctx, "Scheduled workflow",
			"workflow_id", workflowID,
			"cron", workflow.Schedule,
		)
	}

	s.cron.Start()

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping schedule source")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	return nil
}

// scheduled filters to the active workflows with a parseable schedule. A bad
// cron expression skips that workflow instead of failing the whole source.
func (s *Source) scheduled(workflows []*models.Workflow) []*models.Workflow {
	result := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Status != models.WorkflowStatusActive || workflow.Schedule == "" {
			continue
		}

		if _, err := cron.ParseStandard(workflow.Schedule); err != nil {
			s.logger.Error("Skipping workflow with invalid schedule",
				"workflow_id", workflow.ID,
				"cron", workflow.Schedule,
				"error", err,
			)

			continue
		}

		result = append(result, workflow)
	}

	return result
}

func (s *Source) publish(ctx context.Context, workflowID string) {
	event := events.RunRequested{
		BaseEvent: events.NewBaseEvent(events.RunRequestedEvent, workflowID),
		SourceID:  SourceID,
		SourceData: map[string]any{
			"scheduled_at": time.Now().UTC().Format(time.RFC3339),
		},
	}

	if err := s.eventBus.Publish(ctx, workflowID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish run request",
			"workflow_id", workflowID,
			"error", err,
		)

		return
	}

	s.logger.InfoContext(ctx, "Requested scheduled run", "workflow_id", workflowID)
}
