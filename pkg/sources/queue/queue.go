// Package queue consumes run requests from a Redis list and republishes them
// on the event bus. Producers push JSON entries shaped like
// {"workflow_id": "...", "variables": {...}} onto the list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
)

const SourceID = "queue"

// Config holds the Redis connection settings for the queue source.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// runRequestMessage is the wire format expected on the list.
type runRequestMessage struct {
	WorkflowID string            `json:"workflow_id"`
	Variables  map[string]string `json:"variables,omitempty"`
	SourceData map[string]any    `json:"source_data,omitempty"`
}

type Source struct {
	config   Config
	eventBus eventbus.EventBus
	logger   *slog.Logger

	client *redis.Client
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSource(config Config, eventBus eventbus.EventBus, logger *slog.Logger) (*Source, error) {
	if config.Queue == "" {
		return nil, errors.New("queue name is required")
	}

	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	return &Source{
		config:   config,
		eventBus: eventBus,
		stopCh:   make(chan struct{}),
		logger: logger.With(
			"module", "queue_source",
			"queue", config.Queue,
		),
	}, nil
}

func (s *Source) Name() string {
	return SourceID
}

func (s *Source) Start(ctx context.Context) error {
	s.client = redis.NewClient(&redis.Options{
		Addr:     s.config.Addr,
		Password: s.config.Password,
		DB:       s.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", s.config.Addr, "db", s.config.DB)

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping queue source")

	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	s.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := s.next(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Error processing queue message", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

// next blocks up to a second waiting for one list entry.
func (s *Source) next(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, time.Second, s.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	// BLPop returns [key, value].
	if len(result) < 2 {
		return nil
	}

	return s.handle(ctx, []byte(result[1]))
}

// handle parses one list entry and publishes the run request. Malformed
// entries are dropped so one bad payload cannot wedge the queue.
func (s *Source) handle(ctx context.Context, payload []byte) error {
	var msg runRequestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.ErrorContext(ctx, "Dropping malformed queue message", "error", err)

		return nil
	}

	if msg.WorkflowID == "" {
		s.logger.ErrorContext(ctx, "Dropping queue message without workflow_id")

		return nil
	}

	event := events.RunRequested{
		BaseEvent:  events.NewBaseEvent(events.RunRequestedEvent, msg.WorkflowID),
		SourceID:   SourceID,
		SourceData: msg.SourceData,
		Variables:  msg.Variables,
	}

	if err := s.eventBus.Publish(ctx, msg.WorkflowID, event); err != nil {
		return fmt.Errorf("failed to publish run request: %w", err)
	}

	s.logger.InfoContext(ctx, "Requested run from queue", "workflow_id", msg.WorkflowID)

	return nil
}
