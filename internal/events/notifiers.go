package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskOrderIntake is the asynq task type carrying an order event to the intake worker.
const TaskOrderIntake = "order:intake"

// Enqueuer is the subset of *asynq.Client used to publish tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqNotifier enqueues intake tasks for forwarded topics.
type AsynqNotifier struct {
	Client    Enqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// Notify implements Notifier.
func (n AsynqNotifier) Notify(ctx context.Context, event Event) error {
	if n.Client == nil {
		return errors.New("events: task client not configured")
	}
	if !Forwarded(event.Topic) {
		return nil
	}
	task, err := NewIntakeTask(event)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(event.ID)}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.Retention > 0 {
		opts = append(opts, asynq.Retention(n.Retention))
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", event.Topic, err)
	}
	return nil
}

// NewIntakeTask wraps event in an order intake task.
func NewIntakeTask(event Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return asynq.NewTask(TaskOrderIntake, data), nil
}

// ParseIntakeTask decodes an order intake task payload.
func ParseIntakeTask(task *asynq.Task) (Event, error) {
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", task.Type(), err)
	}
	return ev, nil
}

// LogNotifier writes every event to the logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		RawJSON("payload", event.Payload).
		Msg("order_event")
	return nil
}
