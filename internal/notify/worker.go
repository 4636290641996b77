package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metal/internal/events"
	"github.com/noah-isme/backend-metal/internal/lock"
)

// IntakeWorker consumes order intake tasks. It forwards them to the webhook when one
// is configured and otherwise writes them to the log.
type IntakeWorker struct {
	Deliverer *Deliverer
	Locker    lock.Locker
	LockTTL   time.Duration
	Logger    zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (w IntakeWorker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ev, err := events.ParseIntakeTask(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logger := w.Logger.With().Str("event_id", ev.ID).Str("topic", ev.Topic).Logger()
	if !events.Forwarded(ev.Topic) {
		logger.Warn().Msg("intake_skip_unknown_topic")
		return nil
	}
	if !w.Deliverer.Enabled() {
		logger.Info().RawJSON("payload", ev.Payload).Msg("order_intake")
		return nil
	}

	deliver := func(ctx context.Context) error {
		status, err := w.Deliverer.Deliver(ctx, ev)
		if err != nil {
			logger.Warn().Err(err).Int("status", status).Msg("intake_delivery_failed")
			if errors.Is(err, ErrPermanent) {
				return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
			}
			return err
		}
		logger.Info().Int("status", status).Msg("intake_delivered")
		return nil
	}
	if w.Locker == nil {
		return deliver(ctx)
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return w.Locker.WithLock(ctx, "lock:intake:"+ev.ID, ttl, deliver)
}
