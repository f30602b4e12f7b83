package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadmill/leadmill/pkg/automation"
	"github.com/leadmill/leadmill/pkg/eventbus"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/locker"
	"github.com/leadmill/leadmill/pkg/otelhelper"
)

const (
	defaultPollSchedule = "@every 1m"
	defaultCartSchedule = "@every 15m"
)

// Runner drives the engine's background work: the pending-step poll, the
// abandoned cart scan and the trigger.received bus subscription.
type Runner struct {
	logger       *slog.Logger
	service      *automation.Service
	eventBus     eventbus.EventBus
	locker       *locker.RedisLocker
	tracer       trace.Tracer
	pollSchedule string
	cartSchedule string
}

// NewRunner creates a runner. lock and tracer may be nil.
func NewRunner(
	logger *slog.Logger,
	service *automation.Service,
	eventBus eventbus.EventBus,
	lock *locker.RedisLocker,
	tracer trace.Tracer,
	pollSchedule, cartSchedule string,
) *Runner {
	if pollSchedule == "" {
		pollSchedule = defaultPollSchedule
	}

	if cartSchedule == "" {
		cartSchedule = defaultCartSchedule
	}

	return &Runner{
		logger:       logger,
		service:      service,
		eventBus:     eventBus,
		locker:       lock,
		tracer:       tracer,
		pollSchedule: pollSchedule,
		cartSchedule: cartSchedule,
	}
}

// Start schedules the poll loops, subscribes to the bus and blocks until the
// context is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.eventBus.Handle(events.TriggerReceivedEvent, r.handleTriggerReceived); err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	if err := r.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	scheduler := cron.New()

	if _, err := scheduler.AddFunc(r.pollSchedule, func() { r.pollAllStores(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pending-step poll: %w", err)
	}

	if _, err := scheduler.AddFunc(r.cartSchedule, func() { r.scanAllCarts(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule cart scan: %w", err)
	}

	scheduler.Start()

	r.logger.Info("Runner started",
		"poll_schedule", r.pollSchedule,
		"cart_schedule", r.cartSchedule)

	<-ctx.Done()

	stop := scheduler.Stop()
	<-stop.Done()

	return nil
}

func (r *Runner) handleTriggerReceived(ctx context.Context, event any) error {
	trigger, ok := event.(*events.TriggerReceived)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	enrolled, err := r.service.HandleTrigger(ctx, trigger.StoreID, trigger.TriggerType, trigger.TriggerData)
	if err != nil {
		r.logger.Error("Failed to handle trigger event",
			"store_id", trigger.StoreID,
			"trigger_type", trigger.TriggerType,
			"error", err)

		return err
	}

	r.logger.Debug("Handled trigger event",
		"store_id", trigger.StoreID,
		"trigger_type", trigger.TriggerType,
		"enrolled", enrolled)

	return nil
}

func (r *Runner) pollAllStores(ctx context.Context) {
	r.forEachStore(ctx, "poll", func(ctx context.Context, storeID string) (int, error) {
		return r.service.ProcessPendingSteps(ctx, storeID)
	})
}

func (r *Runner) scanAllCarts(ctx context.Context) {
	r.forEachStore(ctx, "cart_scan", func(ctx context.Context, storeID string) (int, error) {
		return r.service.CheckAbandonedCarts(ctx, storeID)
	})
}

// forEachStore runs one cycle of work per store, taking the per-store lock
// when a locker is configured so overlapping invocations skip rather than
// double-process.
func (r *Runner) forEachStore(ctx context.Context, cycle string, work func(ctx context.Context, storeID string) (int, error)) {
	storeIDs, err := r.service.StoreIDs(ctx)
	if err != nil {
		r.logger.Error("Failed to list stores", "cycle", cycle, "error", err)

		return
	}

	for _, storeID := range storeIDs {
		if r.locker != nil {
			acquired, err := r.locker.Acquire(ctx, storeID)
			if err != nil {
				r.logger.Error("Failed to acquire store lock", "store_id", storeID, "error", err)

				continue
			}

			if !acquired {
				r.logger.Debug("Store locked by another runner, skipping", "store_id", storeID)

				continue
			}
		}

		count, err := r.runCycle(ctx, cycle, storeID, work)

		if r.locker != nil {
			r.locker.Release(ctx, storeID)
		}

		if err != nil {
			r.logger.Error("Store cycle failed", "cycle", cycle, "store_id", storeID, "error", err)

			continue
		}

		if count > 0 {
			r.logger.Info("Store cycle finished", "cycle", cycle, "store_id", storeID, "count", count)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context, cycle, storeID string, work func(ctx context.Context, storeID string) (int, error)) (int, error) {
	if r.tracer == nil {
		return work(ctx, storeID)
	}

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "leadmill.runner."+cycle,
		attribute.String(otelhelper.StoreIDKey, storeID))
	defer span.End()

	count, err := work(ctx, storeID)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.StoreIDKey, storeID))
	}

	return count, err
}
