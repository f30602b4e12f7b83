// Package main provides the Leadmill background runner: scheduled
// pending-step polls, abandoned cart scans and trigger event consumption.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadmill/leadmill/pkg/automation"
	"github.com/leadmill/leadmill/pkg/cmd"
	"github.com/leadmill/leadmill/pkg/locker"
	"github.com/leadmill/leadmill/pkg/log"
	"github.com/leadmill/leadmill/pkg/otelhelper"
)

const storeLockTTL = 2 * time.Minute

func main() {
	command := &cli.Command{
		Name:                  "leadmill-runner",
		Usage:                 "Start the Leadmill background runner",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "runner-id",
				Aliases: []string{"id"},
				Usage:   "Custom runner ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("RUNNER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL enabling the per-store poll lock",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "poll-schedule",
				Usage:   "Cron schedule for the pending-step poll",
				Value:   defaultPollSchedule,
				Sources: cli.EnvVars("POLL_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "cart-schedule",
				Usage:   "Cron schedule for the abandoned cart scan",
				Value:   defaultCartSchedule,
				Sources: cli.EnvVars("CART_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Value:   false,
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	runnerID := command.String("runner-id")
	if runnerID == "" {
		runnerID = fmt.Sprintf("runner-%s", uuid.New().String()[:8])
	}

	logger := log.WithModule("runner").With("runner_id", runnerID)

	logger.Info("Initializing Leadmill runner")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tracer trace.Tracer

	if command.Bool("tracing") {
		var err error

		tracer, err = otelhelper.NewTracer(ctx, "leadmill-runner")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	var storeLock *locker.RedisLocker

	if redisURL := command.String("redis-url"); redisURL != "" {
		storeLock, err = locker.NewRedisLocker(ctx, logger, redisURL, storeLockTTL)
		if err != nil {
			return err
		}

		defer func() {
			if err := storeLock.Close(); err != nil {
				logger.Error("Failed to close redis locker", "error", err)
			}
		}()
	}

	registry := cmd.NewRegistry(logger, persistence)

	service := automation.NewService(logger, persistence, registry, eventBus)
	if tracer != nil {
		service.Executor().WithTracer(tracer)
	}

	runner := NewRunner(
		logger,
		service,
		eventBus,
		storeLock,
		tracer,
		command.String("poll-schedule"),
		command.String("cart-schedule"),
	)

	return runner.Start(ctx)
}
