package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/conditions"
	"github.com/leadmill/leadmill/pkg/eventbus"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

const (
	// DefaultClaimLease is how long a claimed enrollment stays invisible to
	// other pollers before the lease expires.
	DefaultClaimLease = 5 * time.Minute

	// DefaultBatchSize caps how many enrollments one poll cycle claims.
	DefaultBatchSize = 100
)

// StepExecutor advances active enrollments through their workflow steps, one
// step per enrollment per poll cycle. Flow-control steps (delay, condition,
// exit) are resolved inline; action steps are dispatched to the registry.
type StepExecutor struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *actions.Registry
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	lease       time.Duration
	batchSize   int
	now         func() time.Time
}

// NewStepExecutor creates a step executor. publisher and tracer may be nil.
func NewStepExecutor(logger *slog.Logger, persistence persistence.Persistence, registry *actions.Registry, publisher eventbus.EventPublisher) *StepExecutor {
	return &StepExecutor{
		logger:      logger.With("module", "step_executor"),
		persistence: persistence,
		registry:    registry,
		publisher:   publisher,
		lease:       DefaultClaimLease,
		batchSize:   DefaultBatchSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithTracer enables span emission around enrollment processing.
func (e *StepExecutor) WithTracer(tracer trace.Tracer) *StepExecutor {
	e.tracer = tracer

	return e
}

// ProcessPendingSteps claims the store's eligible enrollments and executes
// one step on each. It returns how many enrollments it advanced.
func (e *StepExecutor) ProcessPendingSteps(ctx context.Context, storeID string) (int, error) {
	claimed, err := e.persistence.EnrollmentRepository().ClaimPending(ctx, storeID, e.now(), e.lease, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending enrollments: %w", err)
	}

	// Workflows rarely change mid-cycle; one fetch per workflow per poll.
	workflows := map[string]*models.Workflow{}
	processed := 0

	for _, enrollment := range claimed {
		advanced, err := e.processEnrollment(ctx, enrollment, workflows)
		if err != nil {
			// Leave the claim lease in place; the enrollment becomes
			// reclaimable once it expires.
			e.logger.Error("Failed to process enrollment",
				"store_id", storeID,
				"enrollment_id", enrollment.ID,
				"error", err)

			continue
		}

		if advanced {
			processed++
		}
	}

	return processed, nil
}

func (e *StepExecutor) processEnrollment(ctx context.Context, enrollment *models.Enrollment, workflows map[string]*models.Workflow) (bool, error) {
	if e.tracer != nil {
		var span trace.Span

		ctx, span = e.tracer.Start(ctx, "leadmill.process_enrollment",
			trace.WithAttributes(
				attribute.String("leadmill.store_id", enrollment.StoreID),
				attribute.String("leadmill.enrollment_id", enrollment.ID),
				attribute.String("leadmill.workflow_id", enrollment.WorkflowID),
			))
		defer span.End()
	}

	repo := e.persistence.EnrollmentRepository()

	workflow, ok := workflows[enrollment.WorkflowID]
	if !ok {
		var err error

		workflow, err = e.persistence.WorkflowRepository().GetByID(ctx, enrollment.StoreID, enrollment.WorkflowID)
		if persistence.IsWorkflowNotFound(err) {
			// The workflow was deleted underneath the enrollment.
			return true, e.exitEnrollment(ctx, enrollment, "workflow no longer exists")
		}

		if err != nil {
			return false, fmt.Errorf("failed to load workflow: %w", err)
		}

		workflows[enrollment.WorkflowID] = workflow
	}

	if workflow.Status == models.WorkflowStatusPaused {
		return false, repo.Release(ctx, enrollment.StoreID, enrollment.ID)
	}

	if enrollment.CurrentStep >= len(workflow.Steps) {
		return true, e.completeEnrollment(ctx, enrollment)
	}

	step := workflow.Steps[enrollment.CurrentStep]
	stepIndex := enrollment.CurrentStep
	now := e.now()

	switch step.Type {
	case models.StepExit:
		e.appendLog(ctx, enrollment, stepIndex, step.Type, models.StepLogStatusSuccess, "", nil)

		return true, e.exitEnrollment(ctx, enrollment, "exit step reached")

	case models.StepDelay:
		config, err := models.ParseDelayConfig(step.Config)
		if err != nil {
			// A broken delay cannot schedule anything; record it and move on.
			e.appendLog(ctx, enrollment, stepIndex, step.Type, models.StepLogStatusFailed, err.Error(), nil)

			return true, e.advance(ctx, enrollment, stepIndex+1, nil, now)
		}

		nextAt := NextStepAt(now, config)

		e.appendLog(ctx, enrollment, stepIndex, step.Type, models.StepLogStatusSuccess, "", map[string]any{
			"next_step_at": nextAt.Format(time.RFC3339),
		})

		return true, e.advance(ctx, enrollment, stepIndex+1, &nextAt, now)

	case models.StepCondition:
		target, logStatus, errMessage := e.resolveCondition(ctx, enrollment, step, stepIndex)

		e.appendLog(ctx, enrollment, stepIndex, step.Type, logStatus, errMessage, map[string]any{
			"next_step": target,
		})

		return true, e.advance(ctx, enrollment, target, nil, now)

	default:
		return true, e.executeAction(ctx, enrollment, workflow, step, stepIndex, now)
	}
}

// resolveCondition evaluates a condition step and returns the target index.
// Unknown operators and broken configs fail closed onto the false branch;
// when even the false branch is unknowable the enrollment just advances.
func (e *StepExecutor) resolveCondition(ctx context.Context, enrollment *models.Enrollment, step models.Step, stepIndex int) (int, models.StepLogStatus, string) {
	config, err := models.ParseConditionConfig(step.Config)
	if err != nil {
		return stepIndex + 1, models.StepLogStatusFailed, err.Error()
	}

	customer, customerErr := e.persistence.CustomerRepository().GetByID(ctx, enrollment.StoreID, enrollment.CustomerID)
	if customerErr != nil {
		customer = nil
	}

	fieldValue := conditions.ResolveField(customer, enrollment.TriggerData, config.Field)

	matched, err := conditions.Evaluate(fieldValue, conditions.Operator(config.Operator), config.Value)
	if err != nil {
		return config.FalseStep, models.StepLogStatusFailed, err.Error()
	}

	if matched {
		return config.TrueStep, models.StepLogStatusSuccess, ""
	}

	return config.FalseStep, models.StepLogStatusSuccess, ""
}

func (e *StepExecutor) executeAction(ctx context.Context, enrollment *models.Enrollment, workflow *models.Workflow, step models.Step, stepIndex int, now time.Time) error {
	customer, err := e.persistence.CustomerRepository().GetByID(ctx, enrollment.StoreID, enrollment.CustomerID)
	if err != nil {
		customer = nil
	}

	var result actions.Result

	action, ok := e.registry.Get(step.Type)
	if !ok {
		result = actions.Result{Success: false, Error: fmt.Sprintf("no executor registered for step type %q", step.Type)}
	} else {
		result = action.Execute(ctx, actions.Context{
			StoreID:    enrollment.StoreID,
			Workflow:   workflow,
			Enrollment: enrollment,
			Customer:   customer,
			Config:     step.Config,
			Logger:     e.logger,
		})
	}

	logStatus := models.StepLogStatusSuccess
	if !result.Success {
		logStatus = models.StepLogStatusFailed
	}

	e.appendLog(ctx, enrollment, stepIndex, step.Type, logStatus, result.Error, result.Metadata)

	if result.ShouldExit {
		return e.exitEnrollment(ctx, enrollment, result.Error)
	}

	if !result.Success {
		e.logger.Warn("Step failed, advancing enrollment",
			"enrollment_id", enrollment.ID,
			"step_index", stepIndex,
			"step_type", step.Type,
			"error", result.Error)
	}

	return e.advance(ctx, enrollment, stepIndex+1, nil, now)
}

// advance moves the enrollment pointer, completing it when it walks past the
// last step. nextStepAt defers the following step when set.
func (e *StepExecutor) advance(ctx context.Context, enrollment *models.Enrollment, target int, nextStepAt *time.Time, now time.Time) error {
	enrollment.CurrentStep = target
	enrollment.NextStepAt = nextStepAt
	enrollment.LastStepAt = &now
	enrollment.UpdatedAt = now

	if err := e.persistence.EnrollmentRepository().Update(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}

	return nil
}

func (e *StepExecutor) completeEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	now := e.now()

	enrollment.Status = models.EnrollmentStatusCompleted
	enrollment.CompletedAt = &now
	enrollment.NextStepAt = nil
	enrollment.UpdatedAt = now

	if err := e.persistence.EnrollmentRepository().Update(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to complete enrollment: %w", err)
	}

	e.logger.Info("Enrollment completed",
		"store_id", enrollment.StoreID,
		"enrollment_id", enrollment.ID,
		"workflow_id", enrollment.WorkflowID)

	e.publish(ctx, enrollment.ID, events.EnrollmentCompleted{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentCompletedEvent, enrollment.StoreID),
		WorkflowID:   enrollment.WorkflowID,
		EnrollmentID: enrollment.ID,
		CustomerID:   enrollment.CustomerID,
	})

	return nil
}

func (e *StepExecutor) exitEnrollment(ctx context.Context, enrollment *models.Enrollment, reason string) error {
	now := e.now()

	enrollment.Status = models.EnrollmentStatusExited
	enrollment.ExitReason = &reason
	enrollment.NextStepAt = nil
	enrollment.UpdatedAt = now

	if err := e.persistence.EnrollmentRepository().Update(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to exit enrollment: %w", err)
	}

	e.logger.Info("Enrollment exited",
		"store_id", enrollment.StoreID,
		"enrollment_id", enrollment.ID,
		"workflow_id", enrollment.WorkflowID,
		"reason", reason)

	e.publish(ctx, enrollment.ID, events.EnrollmentExited{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentExitedEvent, enrollment.StoreID),
		WorkflowID:   enrollment.WorkflowID,
		EnrollmentID: enrollment.ID,
		CustomerID:   enrollment.CustomerID,
		ExitReason:   reason,
	})

	return nil
}

// appendLog writes the audit record for one step attempt. Audit failures are
// logged, never propagated; losing a log line must not stall the enrollment.
func (e *StepExecutor) appendLog(ctx context.Context, enrollment *models.Enrollment, stepIndex int, stepType models.StepType, status models.StepLogStatus, errorMessage string, metadata map[string]any) {
	entry := &models.StepLog{
		ID:           uuid.New().String(),
		StoreID:      enrollment.StoreID,
		WorkflowID:   enrollment.WorkflowID,
		EnrollmentID: enrollment.ID,
		CustomerID:   enrollment.CustomerID,
		StepIndex:    stepIndex,
		StepType:     stepType,
		Status:       status,
		ErrorMessage: errorMessage,
		Metadata:     metadata,
		CreatedAt:    e.now(),
	}

	if err := e.persistence.StepLogRepository().Append(ctx, entry); err != nil {
		e.logger.Error("Failed to append step log",
			"enrollment_id", enrollment.ID,
			"step_index", stepIndex,
			"error", err)
	}
}

func (e *StepExecutor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.Warn("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
