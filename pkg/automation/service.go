// Package automation wires the trigger matcher, step executor and cart
// detector behind one orchestrating service.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/carts"
	"github.com/leadmill/leadmill/pkg/eventbus"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/schema"
)

// ValidationError marks a request rejected for semantic reasons rather than
// an infrastructure failure, so transport layers can map it to a 4xx.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}

// Service is the engine's orchestrator: workflow lifecycle, trigger intake,
// pending-step processing and the abandoned cart scan.
type Service struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	validate    *validator.Validate
	matcher     *TriggerMatcher
	executor    *StepExecutor
	detector    *carts.Detector
}

// NewService assembles the engine. registry supplies the action executors;
// publisher may be nil to disable event emission.
func NewService(logger *slog.Logger, p persistence.Persistence, registry *actions.Registry, publisher eventbus.EventPublisher) *Service {
	matcher := NewTriggerMatcher(logger, p, publisher)

	return &Service{
		logger:      logger.With("module", "automation"),
		persistence: p,
		validate:    validator.New(),
		matcher:     matcher,
		executor:    NewStepExecutor(logger, p, registry, publisher),
		detector:    carts.NewDetector(logger, p.CartRepository(), matcher, publisher),
	}
}

// Executor exposes the step executor for tracer wiring.
func (s *Service) Executor() *StepExecutor {
	return s.executor
}

// CreateWorkflow validates and persists a new workflow. New workflows start
// as drafts unless the caller sets a status explicitly.
func (s *Service) CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if err := s.validateWorkflow(workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.Info("Workflow created", "store_id", workflow.StoreID, "workflow_id", workflow.ID)

	return workflow, nil
}

// UpdateWorkflow validates and persists changes to an existing workflow.
func (s *Service) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := s.persistence.WorkflowRepository().GetByID(ctx, workflow.StoreID, workflow.ID)
	if err != nil {
		return nil, err
	}

	if err := s.validateWorkflow(workflow); err != nil {
		return nil, err
	}

	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// ActivateWorkflow transitions a workflow to active. Workflows without steps
// cannot be activated; enrollments into them would complete vacuously.
func (s *Service) ActivateWorkflow(ctx context.Context, storeID, id string) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, storeID, id)
	if err != nil {
		return nil, err
	}

	if len(workflow.Steps) == 0 {
		return nil, NewValidationError("workflow %s has no steps", id)
	}

	if err := schema.ValidateWorkflowSteps(workflow); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	workflow.Status = models.WorkflowStatusActive
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.Info("Workflow activated", "store_id", storeID, "workflow_id", id)

	return workflow, nil
}

// PauseWorkflow transitions a workflow to paused. Its enrollments stay
// pending and resume when the workflow is reactivated.
func (s *Service) PauseWorkflow(ctx context.Context, storeID, id string) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, storeID, id)
	if err != nil {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusPaused
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.Info("Workflow paused", "store_id", storeID, "workflow_id", id)

	return workflow, nil
}

// GetWorkflow returns one workflow.
func (s *Service) GetWorkflow(ctx context.Context, storeID, id string) (*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetByID(ctx, storeID, id)
}

// ListWorkflows returns every workflow of a store.
func (s *Service) ListWorkflows(ctx context.Context, storeID string) ([]*models.Workflow, error) {
	return s.persistence.WorkflowRepository().GetAll(ctx, storeID)
}

// DeleteWorkflow removes a workflow definition. Enrollments referencing it
// exit on their next poll.
func (s *Service) DeleteWorkflow(ctx context.Context, storeID, id string) error {
	return s.persistence.WorkflowRepository().Delete(ctx, storeID, id)
}

// HandleTrigger feeds one trigger event through the matcher and returns the
// number of enrollments created.
func (s *Service) HandleTrigger(ctx context.Context, storeID string, triggerType models.TriggerType, data map[string]any) (int, error) {
	return s.matcher.HandleTrigger(ctx, storeID, triggerType, data)
}

// ProcessPendingSteps runs one poll cycle for a store.
func (s *Service) ProcessPendingSteps(ctx context.Context, storeID string) (int, error) {
	return s.executor.ProcessPendingSteps(ctx, storeID)
}

// CheckAbandonedCarts runs one abandoned cart scan for a store.
func (s *Service) CheckAbandonedCarts(ctx context.Context, storeID string) (int, error) {
	return s.detector.CheckAbandonedCarts(ctx, storeID)
}

// StoreIDs lists every store that owns workflows, for the runner to iterate.
func (s *Service) StoreIDs(ctx context.Context) ([]string, error) {
	return s.persistence.WorkflowRepository().StoreIDs(ctx)
}

// GetEnrollment returns one enrollment.
func (s *Service) GetEnrollment(ctx context.Context, storeID, id string) (*models.Enrollment, error) {
	return s.persistence.EnrollmentRepository().GetByID(ctx, storeID, id)
}

// ListEnrollments returns a workflow's enrollments.
func (s *Service) ListEnrollments(ctx context.Context, storeID, workflowID string) ([]*models.Enrollment, error) {
	return s.persistence.EnrollmentRepository().ListByWorkflow(ctx, storeID, workflowID)
}

// ListStepLogs returns an enrollment's audit trail in execution order.
func (s *Service) ListStepLogs(ctx context.Context, storeID, enrollmentID string) ([]*models.StepLog, error) {
	return s.persistence.StepLogRepository().ListByEnrollment(ctx, storeID, enrollmentID)
}

func (s *Service) validateWorkflow(workflow *models.Workflow) error {
	if err := s.validate.Struct(workflow); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	if !models.IsValidTriggerType(workflow.TriggerType) {
		return NewValidationError("unsupported trigger type %q", workflow.TriggerType)
	}

	if err := schema.ValidateWorkflowSteps(workflow); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	return nil
}
