package automation

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/persistence/file"
)

func newServiceFixture(t *testing.T) (*file.Persistence, *Service) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	registry := actions.DefaultRegistry(actions.Collaborators{
		EmailSender:  &recordingEmailSender{},
		Unsubscribes: p.UnsubscribeRepository(),
	})

	return p, NewService(slog.Default(), p, registry, nil)
}

func TestCreateWorkflow_DefaultsToDraft(t *testing.T) {
	ctx := context.Background()
	_, service := newServiceFixture(t)

	created, err := service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "Welcome series",
		TriggerType: models.TriggerCustomerCreated,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
}

func TestCreateWorkflow_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	_, service := newServiceFixture(t)

	_, err := service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "ab",
		TriggerType: models.TriggerCustomerCreated,
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "Welcome series",
		TriggerType: models.TriggerType("meteor_strike"),
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "Welcome series",
		TriggerType: models.TriggerCustomerCreated,
		Steps: []models.Step{
			{Type: models.StepDelay, Config: map[string]any{"unit": "days"}},
		},
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestActivateWorkflow(t *testing.T) {
	ctx := context.Background()
	_, service := newServiceFixture(t)

	created, err := service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "Welcome series",
		TriggerType: models.TriggerCustomerCreated,
		Steps: []models.Step{
			{Type: models.StepSendEmail, Config: map[string]any{"template_id": "welcome"}},
		},
	})
	require.NoError(t, err)

	activated, err := service.ActivateWorkflow(ctx, "store-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)
}

func TestActivateWorkflow_RejectsZeroSteps(t *testing.T) {
	ctx := context.Background()
	_, service := newServiceFixture(t)

	created, err := service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "Empty workflow",
		TriggerType: models.TriggerCustomerCreated,
	})
	require.NoError(t, err)

	_, err = service.ActivateWorkflow(ctx, "store-1", created.ID)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "no steps")
}

func TestActivateWorkflow_NotFound(t *testing.T) {
	ctx := context.Background()
	_, service := newServiceFixture(t)

	_, err := service.ActivateWorkflow(ctx, "store-1", "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestPauseWorkflow_LeavesEnrollmentsPending(t *testing.T) {
	ctx := context.Background()
	p, service := newServiceFixture(t)

	created, err := service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "Welcome series",
		TriggerType: models.TriggerCustomerCreated,
		Steps: []models.Step{
			{Type: models.StepSendEmail, Config: map[string]any{"template_id": "welcome"}},
		},
	})
	require.NoError(t, err)

	_, err = service.ActivateWorkflow(ctx, "store-1", created.ID)
	require.NoError(t, err)

	enrolled, err := service.HandleTrigger(ctx, "store-1", models.TriggerCustomerCreated, map[string]any{
		"customer_id": "cust-1",
		"email":       "ada@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, 1, enrolled)

	_, err = service.PauseWorkflow(ctx, "store-1", created.ID)
	require.NoError(t, err)

	processed, err := service.ProcessPendingSteps(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, 0, processed)

	enrollments, err := p.EnrollmentRepository().ListByWorkflow(ctx, "store-1", created.ID)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, models.EnrollmentStatusActive, enrollments[0].Status)
	assert.Equal(t, 0, enrollments[0].CurrentStep)
}

func TestUpdateWorkflow(t *testing.T) {
	ctx := context.Background()
	_, service := newServiceFixture(t)

	created, err := service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "Welcome series",
		TriggerType: models.TriggerCustomerCreated,
	})
	require.NoError(t, err)

	created.Name = "Welcome series v2"

	updated, err := service.UpdateWorkflow(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "Welcome series v2", updated.Name)

	missing := &models.Workflow{
		ID:          "missing",
		StoreID:     "store-1",
		Name:        "Ghost workflow",
		TriggerType: models.TriggerCustomerCreated,
	}
	_, err = service.UpdateWorkflow(ctx, missing)
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestStoreIDs(t *testing.T) {
	ctx := context.Background()
	_, service := newServiceFixture(t)

	for _, storeID := range []string{"store-a", "store-b"} {
		_, err := service.CreateWorkflow(ctx, &models.Workflow{
			StoreID:     storeID,
			Name:        "Welcome series",
			TriggerType: models.TriggerCustomerCreated,
		})
		require.NoError(t, err)
	}

	ids, err := service.StoreIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"store-a", "store-b"}, ids)
}
