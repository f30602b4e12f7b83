package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/automation"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence/file"
)

func setupTestApp(t *testing.T) (*fiber.App, *automation.Service, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	registry := actions.DefaultRegistry(actions.Collaborators{
		EmailSender:  actions.NewLoggingCollaborators(slog.Default()),
		Unsubscribes: p.UnsubscribeRepository(),
	})
	service := automation.NewService(slog.Default(), p, registry, nil)

	handlers := NewAPIHandlers(service, p, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.RegisterRoutes(app)
	app.Get("/health", handlers.HealthCheck)

	return app, service, p
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestCreateWorkflowEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/stores/store-1/workflows", CreateWorkflowRequest{
		Name:        "Welcome series",
		TriggerType: models.TriggerCustomerCreated,
		Steps: []models.Step{
			{Type: models.StepSendEmail, Config: map[string]any{"template_id": "welcome"}},
		},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow

	decodeBody(t, resp, &workflow)
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "store-1", workflow.StoreID)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
}

func TestCreateWorkflowEndpoint_ValidationError(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/stores/store-1/workflows", CreateWorkflowRequest{
		Name:        "ab",
		TriggerType: models.TriggerCustomerCreated,
	})

	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivateWorkflowEndpoint_RejectsZeroSteps(t *testing.T) {
	app, service, _ := setupTestApp(t)

	created, err := service.CreateWorkflow(context.Background(), &models.Workflow{
		StoreID:     "store-1",
		Name:        "Empty workflow",
		TriggerType: models.TriggerCustomerCreated,
	})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/stores/store-1/workflows/"+created.ID+"/activate", nil)

	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowLifecycleEndpoints(t *testing.T) {
	app, service, _ := setupTestApp(t)
	ctx := context.Background()

	created, err := service.CreateWorkflow(ctx, &models.Workflow{
		StoreID:     "store-1",
		Name:        "Welcome series",
		TriggerType: models.TriggerCustomerCreated,
		Steps: []models.Step{
			{Type: models.StepSendEmail, Config: map[string]any{"template_id": "welcome"}},
		},
	})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/stores/store-1/workflows/"+created.ID+"/activate", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var activated models.Workflow

	decodeBody(t, resp, &activated)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)

	resp = doJSON(t, app, http.MethodPost, "/stores/store-1/workflows/"+created.ID+"/pause", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var paused models.Workflow

	decodeBody(t, resp, &paused)
	assert.Equal(t, models.WorkflowStatusPaused, paused.Status)
}

func TestWorkflowEndpoint_NotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/stores/store-1/workflows/missing", nil)

	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerEndpoint(t *testing.T) {
	app, service, _ := setupTestApp(t)
	ctx := context.Background()

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

	resp := doJSON(t, app, http.MethodPost, "/stores/store-1/triggers", TriggerRequest{
		TriggerType: models.TriggerCustomerCreated,
		Data:        map[string]any{"customer_id": "cust-1", "email": "ada@example.com"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result TriggerResponse

	decodeBody(t, resp, &result)
	assert.Equal(t, 1, result.Enrolled)
}

func TestTriggerEndpoint_MissingCustomerID(t *testing.T) {
	app, _, _ := setupTestApp(t)

	// Eligibility skip, not a request error: the event is accepted and
	// enrolls nobody.
	resp := doJSON(t, app, http.MethodPost, "/stores/store-1/triggers", TriggerRequest{
		TriggerType: models.TriggerCustomerCreated,
		Data:        map[string]any{"email": "ada@example.com"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result TriggerResponse

	decodeBody(t, resp, &result)
	assert.Equal(t, 0, result.Enrolled)
}

func TestTriggerEndpoint_UnknownTriggerType(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/stores/store-1/triggers", TriggerRequest{
		TriggerType: models.TriggerType("meteor_strike"),
		Data:        map[string]any{"customer_id": "cust-1"},
	})

	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEnrollmentEndpoints(t *testing.T) {
	app, service, _ := setupTestApp(t)
	ctx := context.Background()

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

	_, err = service.ProcessPendingSteps(ctx, "store-1")
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodGet, "/stores/store-1/enrollments?workflow_id="+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Enrollments []*models.Enrollment `json:"enrollments"`
	}

	decodeBody(t, resp, &listing)
	require.Len(t, listing.Enrollments, 1)

	resp = doJSON(t, app, http.MethodGet, "/stores/store-1/enrollments/"+listing.Enrollments[0].ID+"/logs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var logListing struct {
		Logs []*models.StepLog `json:"logs"`
	}

	decodeBody(t, resp, &logListing)
	require.Len(t, logListing.Logs, 1)
	assert.Equal(t, models.StepSendEmail, logListing.Logs[0].StepType)

	resp = doJSON(t, app, http.MethodGet, "/stores/store-1/enrollments/missing/logs", nil)

	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil)

	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
