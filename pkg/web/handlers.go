// Package web provides HTTP handlers and REST API endpoints for workflow and
// enrollment management.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/leadmill/leadmill/pkg/automation"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

type APIHandlers struct {
	service     *automation.Service
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(service *automation.Service, p persistence.Persistence, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		service:     service,
		persistence: p,
		validator:   validate,
	}
}

// RegisterRoutes attaches every endpoint to the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	stores := app.Group("/stores/:storeId")

	stores.Get("/workflows", h.GetWorkflows)
	stores.Post("/workflows", h.CreateWorkflow)
	stores.Get("/workflows/:id", h.GetWorkflow)
	stores.Patch("/workflows/:id", h.UpdateWorkflow)
	stores.Delete("/workflows/:id", h.DeleteWorkflow)
	stores.Post("/workflows/:id/activate", h.ActivateWorkflow)
	stores.Post("/workflows/:id/pause", h.PauseWorkflow)

	stores.Post("/triggers", h.HandleTrigger)

	stores.Get("/enrollments", h.GetEnrollments)
	stores.Get("/enrollments/:id/logs", h.GetEnrollmentLogs)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	workflows, err := h.service.ListWorkflows(c.Context(), storeID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.service.GetWorkflow(c.Context(), storeID, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		StoreID:       storeID,
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		Steps:         req.Steps,
	}

	created, err := h.service.CreateWorkflow(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.service.GetWorkflow(c.Context(), storeID, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}

	if req.TriggerType != nil {
		workflow.TriggerType = *req.TriggerType
	}

	if req.TriggerConfig != nil {
		workflow.TriggerConfig = req.TriggerConfig
	}

	if req.Steps != nil {
		workflow.Steps = *req.Steps
	}

	updated, err := h.service.UpdateWorkflow(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.service.DeleteWorkflow(c.Context(), storeID, id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.service.ActivateWorkflow(c.Context(), storeID, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.service.PauseWorkflow(c.Context(), storeID, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

// HandleTrigger ingests one trigger event synchronously and reports how many
// enrollments it created.
func (h *APIHandlers) HandleTrigger(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enrolled, err := h.service.HandleTrigger(c.Context(), storeID, req.TriggerType, req.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TriggerResponse{Enrolled: enrolled})
}

func (h *APIHandlers) GetEnrollments(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	workflowID := c.Query("workflow_id")
	if workflowID == "" {
		return badRequest(c, "workflow_id query parameter is required")
	}

	enrollments, err := h.service.ListEnrollments(c.Context(), storeID, workflowID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"enrollments": enrollments})
}

func (h *APIHandlers) GetEnrollmentLogs(c fiber.Ctx) error {
	storeID := c.Params("storeId")

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	if _, err := h.service.GetEnrollment(c.Context(), storeID, id); err != nil {
		return handleServiceError(c, err)
	}

	logs, err := h.service.ListStepLogs(c.Context(), storeID, id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	message := "Leadmill API is healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		message = "Leadmill API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
