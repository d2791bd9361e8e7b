package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/pkg/response"
)

type ProjectHandler struct {
	pipeline  *service.PipelineService
	validator *validator.Validate
}

func NewProjectHandler(pipeline *service.PipelineService, v *validator.Validate) *ProjectHandler {
	return &ProjectHandler{
		pipeline:  pipeline,
		validator: v,
	}
}

// Create handles POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req model.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.pipeline.CreateProject(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, model.CreateProjectResponse{
		ProjectID: project.ID,
		Status:    project.Status,
		CreatedAt: project.CreatedAt,
	})
}

// Generate handles POST /api/projects/:projectId/generate
func (h *ProjectHandler) Generate(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	project, err := h.pipeline.StartGeneration(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.Conflict(c, err.Error())
	}

	return response.Accepted(c, model.GenerateStartResponse{
		ProjectID: project.ID,
		JobID:     project.GenerationJobID,
		Status:    project.Status,
		CreatedAt: project.CreatedAt,
	})
}

// Status handles GET /api/projects/:projectId/status
func (h *ProjectHandler) Status(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	result, err := h.pipeline.GetProjectStatus(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/projects/:projectId/cancel
func (h *ProjectHandler) Cancel(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	project, err := h.pipeline.CancelGeneration(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.Conflict(c, err.Error())
	}

	return response.OK(c, model.CancelResponse{
		Success: true,
		ID:      project.ID,
		Status:  "canceling",
	})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
