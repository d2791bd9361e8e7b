package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/pkg/response"
)

const outputURLExpiry = 1 * time.Hour

type RenderHandler struct {
	pipeline *service.PipelineService
}

func NewRenderHandler(pipeline *service.PipelineService) *RenderHandler {
	return &RenderHandler{
		pipeline: pipeline,
	}
}

// Start handles POST /api/projects/:projectId/render
func (h *RenderHandler) Start(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	job, err := h.pipeline.StartRender(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		if errors.Is(err, service.ErrProjectNotReady) {
			return response.Conflict(c, "Project has not finished generation")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.RenderStartResponse{
		JobID:      job.ID,
		ProjectID:  job.ProjectID,
		Status:     job.Status,
		ChunkCount: len(job.Chunks),
		CreatedAt:  job.CreatedAt,
	})
}

// Status handles GET /api/render/:jobId/status
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.pipeline.GetRenderStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/render/:jobId/cancel
func (h *RenderHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.pipeline.CancelRender(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.Conflict(c, err.Error())
	}

	return response.OK(c, model.CancelResponse{
		Success: true,
		ID:      job.ID,
		Status:  string(job.Status),
	})
}

// Output handles GET /api/render/:jobId/output
func (h *RenderHandler) Output(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.pipeline.GetOutputURL(c.Context(), jobID, outputURLExpiry)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrOutputNotAvailable) {
			return response.Conflict(c, "Job has no published output")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
