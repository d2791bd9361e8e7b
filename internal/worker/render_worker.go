package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
)

// RenderWorker processes queued render jobs. It verifies every scene is
// renderable, hands the job to the coordinator, and moves the project
// through rendering to complete or error.
type RenderWorker struct {
	store       *service.ProjectStore
	coordinator *service.RenderCoordinator
}

// NewRenderWorker wires the render worker.
func NewRenderWorker(store *service.ProjectStore, coordinator *service.RenderCoordinator) *RenderWorker {
	return &RenderWorker{
		store:       store,
		coordinator: coordinator,
	}
}

// ProcessTask handles one render job end to end.
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.RenderTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid render payload: %w", err)
	}

	job, err := w.store.GetRenderJob(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("load render job %s: %w", payload.JobID, err)
	}
	if job.Status != model.RenderJobQueued {
		log.Printf("Render job %s already in status %s, skipping", job.ID, job.Status)
		return nil
	}

	project, err := w.store.GetProject(ctx, payload.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", payload.ProjectID, err)
	}

	if w.store.IsCanceled(ctx, project.ID) {
		_, err := w.store.UpdateRenderJob(ctx, job.ID, func(j *model.RenderJob) error {
			j.Status = model.RenderJobCanceled
			return nil
		})
		return err
	}

	if _, err := w.store.UpdateProject(ctx, project.ID, func(p *model.Project) error {
		p.Status = model.ProjectStatusRendering
		return nil
	}); err != nil {
		return fmt.Errorf("mark project rendering: %w", err)
	}

	log.Printf("Render started for job %s (project %s, %d chunks)", job.ID, project.ID, len(job.Chunks))
	renderErr := w.coordinator.Render(ctx, project, job)

	final, err := w.store.GetRenderJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("reload render job %s: %w", job.ID, err)
	}

	projectStatus := model.ProjectStatusComplete
	projectErr := ""
	switch final.Status {
	case model.RenderJobSucceeded:
		projectStatus = model.ProjectStatusComplete
	case model.RenderJobCanceled:
		projectStatus = model.ProjectStatusCanceled
	default:
		projectStatus = model.ProjectStatusError
		projectErr = final.Error
	}

	if _, err := w.store.UpdateProject(ctx, project.ID, func(p *model.Project) error {
		p.Status = projectStatus
		p.Error = projectErr
		return nil
	}); err != nil {
		return fmt.Errorf("finalize project %s: %w", project.ID, err)
	}

	return renderErr
}
