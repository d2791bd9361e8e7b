package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// ErrProjectNotReady is returned when an operation requires the project
// to have finished generation first.
var ErrProjectNotReady = errors.New("project is not ready")

// ErrOutputNotAvailable is returned when a render job has no published
// output to sign.
var ErrOutputNotAvailable = errors.New("output not available")

// PipelineService is the API-facing surface of the pipeline. It owns
// project lifecycle and queueing; the heavy lifting happens in the
// asynq workers.
type PipelineService struct {
	store       *ProjectStore
	asynqClient *asynq.Client
	storage     client.StorageClient
	renderCfg   config.RenderConfig
}

// NewPipelineService wires the pipeline service. storage may be nil in
// development; signed output URLs are then unavailable.
func NewPipelineService(store *ProjectStore, asynqClient *asynq.Client, storage client.StorageClient, renderCfg config.RenderConfig) *PipelineService {
	return &PipelineService{
		store:       store,
		asynqClient: asynqClient,
		storage:     storage,
		renderCfg:   renderCfg,
	}
}

// CreateProject validates and persists a new storyboard in draft state.
func (s *PipelineService) CreateProject(ctx context.Context, req *model.CreateProjectRequest) (*model.Project, error) {
	projectID := uuid.New().String()
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = "16:9"
	}

	project := &model.Project{
		ID:             projectID,
		Status:         model.ProjectStatusDraft,
		TargetDuration: req.TargetDuration,
		AspectRatio:    aspect,
		CreatedAt:      time.Now(),
	}
	for i, in := range req.Scenes {
		project.Scenes = append(project.Scenes, &model.Scene{
			ID:              uuid.New().String(),
			ProjectID:       projectID,
			Order:           i,
			DurationSeconds: in.DurationSeconds,
			SceneType:       in.SceneType,
			Narration:       in.Narration,
			VisualDirection: in.VisualDirection,
		})
	}

	if err := s.store.SaveProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}
	log.Printf("Created project %s with %d scenes", projectID, len(project.Scenes))
	return project, nil
}

// StartGeneration queues the generation run for a project. Re-running a
// finished or failed project is allowed; a project already generating
// is not.
func (s *PipelineService) StartGeneration(ctx context.Context, projectID string) (*model.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == model.ProjectStatusGenerating || project.Status == model.ProjectStatusRendering {
		return nil, fmt.Errorf("project %s is busy (status %s)", projectID, project.Status)
	}

	if err := s.store.ClearCanceled(ctx, projectID); err != nil {
		log.Printf("Failed to clear cancel flag for project %s: %v", projectID, err)
	}

	jobID := uuid.New().String()
	project, err = s.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		p.Status = model.ProjectStatusGenerating
		p.GenerationJobID = jobID
		p.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	task, err := NewGenerateTask(projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.asynqClient.EnqueueContext(ctx, task); err != nil {
		_, _ = s.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
			p.Status = model.ProjectStatusError
			p.Error = "failed to queue generation"
			return nil
		})
		return nil, fmt.Errorf("failed to enqueue generation: %w", err)
	}

	log.Printf("Queued generation for project %s (job %s)", projectID, jobID)
	return project, nil
}

// StartRender plans chunks for a ready project and queues the render
// job. Chunk boundaries are fixed here; the worker never re-plans.
func (s *PipelineService) StartRender(ctx context.Context, projectID string) (*model.RenderJob, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != model.ProjectStatusReady && project.Status != model.ProjectStatusComplete {
		return nil, fmt.Errorf("%w: status %s", ErrProjectNotReady, project.Status)
	}

	if err := s.store.ClearCanceled(ctx, projectID); err != nil {
		log.Printf("Failed to clear cancel flag for project %s: %v", projectID, err)
	}

	chunks := PlanChunks(project.Scenes, s.renderCfg.ChunkThresholdSeconds, s.renderCfg.MaxChunkSeconds, s.renderCfg.FPS)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("project %s has no scenes to render", projectID)
	}

	job := &model.RenderJob{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Status:    model.RenderJobQueued,
		Chunks:    chunks,
		FPS:       s.renderCfg.FPS,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveRenderJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save render job: %w", err)
	}

	if _, err := s.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		p.RenderJobID = job.ID
		return nil
	}); err != nil {
		return nil, err
	}

	task, err := NewRenderTask(job.ID, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.asynqClient.EnqueueContext(ctx, task); err != nil {
		_, _ = s.store.UpdateRenderJob(ctx, job.ID, func(j *model.RenderJob) error {
			j.Status = model.RenderJobFailed
			j.Error = "failed to queue render"
			return nil
		})
		return nil, fmt.Errorf("failed to enqueue render: %w", err)
	}

	log.Printf("Queued render job %s for project %s (%d chunks)", job.ID, projectID, len(chunks))
	return job, nil
}

// GetProjectStatus builds the status snapshot for a project.
func (s *PipelineService) GetProjectStatus(ctx context.Context, projectID string) (*model.ProjectStatusResponse, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	resp := &model.ProjectStatusResponse{
		ProjectID:   project.ID,
		Status:      project.Status,
		RenderJobID: project.RenderJobID,
		Error:       project.Error,
		UpdatedAt:   project.UpdatedAt,
	}
	for _, sc := range project.Scenes {
		st := model.SceneStatus{
			SceneID:      sc.ID,
			Order:        sc.Order,
			Assets:       sc.Assets,
			ReviewStatus: sc.ReviewStatus,
			AttemptCount: len(sc.Attempts),
		}
		if sc.Analysis != nil {
			score := sc.Analysis.Score
			st.Score = &score
		}
		resp.Scenes = append(resp.Scenes, st)
	}
	return resp, nil
}

// GetRenderStatus builds the status snapshot for a render job.
func (s *PipelineService) GetRenderStatus(ctx context.Context, jobID string) (*model.RenderStatusResponse, error) {
	job, err := s.store.GetRenderJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.RenderStatusResponse{
		JobID:              job.ID,
		ProjectID:          job.ProjectID,
		Status:             job.Status,
		Chunks:             job.Chunks,
		OutputURI:          job.OutputURI,
		FailedChunkIndices: job.FailedChunkIndices,
		Error:              job.Error,
		CreatedAt:          job.CreatedAt,
		CompletedAt:        job.CompletedAt,
	}, nil
}

// CancelGeneration raises the cancel flag for a project. In-flight
// provider calls finish but their results are discarded; no further
// scenes are scheduled.
func (s *PipelineService) CancelGeneration(ctx context.Context, projectID string) (*model.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != model.ProjectStatusGenerating {
		return nil, fmt.Errorf("project %s is not generating (status %s)", projectID, project.Status)
	}

	if err := s.store.MarkCanceled(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to mark canceled: %w", err)
	}
	log.Printf("Cancel requested for project %s", projectID)
	return project, nil
}

// CancelRender raises the cancel flag for a render job's project. Chunks
// already dispatched finish; no new chunks start and no output is
// published.
func (s *PipelineService) CancelRender(ctx context.Context, jobID string) (*model.RenderJob, error) {
	job, err := s.store.GetRenderJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.RenderJobQueued && job.Status != model.RenderJobRunning {
		return nil, fmt.Errorf("job %s is not cancelable (status %s)", jobID, job.Status)
	}

	if err := s.store.MarkCanceled(ctx, job.ProjectID); err != nil {
		return nil, fmt.Errorf("failed to mark canceled: %w", err)
	}

	if job.Status == model.RenderJobQueued {
		job, err = s.store.UpdateRenderJob(ctx, jobID, func(j *model.RenderJob) error {
			j.Status = model.RenderJobCanceled
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	log.Printf("Cancel requested for render job %s", jobID)
	return job, nil
}

// GetOutputURL signs a time-limited download URL for a finished job.
func (s *PipelineService) GetOutputURL(ctx context.Context, jobID string, expiry time.Duration) (*model.OutputURLResponse, error) {
	job, err := s.store.GetRenderJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.RenderJobSucceeded || job.OutputURI == "" {
		return nil, fmt.Errorf("%w: job %s status %s", ErrOutputNotAvailable, jobID, job.Status)
	}

	url := job.OutputURI
	if s.storage != nil && job.OutputKey != "" {
		signed, err := s.storage.GetSignedURL(ctx, job.OutputKey, expiry)
		if err != nil {
			return nil, fmt.Errorf("failed to sign output URL: %w", err)
		}
		url = signed
	}

	return &model.OutputURLResponse{
		JobID:     jobID,
		URL:       url,
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}
