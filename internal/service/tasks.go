package service

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task types routed through the asynq queues.
const (
	TaskTypeGenerate = "generate:project"
	TaskTypeRender   = "render:job"

	QueueGenerate = "generate"
	QueueRender   = "render"
)

// GenerateTaskPayload carries a queued generation run
type GenerateTaskPayload struct {
	ProjectID string `json:"projectId"`
}

// RenderTaskPayload carries a queued render job
type RenderTaskPayload struct {
	JobID     string `json:"jobId"`
	ProjectID string `json:"projectId"`
}

// NewGenerateTask creates the asynq task for a generation run.
func NewGenerateTask(projectID string) (*asynq.Task, error) {
	payload, err := json.Marshal(GenerateTaskPayload{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGenerate, payload, asynq.Queue(QueueGenerate), asynq.MaxRetry(0)), nil
}

// NewRenderTask creates the asynq task for a render job.
func NewRenderTask(jobID, projectID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RenderTaskPayload{JobID: jobID, ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRender, payload, asynq.Queue(QueueRender), asynq.MaxRetry(0)), nil
}
