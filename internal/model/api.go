package model

import "time"

// SceneInput is one storyboard entry in a project creation request
type SceneInput struct {
	SceneType       string  `json:"sceneType" validate:"required"`
	Narration       string  `json:"narration"`
	VisualDirection string  `json:"visualDirection" validate:"required"`
	DurationSeconds float64 `json:"durationSeconds" validate:"gte=0"`
}

// CreateProjectRequest creates a project from a storyboard
type CreateProjectRequest struct {
	Scenes         []SceneInput `json:"scenes" validate:"required,min=1,dive"`
	TargetDuration float64      `json:"targetDuration" validate:"gte=0"`
	AspectRatio    string       `json:"aspectRatio" validate:"omitempty,oneof=16:9 9:16 1:1"`
}

// CreateProjectResponse returns the new project ID
type CreateProjectResponse struct {
	ProjectID string        `json:"projectId"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// GenerateStartResponse acknowledges a queued generation run
type GenerateStartResponse struct {
	ProjectID string        `json:"projectId"`
	JobID     string        `json:"jobId"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// SceneStatus is the per-scene slice of a status snapshot
type SceneStatus struct {
	SceneID      string            `json:"sceneId"`
	Order        int               `json:"order"`
	Assets       map[AssetKind]*Asset `json:"assets,omitempty"`
	Score        *float64          `json:"score,omitempty"`
	ReviewStatus SceneReviewStatus `json:"reviewStatus,omitempty"`
	AttemptCount int               `json:"attemptCount"`
}

// ProjectStatusResponse is the status snapshot for a project
type ProjectStatusResponse struct {
	ProjectID   string        `json:"projectId"`
	Status      ProjectStatus `json:"status"`
	Scenes      []SceneStatus `json:"scenes"`
	RenderJobID string        `json:"renderJobId,omitempty"`
	Error       string        `json:"error,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// RenderStartResponse acknowledges a queued render job
type RenderStartResponse struct {
	JobID      string          `json:"jobId"`
	ProjectID  string          `json:"projectId"`
	Status     RenderJobStatus `json:"status"`
	ChunkCount int             `json:"chunkCount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// RenderStatusResponse is the status snapshot for a render job
type RenderStatusResponse struct {
	JobID              string          `json:"jobId"`
	ProjectID          string          `json:"projectId"`
	Status             RenderJobStatus `json:"status"`
	Chunks             []RenderChunk   `json:"chunks"`
	OutputURI          string          `json:"outputUri,omitempty"`
	FailedChunkIndices []int           `json:"failedChunkIndices,omitempty"`
	Error              string          `json:"error,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	CompletedAt        *time.Time      `json:"completedAt,omitempty"`
}

// CancelResponse acknowledges a cancellation
type CancelResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status"`
}

// OutputURLResponse carries a signed URL for the final artifact
type OutputURLResponse struct {
	JobID     string    `json:"jobId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
