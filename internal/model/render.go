package model

import "time"

// ChunkStatus tracks one chunk through the remote render function
type ChunkStatus string

const (
	ChunkStatusPending   ChunkStatus = "pending"
	ChunkStatusRendering ChunkStatus = "rendering"
	ChunkStatusDone      ChunkStatus = "done"
	ChunkStatusFailed    ChunkStatus = "failed"
)

// RenderChunk is a contiguous scene-aligned sub-range of the composition.
// Boundaries always fall on scene boundaries: a scene's frames never
// straddle two chunks, so each chunk is independently decodable and the
// outputs can be re-stitched byte-wise.
type RenderChunk struct {
	Index           int         `json:"index"`
	SceneStart      int         `json:"sceneStart"` // inclusive scene index
	SceneEnd        int         `json:"sceneEnd"`   // exclusive scene index
	StartFrame      int         `json:"startFrame"` // inclusive
	EndFrame        int         `json:"endFrame"`   // exclusive
	DurationSeconds float64     `json:"durationSeconds"`
	Status          ChunkStatus `json:"status"`
	OutputURI       string      `json:"outputUri,omitempty"`
	Retries         int         `json:"retries"`
	Error           string      `json:"error,omitempty"`
}

// RenderJobStatus is the overall job state
type RenderJobStatus string

const (
	RenderJobQueued    RenderJobStatus = "queued"
	RenderJobRunning   RenderJobStatus = "running"
	RenderJobSucceeded RenderJobStatus = "succeeded"
	RenderJobFailed    RenderJobStatus = "failed"
	RenderJobCanceled  RenderJobStatus = "canceled"
)

// RenderJob is one render attempt over a project. The final OutputURI is
// set only after every chunk reaches done and the chunks have been
// concatenated; partial output is never published.
type RenderJob struct {
	ID                 string          `json:"id"`
	ProjectID          string          `json:"projectId"`
	Status             RenderJobStatus `json:"status"`
	Chunks             []RenderChunk   `json:"chunks"`
	FPS                int             `json:"fps"`
	OutputURI          string          `json:"outputUri,omitempty"`
	OutputKey          string          `json:"outputKey,omitempty"`
	FailedChunkIndices []int           `json:"failedChunkIndices,omitempty"`
	Error              string          `json:"error,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	StartedAt          *time.Time      `json:"startedAt,omitempty"`
	CompletedAt        *time.Time      `json:"completedAt,omitempty"`
}
