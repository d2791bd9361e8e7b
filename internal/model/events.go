package model

// Progress event types pushed to collaborators over the WebSocket hub
type EventType string

const (
	EventSceneGenerated    EventType = "scene.generated"
	EventSceneCached       EventType = "scene.cached"
	EventSceneAnalyzed     EventType = "scene.analyzed"
	EventSceneRegenerating EventType = "scene.regenerating"
	EventChunkRendered     EventType = "chunk.rendered"
	EventJobComplete       EventType = "job.complete"
	EventJobFailed         EventType = "job.failed"
	EventPing              EventType = "ping"
	EventPong              EventType = "pong"
)

// Event is the envelope for every progress message. Channel is the
// project ID during generation and the render job ID during rendering.
type Event struct {
	Type    EventType `json:"type"`
	Channel string    `json:"channel"`

	SceneID        string         `json:"sceneId,omitempty"`
	SceneOrder     *int           `json:"sceneOrder,omitempty"`
	AssetKind      AssetKind      `json:"assetKind,omitempty"`
	Score          *float64       `json:"score,omitempty"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	Attempt        *int           `json:"attempt,omitempty"`

	ChunkIndex         *int   `json:"chunkIndex,omitempty"`
	OutputURI          string `json:"outputUri,omitempty"`
	FailedChunkIndices []int  `json:"failedChunkIndices,omitempty"`

	Error string `json:"error,omitempty"`
}
