package model

import "time"

// AssetKind identifies what a generated asset is used for
type AssetKind string

const (
	AssetKindImage       AssetKind = "image"
	AssetKindVideo       AssetKind = "video"
	AssetKindVoice       AssetKind = "voice"
	AssetKindMusic       AssetKind = "music"
	AssetKindSoundEffect AssetKind = "sfx"
)

// VisualKinds are the kinds routed through the quality analyzer.
var VisualKinds = []AssetKind{AssetKindImage, AssetKindVideo}

// AssetOrigin records where an asset's bytes came from
type AssetOrigin string

const (
	OriginGenerated      AssetOrigin = "generated"
	OriginCachedExternal AssetOrigin = "cached-external"
	OriginUploaded       AssetOrigin = "uploaded"
)

// Asset is a generated or sourced binary referenced by URI. Ready means
// the renderer can resolve the URI at low latency; an asset must never
// reach the render coordinator with Ready=false.
type Asset struct {
	ID              string      `json:"id"`
	SceneID         string      `json:"sceneId"`
	Kind            AssetKind   `json:"kind"`
	URI             string      `json:"uri"`
	Origin          AssetOrigin `json:"origin"`
	Ready           bool        `json:"ready"`
	DurationSeconds float64     `json:"durationSeconds,omitempty"`
	ProviderID      string      `json:"providerId"`
	CacheError      string      `json:"cacheError,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// ProviderAttempt records one generation call, success or failure.
// The list on a scene is append-only: it is the audit trail and the
// input to regeneration prompt adjustments.
type ProviderAttempt struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"providerId"`
	Kind       AssetKind `json:"kind"`
	Prompt     string    `json:"prompt"`
	Attempt    int       `json:"attempt"` // regeneration round, 0 for the first pass
	Success    bool      `json:"success"`
	ErrorClass string    `json:"errorClass,omitempty"`
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latencyMs"`
	StartedAt  time.Time `json:"startedAt"`
}
