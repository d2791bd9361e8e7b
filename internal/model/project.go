package model

import "time"

// ProjectStatus tracks a project through the pipeline
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusGenerating ProjectStatus = "generating"
	ProjectStatusReady      ProjectStatus = "ready"
	ProjectStatusRendering  ProjectStatus = "rendering"
	ProjectStatusComplete   ProjectStatus = "complete"
	ProjectStatusError      ProjectStatus = "error"
	ProjectStatusCanceled   ProjectStatus = "canceled"
)

// SceneReviewStatus marks scenes that need a human decision
type SceneReviewStatus string

const (
	SceneReviewNone   SceneReviewStatus = ""
	SceneReviewNeeded SceneReviewStatus = "needs_manual_review"
)

// Project is an ordered storyboard owned by the orchestrator for the
// duration of a run. Creation and archival happen outside this service.
type Project struct {
	ID              string        `json:"id"`
	Status          ProjectStatus `json:"status"`
	TargetDuration  float64       `json:"targetDuration"` // seconds
	AspectRatio     string        `json:"aspectRatio"`
	Scenes          []*Scene      `json:"scenes"`
	RenderJobID     string        `json:"renderJobId,omitempty"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	GenerationJobID string        `json:"generationJobId,omitempty"`
}

// Scene is one timed unit of the storyboard. Order is immutable once
// rendering starts. Each asset kind has at most one active asset; a
// regeneration replaces, never appends.
type Scene struct {
	ID              string              `json:"id"`
	ProjectID       string              `json:"projectId"`
	Order           int                 `json:"order"`
	DurationSeconds float64             `json:"durationSeconds"`
	SceneType       string              `json:"sceneType"`
	Narration       string              `json:"narration"`
	VisualDirection string              `json:"visualDirection"`
	Assets          map[AssetKind]*Asset `json:"assets,omitempty"`
	Attempts        []ProviderAttempt   `json:"attempts,omitempty"`
	RegenCounts     map[AssetKind]int   `json:"regenCounts,omitempty"`
	Analysis        *AnalysisResult     `json:"analysis,omitempty"`
	ReviewStatus    SceneReviewStatus   `json:"reviewStatus,omitempty"`
}

// ActiveAsset returns the scene's current asset for a kind, or nil.
func (s *Scene) ActiveAsset(kind AssetKind) *Asset {
	if s.Assets == nil {
		return nil
	}
	return s.Assets[kind]
}

// SetAsset installs an asset as the active one for its kind,
// replacing any previous asset of that kind.
func (s *Scene) SetAsset(a *Asset) {
	if s.Assets == nil {
		s.Assets = make(map[AssetKind]*Asset)
	}
	s.Assets[a.Kind] = a
}

// PrimaryVisual returns the asset the renderer should show for this
// scene: the video asset when present and ready, otherwise the image.
func (s *Scene) PrimaryVisual() *Asset {
	if v := s.ActiveAsset(AssetKindVideo); v != nil && v.Ready {
		return v
	}
	return s.ActiveAsset(AssetKindImage)
}

// TotalDuration sums scene durations in order.
func TotalDuration(scenes []*Scene) float64 {
	var total float64
	for _, s := range scenes {
		total += s.DurationSeconds
	}
	return total
}
