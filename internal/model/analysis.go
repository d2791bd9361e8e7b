package model

import "time"

// Recommendation is the analyzer's verdict for one asset
type Recommendation string

const (
	RecommendationApproved    Recommendation = "approved"
	RecommendationNeedsReview Recommendation = "needs_review"
	RecommendationRegenerate  Recommendation = "regenerate"
	RecommendationCriticalFail Recommendation = "critical_fail"
)

// IssueSeverity grades an individual finding
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// Issue is one finding from the vision model
type Issue struct {
	Category    string        `json:"category"`
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
}

// SubScores are the four 0-100 axes the vision model grades.
type SubScores struct {
	TechnicalQuality float64 `json:"technicalQuality"`
	ContentMatch     float64 `json:"contentMatch"`
	Compliance       float64 `json:"compliance"`
	Composition      float64 `json:"composition"`
}

// AnalysisResult belongs to one asset at a point in time, not to the
// scene permanently. Regenerated assets get fresh results.
type AnalysisResult struct {
	ID             string         `json:"id"`
	AssetID        string         `json:"assetId"`
	Score          float64        `json:"score"` // 0-100 weighted sum
	SubScores      SubScores      `json:"subScores"`
	Issues         []Issue        `json:"issues,omitempty"`
	Recommendation Recommendation `json:"recommendation"`
	AnalyzerError  string         `json:"analyzerError,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}
