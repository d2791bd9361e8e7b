package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

const analyzerSystemPrompt = `You are a quality reviewer for generated storyboard visuals.
Score the supplied image(s) against the scene context on four axes, each 0-100:
technical_quality (sharpness, artifacts, rendering defects),
content_match (does the image show what the scene describes),
compliance (no text overlays, watermarks, logos, unsafe or off-brand content),
composition (framing, balance, readability at a glance).
List concrete issues with category, severity (low|medium|high|critical) and a short description.
Respond with a single JSON object:
{"technical_quality":N,"content_match":N,"compliance":N,"composition":N,"issues":[{"category":"...","severity":"...","description":"..."}]}`

// visionVerdict is the JSON shape the model is asked to produce.
type visionVerdict struct {
	TechnicalQuality float64       `json:"technical_quality"`
	ContentMatch     float64       `json:"content_match"`
	Compliance       float64       `json:"compliance"`
	Composition      float64       `json:"composition"`
	Issues           []model.Issue `json:"issues"`
}

// QualityAnalyzer scores generated visual assets with a vision-capable
// model. Analyzer failure is never a silent pass: it yields a
// critical_fail verdict routed to manual review.
type QualityAnalyzer struct {
	vision     *client.VisionClient
	renderer   client.ChunkRenderer
	httpClient *http.Client
	cfg        config.QualityConfig
}

// NewQualityAnalyzer creates an analyzer. renderer is used to sample
// frames from video assets and may be nil when only images are scored.
func NewQualityAnalyzer(vision *client.VisionClient, renderer client.ChunkRenderer, cfg config.QualityConfig) *QualityAnalyzer {
	return &QualityAnalyzer{
		vision:     vision,
		renderer:   renderer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
	}
}

// Analyze scores one cached asset in its scene context. It always
// returns a result; failures are encoded as critical_fail verdicts.
func (a *QualityAnalyzer) Analyze(ctx context.Context, asset *model.Asset, scene *model.Scene) *model.AnalysisResult {
	// Use mock verdict if the vision client is not configured
	if a.vision == nil || !a.vision.IsConfigured() {
		return a.mockResult(asset)
	}

	images, err := a.collectImages(ctx, asset)
	if err != nil {
		return a.failResult(asset, fmt.Errorf("failed to fetch asset for analysis: %w", err))
	}

	instruction := a.buildInstruction(scene)
	raw, err := a.vision.AnalyzeImages(ctx, analyzerSystemPrompt, instruction, images)
	if err != nil {
		return a.failResult(asset, fmt.Errorf("vision call failed: %w", err))
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return a.failResult(asset, fmt.Errorf("unparseable verdict: %w", err))
	}

	return a.scoreVerdict(asset, verdict)
}

// collectImages returns the bytes sent to the vision model: the image
// itself, or representative frames sampled from a video.
func (a *QualityAnalyzer) collectImages(ctx context.Context, asset *model.Asset) ([][]byte, error) {
	urls := []string{asset.URI}

	if asset.Kind == model.AssetKindVideo {
		if a.renderer == nil {
			return nil, fmt.Errorf("no frame extractor available for video analysis")
		}
		frames, err := a.renderer.ExtractFrames(ctx, &client.ExtractFramesRequest{
			VideoURL: asset.URI,
			Count:    a.cfg.VideoSampleFrames,
		})
		if err != nil {
			return nil, fmt.Errorf("frame extraction failed: %w", err)
		}
		if len(frames.FrameURLs) == 0 {
			return nil, fmt.Errorf("frame extraction returned no frames")
		}
		urls = frames.FrameURLs
	}

	var images [][]byte
	for _, u := range urls {
		data, err := a.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

func (a *QualityAnalyzer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (a *QualityAnalyzer) buildInstruction(scene *model.Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene type: %s\n", scene.SceneType)
	fmt.Fprintf(&b, "Expected content: %s\n", scene.VisualDirection)
	if scene.Narration != "" {
		fmt.Fprintf(&b, "Narration over this scene: %s\n", scene.Narration)
	}
	b.WriteString("Score the image(s) against this context.")
	return b.String()
}

// parseVerdict tolerates code fences around the JSON object.
func parseVerdict(raw string) (*visionVerdict, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var v visionVerdict
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// scoreVerdict computes the weighted total and maps it to a
// recommendation using the configured thresholds.
func (a *QualityAnalyzer) scoreVerdict(asset *model.Asset, v *visionVerdict) *model.AnalysisResult {
	sub := model.SubScores{
		TechnicalQuality: clampScore(v.TechnicalQuality),
		ContentMatch:     clampScore(v.ContentMatch),
		Compliance:       clampScore(v.Compliance),
		Composition:      clampScore(v.Composition),
	}

	weightSum := a.cfg.WeightTechnical + a.cfg.WeightContent + a.cfg.WeightCompliance + a.cfg.WeightComposition
	if weightSum <= 0 {
		weightSum = 100
	}
	score := (sub.TechnicalQuality*a.cfg.WeightTechnical +
		sub.ContentMatch*a.cfg.WeightContent +
		sub.Compliance*a.cfg.WeightCompliance +
		sub.Composition*a.cfg.WeightComposition) / weightSum

	rec := model.RecommendationCriticalFail
	switch {
	case score >= a.cfg.ApproveThreshold:
		rec = model.RecommendationApproved
	case score >= a.cfg.ReviewThreshold:
		rec = model.RecommendationNeedsReview
	case score >= a.cfg.RegenerateThreshold:
		rec = model.RecommendationRegenerate
	}

	return &model.AnalysisResult{
		ID:             uuid.New().String(),
		AssetID:        asset.ID,
		Score:          score,
		SubScores:      sub,
		Issues:         v.Issues,
		Recommendation: rec,
		CreatedAt:      time.Now(),
	}
}

// mockResult approves every asset for development when no vision model
// is configured.
func (a *QualityAnalyzer) mockResult(asset *model.Asset) *model.AnalysisResult {
	log.Printf("Vision model not configured, using mock verdict for asset %s", asset.ID)
	sub := model.SubScores{
		TechnicalQuality: 90,
		ContentMatch:     90,
		Compliance:       90,
		Composition:      90,
	}
	return &model.AnalysisResult{
		ID:             uuid.New().String(),
		AssetID:        asset.ID,
		Score:          90,
		SubScores:      sub,
		Recommendation: model.RecommendationApproved,
		CreatedAt:      time.Now(),
	}
}

// failResult is the conservative verdict for any analyzer failure.
func (a *QualityAnalyzer) failResult(asset *model.Asset, err error) *model.AnalysisResult {
	log.Printf("Analyzer failed for asset %s: %v", asset.ID, err)
	return &model.AnalysisResult{
		ID:             uuid.New().String(),
		AssetID:        asset.ID,
		Score:          0,
		Recommendation: model.RecommendationCriticalFail,
		AnalyzerError:  err.Error(),
		CreatedAt:      time.Now(),
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
