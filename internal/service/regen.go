package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/storyreel/api/internal/model"
)

// Notifier receives pipeline progress events. Satisfied by the
// WebSocket hub; tests substitute a recorder.
type Notifier interface {
	SceneGenerated(projectID, sceneID string, order int, kind model.AssetKind)
	SceneCached(projectID, sceneID string, order int, kind model.AssetKind)
	SceneAnalyzed(projectID, sceneID string, score float64, rec model.Recommendation)
	SceneRegenerating(projectID, sceneID string, attempt int)
}

// RegenerationLoop runs the analyze-regenerate cycle for a scene's
// primary visual. Regeneration is bounded per scene and kind; when the
// budget runs out the last asset is kept and the scene is flagged for
// manual review instead of blocking the project.
type RegenerationLoop struct {
	orchestrator *ProviderOrchestrator
	cache        *AssetCache
	analyzer     *QualityAnalyzer
	store        *ProjectStore
	notifier     Notifier
	maxAttempts  int
}

// NewRegenerationLoop wires the loop. maxAttempts is the regeneration
// budget per scene and asset kind.
func NewRegenerationLoop(orch *ProviderOrchestrator, cache *AssetCache, analyzer *QualityAnalyzer, store *ProjectStore, notifier Notifier, maxAttempts int) *RegenerationLoop {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &RegenerationLoop{
		orchestrator: orch,
		cache:        cache,
		analyzer:     analyzer,
		store:        store,
		notifier:     notifier,
		maxAttempts:  maxAttempts,
	}
}

// ReviewScene analyzes the scene's primary visual and regenerates it
// while the verdict demands it and budget remains. The scene always
// ends in a renderable state: approved, flagged for review, or keeping
// its best asset with the review flag raised.
func (r *RegenerationLoop) ReviewScene(ctx context.Context, project *model.Project, scene *model.Scene) error {
	asset := scene.PrimaryVisual()
	if asset == nil || !asset.Ready {
		return r.flagForReview(ctx, project.ID, scene)
	}
	kind := asset.Kind

	needAnalysis := true
	var verdict *model.AnalysisResult
	for {
		if needAnalysis {
			verdict = r.analyzer.Analyze(ctx, asset, scene)
			r.persistAnalysis(ctx, project.ID, scene, verdict)
			if r.notifier != nil {
				r.notifier.SceneAnalyzed(project.ID, scene.ID, verdict.Score, verdict.Recommendation)
			}
			needAnalysis = false
		}

		switch verdict.Recommendation {
		case model.RecommendationApproved:
			return nil
		case model.RecommendationNeedsReview:
			return r.flagForReview(ctx, project.ID, scene)
		}

		// regenerate or critical_fail from here
		count := scene.RegenCounts[kind]
		if count >= r.maxAttempts {
			log.Printf("Regeneration budget exhausted for scene %s (%s), flagging for review", scene.ID, kind)
			return r.flagForReview(ctx, project.ID, scene)
		}

		if r.store != nil && r.store.IsCanceled(ctx, project.ID) {
			return nil
		}

		attempt := count + 1
		r.bumpRegenCount(ctx, project.ID, scene, kind)
		if r.notifier != nil {
			r.notifier.SceneRegenerating(project.ID, scene.ID, attempt)
		}

		prompt := adjustPrompt(scene.VisualDirection, verdict)
		outcome, err := r.orchestrator.Generate(ctx, scene, kind, prompt, project.AspectRatio, attempt)
		if err != nil {
			log.Printf("Regeneration attempt %d failed for scene %s: %v", attempt, scene.ID, err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Attempt consumed; the standing verdict decides the next step.
			continue
		}
		if r.notifier != nil {
			r.notifier.SceneGenerated(project.ID, scene.ID, scene.Order, kind)
		}

		cached, err := r.cache.EnsureReady(ctx, outcome.Asset, outcome.Bytes, outcome.ContentType)
		if err != nil || !cached.Ready {
			log.Printf("Regenerated asset for scene %s failed to cache, keeping previous asset: %v", scene.ID, err)
			continue
		}

		if r.store != nil && r.store.IsCanceled(ctx, project.ID) {
			// Canceled mid-flight: the finished result is discarded.
			return nil
		}

		r.installAsset(ctx, project.ID, scene, cached)
		if r.notifier != nil {
			r.notifier.SceneCached(project.ID, scene.ID, scene.Order, kind)
		}
		asset = cached
		needAnalysis = true
	}
}

// adjustPrompt folds the analyzer's findings into the next prompt so a
// regeneration never repeats the exact request that already failed.
func adjustPrompt(base string, verdict *model.AnalysisResult) string {
	var b strings.Builder
	if verdict.Recommendation == model.RecommendationCriticalFail {
		b.WriteString("Take a completely different approach. ")
	}
	b.WriteString(base)

	var problems []string
	for _, issue := range verdict.Issues {
		if issue.Description != "" {
			problems = append(problems, issue.Description)
		}
	}
	if len(problems) > 0 {
		fmt.Fprintf(&b, "\nAvoid these problems from the previous attempt: %s", strings.Join(problems, "; "))
	} else {
		b.WriteString("\nImprove on the previous attempt.")
	}
	return b.String()
}

func (r *RegenerationLoop) persistAnalysis(ctx context.Context, projectID string, scene *model.Scene, verdict *model.AnalysisResult) {
	scene.Analysis = verdict
	if r.store == nil {
		return
	}
	if _, err := r.store.UpdateScene(ctx, projectID, scene.ID, func(sc *model.Scene) error {
		sc.Analysis = verdict
		return nil
	}); err != nil {
		log.Printf("Failed to persist analysis for scene %s: %v", scene.ID, err)
	}
}

func (r *RegenerationLoop) bumpRegenCount(ctx context.Context, projectID string, scene *model.Scene, kind model.AssetKind) {
	if scene.RegenCounts == nil {
		scene.RegenCounts = make(map[model.AssetKind]int)
	}
	scene.RegenCounts[kind]++
	if r.store == nil {
		return
	}
	if _, err := r.store.UpdateScene(ctx, projectID, scene.ID, func(sc *model.Scene) error {
		if sc.RegenCounts == nil {
			sc.RegenCounts = make(map[model.AssetKind]int)
		}
		sc.RegenCounts[kind] = scene.RegenCounts[kind]
		return nil
	}); err != nil {
		log.Printf("Failed to persist regen count for scene %s: %v", scene.ID, err)
	}
}

func (r *RegenerationLoop) installAsset(ctx context.Context, projectID string, scene *model.Scene, asset *model.Asset) {
	scene.SetAsset(asset)
	if r.store == nil {
		return
	}
	if _, err := r.store.UpdateScene(ctx, projectID, scene.ID, func(sc *model.Scene) error {
		sc.SetAsset(asset)
		return nil
	}); err != nil {
		log.Printf("Failed to persist regenerated asset for scene %s: %v", scene.ID, err)
	}
}

func (r *RegenerationLoop) flagForReview(ctx context.Context, projectID string, scene *model.Scene) error {
	scene.ReviewStatus = model.SceneReviewNeeded
	if r.store == nil {
		return nil
	}
	_, err := r.store.UpdateScene(ctx, projectID, scene.ID, func(sc *model.Scene) error {
		sc.ReviewStatus = model.SceneReviewNeeded
		return nil
	})
	return err
}
