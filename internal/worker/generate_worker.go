package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
	"golang.org/x/sync/errgroup"
)

// GenerateWorker processes queued generation runs: it fans scenes out
// under a concurrency cap, generates and caches every asset kind a
// scene needs, then runs the quality loop over each scene's primary
// visual. Scene failures degrade the scene; they never fail the run.
type GenerateWorker struct {
	store        *service.ProjectStore
	orchestrator *service.ProviderOrchestrator
	cache        *service.AssetCache
	regen        *service.RegenerationLoop
	notifier     service.Notifier
	cfg          config.PipelineConfig
}

// NewGenerateWorker wires the generation worker.
func NewGenerateWorker(store *service.ProjectStore, orch *service.ProviderOrchestrator, cache *service.AssetCache, regen *service.RegenerationLoop, notifier service.Notifier, cfg config.PipelineConfig) *GenerateWorker {
	if cfg.SceneConcurrency <= 0 {
		cfg.SceneConcurrency = 4
	}
	return &GenerateWorker{
		store:        store,
		orchestrator: orch,
		cache:        cache,
		regen:        regen,
		notifier:     notifier,
		cfg:          cfg,
	}
}

// ProcessTask handles one generation run end to end.
func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.GenerateTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid generate payload: %w", err)
	}

	project, err := w.store.GetProject(ctx, payload.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", payload.ProjectID, err)
	}
	log.Printf("Generation started for project %s (%d scenes)", project.ID, len(project.Scenes))

	w.recalcDurations(ctx, project)

	sem := make(chan struct{}, w.cfg.SceneConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for _, sc := range project.Scenes {
		scene := sc
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if w.store.IsCanceled(gctx, project.ID) {
				return nil
			}
			w.processScene(gctx, project, scene)
			return nil
		})
	}
	_ = g.Wait()

	if w.store.IsCanceled(ctx, project.ID) {
		_, err := w.store.UpdateProject(ctx, project.ID, func(p *model.Project) error {
			p.Status = model.ProjectStatusCanceled
			return nil
		})
		log.Printf("Generation canceled for project %s", project.ID)
		return err
	}

	if _, err := w.store.UpdateProject(ctx, project.ID, func(p *model.Project) error {
		p.Status = model.ProjectStatusReady
		return nil
	}); err != nil {
		return fmt.Errorf("finalize project %s: %w", project.ID, err)
	}
	log.Printf("Generation complete for project %s", project.ID)
	return nil
}

// recalcDurations fills in missing scene durations from the narration
// length, so the chunk planner always sees a concrete timeline.
func (w *GenerateWorker) recalcDurations(ctx context.Context, project *model.Project) {
	changed := false
	for _, sc := range project.Scenes {
		if sc.DurationSeconds > 0 {
			continue
		}
		if sc.Narration != "" {
			sc.DurationSeconds = client.EstimateSpeechSeconds(sc.Narration, w.cfg.WordsPerSecond)
		} else {
			sc.DurationSeconds = 5
		}
		changed = true
	}
	if !changed {
		return
	}
	durations := make(map[string]float64, len(project.Scenes))
	for _, sc := range project.Scenes {
		durations[sc.ID] = sc.DurationSeconds
	}
	if _, err := w.store.UpdateProject(ctx, project.ID, func(p *model.Project) error {
		for _, sc := range p.Scenes {
			if sc.DurationSeconds <= 0 {
				sc.DurationSeconds = durations[sc.ID]
			}
		}
		return nil
	}); err != nil {
		log.Printf("Failed to persist recalculated durations for project %s: %v", project.ID, err)
	}
}

// kindsForScene decides which asset kinds a scene needs.
func kindsForScene(scene *model.Scene) []model.AssetKind {
	var kinds []model.AssetKind
	if scene.SceneType == "video" {
		kinds = append(kinds, model.AssetKindVideo)
	} else {
		kinds = append(kinds, model.AssetKindImage)
	}
	if scene.Narration != "" {
		kinds = append(kinds, model.AssetKindVoice)
	}
	if scene.SceneType == "music" {
		kinds = append(kinds, model.AssetKindMusic)
	}
	return kinds
}

// processScene generates every kind the scene needs, kinds in parallel,
// then runs the quality loop over the primary visual. Kind goroutines
// never mutate the shared scene record: every write goes through the
// store, and the quality loop works on a fresh read of the scene.
func (w *GenerateWorker) processScene(ctx context.Context, project *model.Project, scene *model.Scene) {
	var kg errgroup.Group
	for _, kind := range kindsForScene(scene) {
		k := kind
		kg.Go(func() error {
			w.generateKind(ctx, project, scene, k)
			return nil
		})
	}
	_ = kg.Wait()

	if w.store.IsCanceled(ctx, project.ID) {
		return
	}

	updated, err := w.store.GetScene(ctx, project.ID, scene.ID)
	if err != nil {
		log.Printf("Failed to reload scene %s before review: %v", scene.ID, err)
		updated = scene
	}

	if err := w.regen.ReviewScene(ctx, project, updated); err != nil {
		log.Printf("Quality loop failed for scene %s: %v", scene.ID, err)
	}
}

// generateKind produces and caches one asset. On provider exhaustion
// the scene keeps no asset for the kind and is flagged for review when
// the kind is its visual.
func (w *GenerateWorker) generateKind(ctx context.Context, project *model.Project, scene *model.Scene, kind model.AssetKind) {
	prompt := promptFor(scene, kind)

	outcome, err := w.orchestrator.Generate(ctx, scene, kind, prompt, project.AspectRatio, 0)
	if err != nil {
		log.Printf("Generation failed for scene %s kind %s: %v", scene.ID, kind, err)
		if errors.Is(err, service.ErrProviderExhausted) && isVisual(kind) {
			w.flagScene(ctx, project.ID, scene)
		}
		return
	}
	if w.notifier != nil {
		w.notifier.SceneGenerated(project.ID, scene.ID, scene.Order, kind)
	}

	cached, err := w.cache.EnsureReady(ctx, outcome.Asset, outcome.Bytes, outcome.ContentType)
	if err != nil {
		log.Printf("Caching failed for scene %s kind %s: %v", scene.ID, kind, err)
	}

	if w.store.IsCanceled(ctx, project.ID) {
		// Canceled while generating: discard the result.
		return
	}

	if _, err := w.store.UpdateScene(ctx, project.ID, scene.ID, func(sc *model.Scene) error {
		sc.SetAsset(cached)
		return nil
	}); err != nil {
		log.Printf("Failed to persist asset for scene %s: %v", scene.ID, err)
	}

	if cached.Ready && w.notifier != nil {
		w.notifier.SceneCached(project.ID, scene.ID, scene.Order, kind)
	}
}

func (w *GenerateWorker) flagScene(ctx context.Context, projectID string, scene *model.Scene) {
	if _, err := w.store.UpdateScene(ctx, projectID, scene.ID, func(sc *model.Scene) error {
		sc.ReviewStatus = model.SceneReviewNeeded
		return nil
	}); err != nil {
		log.Printf("Failed to flag scene %s for review: %v", scene.ID, err)
	}
}

func isVisual(kind model.AssetKind) bool {
	return kind == model.AssetKindImage || kind == model.AssetKindVideo
}

func promptFor(scene *model.Scene, kind model.AssetKind) string {
	switch kind {
	case model.AssetKindVoice:
		return scene.Narration
	case model.AssetKindMusic, model.AssetKindSoundEffect:
		return fmt.Sprintf("Background audio for a scene showing: %s", scene.VisualDirection)
	default:
		return scene.VisualDirection
	}
}
