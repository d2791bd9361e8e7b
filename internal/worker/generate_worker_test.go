package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
)

// fakeProvider is a scriptable ProviderClient for worker tests.
type fakeProvider struct {
	id    string
	kinds []model.AssetKind

	mu    sync.Mutex
	calls int
}

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) Supports(kind model.AssetKind) bool {
	for _, k := range p.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (p *fakeProvider) Generate(ctx context.Context, req *client.GenerateRequest) (*client.GenerateResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return &client.GenerateResult{
		AssetURL: fmt.Sprintf("https://%s.example.com/%s.bin", p.id, req.Kind),
	}, nil
}

func (p *fakeProvider) IsConfigured() bool { return true }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// testWorker wires a generation worker against miniredis with the real
// orchestrator, cache, and quality loop. The vision client is left
// unconfigured so analysis takes the mock-approval path.
func testWorker(t *testing.T, providers ...client.ProviderClient) (*GenerateWorker, *service.ProjectStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := service.NewProjectStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	orch := service.NewProviderOrchestrator(store, 3, providers...)
	cache := service.NewAssetCache(nil, time.Second, time.Second)
	analyzer := service.NewQualityAnalyzer(client.NewVisionClient(&config.VisionConfig{}), nil, config.QualityConfig{
		WeightTechnical:     20,
		WeightContent:       30,
		WeightCompliance:    30,
		WeightComposition:   20,
		ApproveThreshold:    85,
		ReviewThreshold:     70,
		RegenerateThreshold: 50,
	})
	regen := service.NewRegenerationLoop(orch, cache, analyzer, store, nil, 2)

	w := NewGenerateWorker(store, orch, cache, regen, nil, config.PipelineConfig{
		SceneConcurrency: 2,
		WordsPerSecond:   2.5,
	})
	return w, store
}

func workerProject() *model.Project {
	return &model.Project{
		ID:          "p1",
		Status:      model.ProjectStatusGenerating,
		AspectRatio: "16:9",
		Scenes: []*model.Scene{
			{ID: "s1", ProjectID: "p1", Order: 0, SceneType: "image", Narration: "a fox crosses the river", VisualDirection: "a red fox mid-leap", DurationSeconds: 10},
			{ID: "s2", ProjectID: "p1", Order: 1, SceneType: "video", VisualDirection: "waves crashing", DurationSeconds: 15},
		},
	}
}

func TestProcessTaskGeneratesAndPersistsAllKinds(t *testing.T) {
	visual := &fakeProvider{id: "visual", kinds: []model.AssetKind{model.AssetKindImage, model.AssetKindVideo}}
	voice := &fakeProvider{id: "voice", kinds: []model.AssetKind{model.AssetKindVoice}}
	w, store := testWorker(t, visual, voice)
	ctx := context.Background()

	if err := store.SaveProject(ctx, workerProject()); err != nil {
		t.Fatalf("save: %v", err)
	}

	task, err := service.NewGenerateTask("p1")
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if err := w.ProcessTask(ctx, task); err != nil {
		t.Fatalf("process: %v", err)
	}

	project, err := store.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if project.Status != model.ProjectStatusReady {
		t.Errorf("expected ready, got %s", project.Status)
	}

	// Narrated image scene: image and voice generated concurrently,
	// both persisted through the store.
	s1 := project.Scenes[0]
	for _, kind := range []model.AssetKind{model.AssetKindImage, model.AssetKindVoice} {
		asset := s1.ActiveAsset(kind)
		if asset == nil || !asset.Ready {
			t.Errorf("scene s1 missing ready %s asset: %+v", kind, asset)
		}
	}
	if len(s1.Attempts) != 2 {
		t.Errorf("expected 2 recorded attempts on s1, got %d", len(s1.Attempts))
	}
	if s1.Analysis == nil || s1.Analysis.Recommendation != model.RecommendationApproved {
		t.Errorf("expected approved analysis on s1, got %+v", s1.Analysis)
	}

	s2 := project.Scenes[1]
	if asset := s2.ActiveAsset(model.AssetKindVideo); asset == nil || !asset.Ready {
		t.Errorf("scene s2 missing ready video asset: %+v", asset)
	}

	if visual.callCount() != 2 || voice.callCount() != 1 {
		t.Errorf("unexpected provider calls: visual=%d voice=%d", visual.callCount(), voice.callCount())
	}
}

func TestProcessSceneKeepsSharedSceneUntouchedAcrossKinds(t *testing.T) {
	visual := &fakeProvider{id: "visual", kinds: []model.AssetKind{model.AssetKindImage}}
	voice := &fakeProvider{id: "voice", kinds: []model.AssetKind{model.AssetKindVoice}}
	music := &fakeProvider{id: "music", kinds: []model.AssetKind{model.AssetKindMusic}}
	w, store := testWorker(t, visual, voice, music)
	ctx := context.Background()

	project := workerProject()
	// Three kinds on one scene: image, voice, and music each run in
	// their own goroutine.
	project.Scenes[0].SceneType = "music"
	if err := store.SaveProject(ctx, project); err != nil {
		t.Fatalf("save: %v", err)
	}
	scene := project.Scenes[0]

	w.processScene(ctx, project, scene)

	// The caller's record is only ever read: kind goroutines write
	// through the store exclusively.
	if len(scene.Assets) != 0 {
		t.Errorf("shared scene record mutated during fan-out: %+v", scene.Assets)
	}

	stored, err := store.GetScene(ctx, "p1", "s1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	for _, kind := range []model.AssetKind{model.AssetKindImage, model.AssetKindVoice, model.AssetKindMusic} {
		if asset := stored.ActiveAsset(kind); asset == nil || !asset.Ready {
			t.Errorf("stored scene missing ready %s asset: %+v", kind, asset)
		}
	}
	if len(stored.Attempts) != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", len(stored.Attempts))
	}
}

func TestProcessTaskCanceledRunKeepsScenesUntouched(t *testing.T) {
	visual := &fakeProvider{id: "visual", kinds: []model.AssetKind{model.AssetKindImage, model.AssetKindVideo}}
	w, store := testWorker(t, visual)
	ctx := context.Background()

	if err := store.SaveProject(ctx, workerProject()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.MarkCanceled(ctx, "p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	task, err := service.NewGenerateTask("p1")
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if err := w.ProcessTask(ctx, task); err != nil {
		t.Fatalf("process: %v", err)
	}

	project, err := store.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if project.Status != model.ProjectStatusCanceled {
		t.Errorf("expected canceled, got %s", project.Status)
	}
	for _, sc := range project.Scenes {
		if len(sc.Assets) != 0 {
			t.Errorf("scene %s should have no assets after cancel, got %+v", sc.ID, sc.Assets)
		}
	}
}

func TestGenerateKindDiscardsResultWhenCanceledMidFlight(t *testing.T) {
	visual := &fakeProvider{id: "visual", kinds: []model.AssetKind{model.AssetKindImage}}
	w, store := testWorker(t, visual)
	ctx := context.Background()

	project := workerProject()
	if err := store.SaveProject(ctx, project); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.MarkCanceled(ctx, "p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	w.generateKind(ctx, project, project.Scenes[0], model.AssetKindImage)

	if visual.callCount() != 1 {
		t.Fatalf("expected generation to run before the cancel check, got %d calls", visual.callCount())
	}
	stored, err := store.GetScene(ctx, "p1", "s1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.ActiveAsset(model.AssetKindImage) != nil {
		t.Error("canceled result must be discarded, not persisted")
	}
}

func TestKindsForScene(t *testing.T) {
	tests := []struct {
		name  string
		scene *model.Scene
		want  []model.AssetKind
	}{
		{
			name:  "image scene",
			scene: &model.Scene{SceneType: "image"},
			want:  []model.AssetKind{model.AssetKindImage},
		},
		{
			name:  "video scene",
			scene: &model.Scene{SceneType: "video"},
			want:  []model.AssetKind{model.AssetKindVideo},
		},
		{
			name:  "narrated image scene",
			scene: &model.Scene{SceneType: "image", Narration: "once upon a time"},
			want:  []model.AssetKind{model.AssetKindImage, model.AssetKindVoice},
		},
		{
			name:  "music scene",
			scene: &model.Scene{SceneType: "music"},
			want:  []model.AssetKind{model.AssetKindImage, model.AssetKindMusic},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kindsForScene(tt.scene)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestPromptForUsesNarrationForVoice(t *testing.T) {
	scene := &model.Scene{
		Narration:       "the fox crossed the river",
		VisualDirection: "a red fox mid-leap over water",
	}

	if got := promptFor(scene, model.AssetKindVoice); got != scene.Narration {
		t.Errorf("voice prompt should be the narration, got %q", got)
	}
	if got := promptFor(scene, model.AssetKindImage); got != scene.VisualDirection {
		t.Errorf("image prompt should be the visual direction, got %q", got)
	}
	if got := promptFor(scene, model.AssetKindVideo); got != scene.VisualDirection {
		t.Errorf("video prompt should be the visual direction, got %q", got)
	}
}

func TestPromptForAudioKinds(t *testing.T) {
	scene := &model.Scene{VisualDirection: "a door slams shut"}
	want := "Background audio for a scene showing: a door slams shut"

	if got := promptFor(scene, model.AssetKindMusic); got != want {
		t.Errorf("music prompt: expected %q, got %q", want, got)
	}
	if got := promptFor(scene, model.AssetKindSoundEffect); got != want {
		t.Errorf("sound effect prompt: expected %q, got %q", want, got)
	}
}
