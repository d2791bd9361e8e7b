package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// renderRecorder captures render progress notifications.
type renderRecorder struct {
	mu       sync.Mutex
	rendered []int
	complete int
	failed   [][]int
}

func (r *renderRecorder) ChunkRendered(jobID string, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, index)
}

func (r *renderRecorder) JobComplete(jobID, outputURI string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete++
}

func (r *renderRecorder) JobFailed(jobID string, failedChunks []int, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, failedChunks)
}

func testRenderConfig() config.RenderConfig {
	return config.RenderConfig{
		CompositionID:    "test-comp",
		FPS:              30,
		ChunkConcurrency: 2,
		ChunkRetries:     2,
	}
}

// renderProject builds a project whose scenes all carry ready visuals,
// plus a job planned into one chunk per scene.
func renderProject(durations ...float64) (*model.Project, *model.RenderJob) {
	project := &model.Project{ID: "p1", AspectRatio: "16:9"}
	for i, d := range durations {
		scene := &model.Scene{
			ID:              fmt.Sprintf("s%d", i),
			ProjectID:       "p1",
			Order:           i,
			DurationSeconds: d,
			SceneType:       "image",
			VisualDirection: "scene visual",
		}
		scene.SetAsset(&model.Asset{
			ID:    fmt.Sprintf("a%d", i),
			Kind:  model.AssetKindImage,
			URI:   fmt.Sprintf("https://cdn.test/assets/a%d.png", i),
			Ready: true,
		})
		project.Scenes = append(project.Scenes, scene)
	}

	job := &model.RenderJob{
		ID:        "job1",
		ProjectID: "p1",
		Status:    model.RenderJobQueued,
		Chunks:    PlanChunks(project.Scenes, 1, 1, 30), // one chunk per scene
		FPS:       30,
		CreatedAt: time.Now(),
	}
	return project, job
}

func TestCoordinatorRendersAndConcatenatesInOrder(t *testing.T) {
	var concatURLs []string
	renderer := &fakeRenderer{
		concatFn: func(req *client.ConcatRequest) (*client.ConcatResponse, error) {
			concatURLs = req.ChunkURLs
			return &client.ConcatResponse{OutputURL: "https://cdn.test/" + req.OutputKey, Duration: 65, Size: 1024}, nil
		},
	}
	recorder := &renderRecorder{}
	coord := NewRenderCoordinator(renderer, nil, recorder, testRenderConfig())
	project, job := renderProject(20, 25, 20)

	if err := coord.Render(context.Background(), project, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != model.RenderJobSucceeded {
		t.Errorf("expected succeeded, got %s", job.Status)
	}
	if job.OutputURI == "" {
		t.Error("final output URI must be set")
	}
	if len(concatURLs) != 3 {
		t.Fatalf("expected 3 chunk URLs in concat, got %d", len(concatURLs))
	}
	for i, url := range concatURLs {
		want := fmt.Sprintf("chunks/job1/%04d.mp4", i)
		if url != "https://cdn.test/"+want {
			t.Errorf("concat URL %d out of order: %s", i, url)
		}
	}
	if recorder.complete != 1 {
		t.Errorf("expected 1 job.complete event, got %d", recorder.complete)
	}
	if len(recorder.rendered) != 3 {
		t.Errorf("expected 3 chunk events, got %d", len(recorder.rendered))
	}
}

func TestCoordinatorChunkFailureKeepsSiblingOutputs(t *testing.T) {
	project, job := renderProject(20, 25, 20)
	failStart := job.Chunks[2].StartFrame

	renderer := &fakeRenderer{
		renderFn: func(req *client.RenderChunkRequest) (*client.RenderChunkResponse, error) {
			if req.StartFrame == failStart {
				return nil, fmt.Errorf("render function crashed")
			}
			return &client.RenderChunkResponse{OutputURL: "https://cdn.test/" + req.OutputKey}, nil
		},
	}
	recorder := &renderRecorder{}
	coord := NewRenderCoordinator(renderer, nil, recorder, testRenderConfig())

	err := coord.Render(context.Background(), project, job)
	if err == nil {
		t.Fatal("expected job-level error")
	}

	if job.Status != model.RenderJobFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	if len(job.FailedChunkIndices) != 1 || job.FailedChunkIndices[0] != 2 {
		t.Errorf("expected failed chunks [2], got %v", job.FailedChunkIndices)
	}
	if job.OutputURI != "" {
		t.Error("partial output must never be published")
	}
	if renderer.concatCalls != 0 {
		t.Errorf("concat must not run with failed chunks, got %d calls", renderer.concatCalls)
	}

	// Successful siblings keep their outputs for a cheaper re-run.
	for _, idx := range []int{0, 1} {
		if job.Chunks[idx].Status != model.ChunkStatusDone {
			t.Errorf("chunk %d should be done, got %s", idx, job.Chunks[idx].Status)
		}
		if job.Chunks[idx].OutputURI == "" {
			t.Errorf("chunk %d output should be retained", idx)
		}
	}
	if job.Chunks[2].Error == "" {
		t.Error("failed chunk must record its error")
	}
	if recorder.complete != 0 {
		t.Error("job.complete must not fire on failure")
	}
	if len(recorder.failed) != 1 {
		t.Errorf("expected 1 job.failed event, got %d", len(recorder.failed))
	}
}

func TestCoordinatorRetriesFailedChunk(t *testing.T) {
	var attempts atomic.Int32
	project, job := renderProject(20)

	renderer := &fakeRenderer{
		renderFn: func(req *client.RenderChunkRequest) (*client.RenderChunkResponse, error) {
			if attempts.Add(1) == 1 {
				return nil, fmt.Errorf("transient failure")
			}
			return &client.RenderChunkResponse{OutputURL: "https://cdn.test/" + req.OutputKey}, nil
		},
	}
	coord := NewRenderCoordinator(renderer, nil, &renderRecorder{}, testRenderConfig())

	if err := coord.Render(context.Background(), project, job); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 render attempts, got %d", attempts.Load())
	}
	if job.Status != model.RenderJobSucceeded {
		t.Errorf("expected succeeded, got %s", job.Status)
	}
}

func TestCoordinatorHonorsConcurrencyCap(t *testing.T) {
	var inFlight, peak atomic.Int32
	project, job := renderProject(10, 10, 10, 10, 10, 10)

	renderer := &fakeRenderer{
		renderFn: func(req *client.RenderChunkRequest) (*client.RenderChunkResponse, error) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return &client.RenderChunkResponse{OutputURL: "https://cdn.test/" + req.OutputKey}, nil
		},
	}
	coord := NewRenderCoordinator(renderer, nil, &renderRecorder{}, testRenderConfig())

	if err := coord.Render(context.Background(), project, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("concurrency cap exceeded: peak %d", peak.Load())
	}
}

func TestCoordinatorRejectsUnrenderableScene(t *testing.T) {
	renderer := &fakeRenderer{}
	coord := NewRenderCoordinator(renderer, nil, &renderRecorder{}, testRenderConfig())
	project, job := renderProject(20, 25)
	project.Scenes[1].ActiveAsset(model.AssetKindImage).Ready = false

	err := coord.Render(context.Background(), project, job)
	if err == nil {
		t.Fatal("expected error for unrenderable scene")
	}
	if job.Status != model.RenderJobFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
}

func TestCoordinatorInputPropsCarryFullTimeline(t *testing.T) {
	project, _ := renderProject(20, 25, 20)
	project.Scenes[1].Narration = "and then the tide turned"
	project.Scenes[1].SetAsset(&model.Asset{
		ID: "v1", Kind: model.AssetKindVoice, URI: "https://cdn.test/assets/v1.mp3", Ready: true,
	})

	raw, err := buildInputProps(project)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var props compositionProps
	if err := json.Unmarshal(raw, &props); err != nil {
		t.Fatalf("props should round-trip: %v", err)
	}
	if len(props.Scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(props.Scenes))
	}
	if props.Scenes[1].VoiceURL != "https://cdn.test/assets/v1.mp3" {
		t.Errorf("voice URL missing: %+v", props.Scenes[1])
	}
	if props.AspectRatio != "16:9" {
		t.Errorf("aspect ratio missing: %s", props.AspectRatio)
	}
}
