package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// RenderNotifier receives render progress events. Satisfied by the
// WebSocket hub.
type RenderNotifier interface {
	ChunkRendered(jobID string, index int)
	JobComplete(jobID, outputURI string)
	JobFailed(jobID string, failedChunks []int, errMsg string)
}

// RenderCoordinator drives a render job: it fans chunks out to the
// remote render function under a concurrency cap, retries failed chunks,
// and concatenates the outputs in strict index order. A chunk failure
// never cancels its siblings; their outputs are kept for a cheaper
// partial re-run.
type RenderCoordinator struct {
	renderer client.ChunkRenderer
	store    *ProjectStore
	notifier RenderNotifier
	cfg      config.RenderConfig
}

// NewRenderCoordinator wires the coordinator.
func NewRenderCoordinator(renderer client.ChunkRenderer, store *ProjectStore, notifier RenderNotifier, cfg config.RenderConfig) *RenderCoordinator {
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 2
	}
	return &RenderCoordinator{
		renderer: renderer,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
	}
}

// sceneProps is the per-scene slice of the composition input handed to
// the render function. Every chunk receives the full timeline; the
// frame range selects what it actually renders, so chunk boundaries
// carry no per-chunk state and the joined output is seamless.
type sceneProps struct {
	Order           int     `json:"order"`
	DurationSeconds float64 `json:"durationSeconds"`
	SceneType       string  `json:"sceneType"`
	Narration       string  `json:"narration,omitempty"`
	VisualURL       string  `json:"visualUrl"`
	VoiceURL        string  `json:"voiceUrl,omitempty"`
	MusicURL        string  `json:"musicUrl,omitempty"`
}

type compositionProps struct {
	ProjectID   string       `json:"projectId"`
	AspectRatio string       `json:"aspectRatio"`
	Scenes      []sceneProps `json:"scenes"`
}

// buildInputProps assembles the composition input. It refuses scenes
// whose visual never reached fast storage; the render worker is
// responsible for degrading those before a job is started.
func buildInputProps(project *model.Project) (json.RawMessage, error) {
	props := compositionProps{
		ProjectID:   project.ID,
		AspectRatio: project.AspectRatio,
	}
	for _, sc := range project.Scenes {
		visual := sc.PrimaryVisual()
		if visual == nil || !visual.Ready {
			return nil, fmt.Errorf("scene %d has no renderable visual", sc.Order)
		}
		sp := sceneProps{
			Order:           sc.Order,
			DurationSeconds: sc.DurationSeconds,
			SceneType:       sc.SceneType,
			Narration:       sc.Narration,
			VisualURL:       visual.URI,
		}
		if voice := sc.ActiveAsset(model.AssetKindVoice); voice != nil && voice.Ready {
			sp.VoiceURL = voice.URI
		}
		if music := sc.ActiveAsset(model.AssetKindMusic); music != nil && music.Ready {
			sp.MusicURL = music.URI
		}
		props.Scenes = append(props.Scenes, sp)
	}
	return json.Marshal(props)
}

// Render executes the job to completion. The job record in the store is
// the source of truth; the returned error reflects job-level failure
// after all chunks have settled.
func (c *RenderCoordinator) Render(ctx context.Context, project *model.Project, job *model.RenderJob) error {
	inputProps, err := buildInputProps(project)
	if err != nil {
		c.failJob(ctx, job, nil, err.Error())
		return err
	}

	now := time.Now()
	c.updateJob(ctx, job, func(j *model.RenderJob) {
		j.Status = model.RenderJobRunning
		j.StartedAt = &now
	})

	sem := make(chan struct{}, c.cfg.ChunkConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]model.RenderChunk, len(job.Chunks))
	copy(results, job.Chunks)

	for i := range job.Chunks {
		if c.store != nil && c.store.IsCanceled(ctx, project.ID) {
			break
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			chunk := c.renderChunkWithRetry(ctx, job, results[idx], inputProps)

			mu.Lock()
			results[idx] = chunk
			mu.Unlock()

			c.updateJob(ctx, job, func(j *model.RenderJob) {
				j.Chunks[idx] = chunk
			})
			if chunk.Status == model.ChunkStatusDone && c.notifier != nil {
				c.notifier.ChunkRendered(job.ID, chunk.Index)
			}
		}(i)
	}
	wg.Wait()

	if c.store != nil && c.store.IsCanceled(ctx, project.ID) {
		c.updateJob(ctx, job, func(j *model.RenderJob) {
			j.Status = model.RenderJobCanceled
		})
		return nil
	}

	var failed []int
	for _, chunk := range results {
		if chunk.Status != model.ChunkStatusDone {
			failed = append(failed, chunk.Index)
		}
	}
	if len(failed) > 0 {
		sort.Ints(failed)
		msg := fmt.Sprintf("%d of %d chunks failed", len(failed), len(results))
		c.failJob(ctx, job, failed, msg)
		return fmt.Errorf("render job %s: %s", job.ID, msg)
	}

	// Strict index order; the join is container-level and lossless.
	chunkURLs := make([]string, len(results))
	for _, chunk := range results {
		chunkURLs[chunk.Index] = chunk.OutputURI
	}
	outputKey := fmt.Sprintf("outputs/%s/%s.mp4", project.ID, job.ID)
	concat, err := c.renderer.Concat(ctx, &client.ConcatRequest{
		ChunkURLs: chunkURLs,
		OutputKey: outputKey,
	})
	if err != nil {
		c.failJob(ctx, job, nil, fmt.Sprintf("concat failed: %v", err))
		return fmt.Errorf("render job %s: concat failed: %w", job.ID, err)
	}

	done := time.Now()
	c.updateJob(ctx, job, func(j *model.RenderJob) {
		j.Status = model.RenderJobSucceeded
		j.OutputURI = concat.OutputURL
		j.OutputKey = outputKey
		j.CompletedAt = &done
	})
	if c.notifier != nil {
		c.notifier.JobComplete(job.ID, concat.OutputURL)
	}
	log.Printf("Render job %s complete: %d chunks, %.1fs, %d bytes", job.ID, len(results), concat.Duration, concat.Size)
	return nil
}

// renderChunkWithRetry runs one chunk with up to cfg.ChunkRetries
// retries after the first attempt.
func (c *RenderCoordinator) renderChunkWithRetry(ctx context.Context, job *model.RenderJob, chunk model.RenderChunk, inputProps json.RawMessage) model.RenderChunk {
	chunk.Status = model.ChunkStatusRendering

	attempts := c.cfg.ChunkRetries + 1
	var lastErr error
	for try := 0; try < attempts; try++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		chunk.Retries = try

		resp, err := c.renderer.RenderChunk(ctx, &client.RenderChunkRequest{
			CompositionID: c.cfg.CompositionID,
			InputProps:    inputProps,
			StartFrame:    chunk.StartFrame,
			EndFrame:      chunk.EndFrame,
			FPS:           job.FPS,
			OutputKey:     fmt.Sprintf("chunks/%s/%04d.mp4", job.ID, chunk.Index),
		})
		if err == nil {
			chunk.Status = model.ChunkStatusDone
			chunk.OutputURI = resp.OutputURL
			chunk.Error = ""
			log.Printf("Chunk %d of job %s rendered (frames %d-%d, try %d)", chunk.Index, job.ID, chunk.StartFrame, chunk.EndFrame, try+1)
			return chunk
		}

		lastErr = err
		log.Printf("Chunk %d of job %s failed on try %d: %v", chunk.Index, job.ID, try+1, err)
	}

	chunk.Status = model.ChunkStatusFailed
	if lastErr != nil {
		chunk.Error = lastErr.Error()
	}
	return chunk
}

func (c *RenderCoordinator) updateJob(ctx context.Context, job *model.RenderJob, fn func(*model.RenderJob)) {
	fn(job)
	if c.store == nil {
		return
	}
	if _, err := c.store.UpdateRenderJob(ctx, job.ID, func(j *model.RenderJob) error {
		fn(j)
		return nil
	}); err != nil {
		log.Printf("Failed to persist render job %s: %v", job.ID, err)
	}
}

func (c *RenderCoordinator) failJob(ctx context.Context, job *model.RenderJob, failed []int, msg string) {
	done := time.Now()
	c.updateJob(ctx, job, func(j *model.RenderJob) {
		j.Status = model.RenderJobFailed
		j.FailedChunkIndices = failed
		j.Error = msg
		j.CompletedAt = &done
	})
	if c.notifier != nil {
		c.notifier.JobFailed(job.ID, failed, msg)
	}
}
