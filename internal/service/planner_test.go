package service

import (
	"testing"

	"github.com/storyreel/api/internal/model"
)

func scenesWithDurations(durations ...float64) []*model.Scene {
	var scenes []*model.Scene
	for i, d := range durations {
		scenes = append(scenes, &model.Scene{
			ID:              string(rune('a' + i)),
			Order:           i,
			DurationSeconds: d,
		})
	}
	return scenes
}

func TestPlanChunksSingleChunkUnderThreshold(t *testing.T) {
	scenes := scenesWithDurations(10, 15, 20)

	chunks := PlanChunks(scenes, 50, 50, 30)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartFrame != 0 {
		t.Errorf("expected start frame 0, got %d", chunks[0].StartFrame)
	}
	if chunks[0].EndFrame != 45*30 {
		t.Errorf("expected end frame %d, got %d", 45*30, chunks[0].EndFrame)
	}
	if chunks[0].SceneStart != 0 || chunks[0].SceneEnd != 3 {
		t.Errorf("expected scene range [0,3), got [%d,%d)", chunks[0].SceneStart, chunks[0].SceneEnd)
	}
}

func TestPlanChunksSplitsOverThreshold(t *testing.T) {
	// 65s total with a 50s budget: scenes 0-1 fit one chunk (45s), scene
	// 2 starts a new chunk because adding it would exceed the budget.
	scenes := scenesWithDurations(20, 25, 20)

	chunks := PlanChunks(scenes, 50, 50, 30)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].SceneStart != 0 || chunks[0].SceneEnd != 2 {
		t.Errorf("chunk 0: expected scenes [0,2), got [%d,%d)", chunks[0].SceneStart, chunks[0].SceneEnd)
	}
	if chunks[0].DurationSeconds != 45 {
		t.Errorf("chunk 0: expected 45s, got %v", chunks[0].DurationSeconds)
	}
	if chunks[1].SceneStart != 2 || chunks[1].SceneEnd != 3 {
		t.Errorf("chunk 1: expected scenes [2,3), got [%d,%d)", chunks[1].SceneStart, chunks[1].SceneEnd)
	}
	if chunks[1].DurationSeconds != 20 {
		t.Errorf("chunk 1: expected 20s, got %v", chunks[1].DurationSeconds)
	}
}

func TestPlanChunksFrameBoundariesAreContiguous(t *testing.T) {
	// Fractional durations stress the rounding: consecutive chunks must
	// still share the exact boundary frame.
	scenes := scenesWithDurations(7.3, 12.7, 18.1, 9.9, 22.4, 14.6)

	chunks := PlanChunks(scenes, 30, 30, 30)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0].StartFrame != 0 {
		t.Errorf("first chunk must start at frame 0, got %d", chunks[0].StartFrame)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartFrame != chunks[i-1].EndFrame {
			t.Errorf("gap between chunk %d (end %d) and chunk %d (start %d)",
				i-1, chunks[i-1].EndFrame, i, chunks[i].StartFrame)
		}
	}
}

func TestPlanChunksNeverSplitsScenes(t *testing.T) {
	// A single scene longer than the chunk budget still gets one chunk.
	scenes := scenesWithDurations(10, 80, 10)

	chunks := PlanChunks(scenes, 50, 50, 30)

	for _, chunk := range chunks {
		if chunk.SceneEnd <= chunk.SceneStart {
			t.Errorf("chunk %d has empty scene range [%d,%d)", chunk.Index, chunk.SceneStart, chunk.SceneEnd)
		}
	}
	covered := 0
	for _, chunk := range chunks {
		if chunk.SceneStart != covered {
			t.Errorf("chunk %d starts at scene %d, expected %d", chunk.Index, chunk.SceneStart, covered)
		}
		covered = chunk.SceneEnd
	}
	if covered != len(scenes) {
		t.Errorf("chunks cover %d scenes, expected %d", covered, len(scenes))
	}
}

func TestPlanChunksEmptyTimeline(t *testing.T) {
	if chunks := PlanChunks(nil, 50, 50, 30); chunks != nil {
		t.Errorf("expected nil for empty timeline, got %d chunks", len(chunks))
	}
}
