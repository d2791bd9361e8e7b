package service

import (
	"math"

	"github.com/storyreel/api/internal/model"
)

// PlanChunks partitions the timeline into render chunks whose boundaries
// always fall on scene boundaries. If the total duration fits the
// single-invocation render budget (thresholdSeconds) one chunk covers
// everything; otherwise scenes accumulate greedily until adding the next
// scene would exceed maxChunkSeconds, and a new chunk starts. A scene is
// never split across chunks.
//
// Frame numbers come from cumulative scene durations rounded at the
// fixed frame rate, so chunk[i].EndFrame == chunk[i+1].StartFrame holds
// exactly: zero gap, zero overlap, no visible seam after concatenation.
func PlanChunks(scenes []*model.Scene, thresholdSeconds, maxChunkSeconds float64, fps int) []model.RenderChunk {
	if len(scenes) == 0 {
		return nil
	}

	// Cumulative frame boundary after each scene.
	boundaries := make([]int, len(scenes)+1)
	var cum float64
	for i, sc := range scenes {
		cum += sc.DurationSeconds
		boundaries[i+1] = int(math.Round(cum * float64(fps)))
	}
	total := cum

	newChunk := func(index, sceneStart, sceneEnd int) model.RenderChunk {
		var dur float64
		for _, sc := range scenes[sceneStart:sceneEnd] {
			dur += sc.DurationSeconds
		}
		return model.RenderChunk{
			Index:           index,
			SceneStart:      sceneStart,
			SceneEnd:        sceneEnd,
			StartFrame:      boundaries[sceneStart],
			EndFrame:        boundaries[sceneEnd],
			DurationSeconds: dur,
			Status:          model.ChunkStatusPending,
		}
	}

	if total <= thresholdSeconds {
		return []model.RenderChunk{newChunk(0, 0, len(scenes))}
	}

	var chunks []model.RenderChunk
	start := 0
	var chunkDur float64
	for i, sc := range scenes {
		if i > start && chunkDur+sc.DurationSeconds > maxChunkSeconds {
			chunks = append(chunks, newChunk(len(chunks), start, i))
			start = i
			chunkDur = 0
		}
		chunkDur += sc.DurationSeconds
	}
	chunks = append(chunks, newChunk(len(chunks), start, len(scenes)))

	return chunks
}
