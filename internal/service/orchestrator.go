package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
)

// ErrProviderExhausted is surfaced when every candidate provider failed
// for a scene asset. It is not fatal to the project: the scene's asset
// for that kind stays absent and a downstream substitute is used.
var ErrProviderExhausted = errors.New("all providers exhausted")

// GenerationOutcome pairs a new asset record with provider-returned
// bytes for providers that stream output instead of hosting it. Bytes
// are handed straight to the asset cache.
type GenerationOutcome struct {
	Asset       *model.Asset
	Bytes       []byte
	ContentType string
}

// ProviderOrchestrator selects a provider for each generation request,
// retries with the next provider in the preference ordering on
// retryable failure, and records every attempt on the scene.
type ProviderOrchestrator struct {
	providers    []client.ProviderClient // preference order
	store        *ProjectStore
	maxFallbacks int
}

// NewProviderOrchestrator creates an orchestrator over the given
// providers, listed in preference order.
func NewProviderOrchestrator(store *ProjectStore, maxFallbacks int, providers ...client.ProviderClient) *ProviderOrchestrator {
	if maxFallbacks <= 0 {
		maxFallbacks = 3
	}
	return &ProviderOrchestrator{
		providers:    providers,
		store:        store,
		maxFallbacks: maxFallbacks,
	}
}

// candidatesFor returns the configured providers able to produce kind,
// capped at maxFallbacks, in preference order.
func (o *ProviderOrchestrator) candidatesFor(kind model.AssetKind) []client.ProviderClient {
	var out []client.ProviderClient
	for _, p := range o.providers {
		if p.Supports(kind) && p.IsConfigured() {
			out = append(out, p)
		}
		if len(out) == o.maxFallbacks {
			break
		}
	}
	return out
}

// Generate produces one asset for a scene. attemptRound is 0 for the
// first pass and increments per regeneration; it is recorded on every
// attempt so the history reads in order.
func (o *ProviderOrchestrator) Generate(ctx context.Context, scene *model.Scene, kind model.AssetKind, prompt, aspectRatio string, attemptRound int) (*GenerationOutcome, error) {
	candidates := o.candidatesFor(kind)
	if len(candidates) == 0 {
		// No provider configured for this kind: mock for development
		return o.generateMock(scene, kind), nil
	}

	req := &client.GenerateRequest{
		Prompt:          prompt,
		DurationSeconds: scene.DurationSeconds,
		AspectRatio:     aspectRatio,
		Kind:            kind,
	}

	var lastErr error
	for _, p := range candidates {
		started := time.Now()
		result, err := p.Generate(ctx, req)
		latency := time.Since(started)

		attempt := model.ProviderAttempt{
			ID:         uuid.New().String(),
			ProviderID: p.ID(),
			Kind:       kind,
			Prompt:     prompt,
			Attempt:    attemptRound,
			Success:    err == nil,
			LatencyMs:  latency.Milliseconds(),
			StartedAt:  started,
		}

		if err != nil {
			var pErr *client.ProviderError
			if errors.As(err, &pErr) {
				attempt.ErrorClass = pErr.Class
			}
			attempt.Error = err.Error()
		}

		o.recordAttempt(ctx, scene, attempt)

		if err == nil {
			asset := &model.Asset{
				ID:              uuid.New().String(),
				SceneID:         scene.ID,
				Kind:            kind,
				URI:             result.AssetURL,
				Origin:          model.OriginGenerated,
				Ready:           false,
				DurationSeconds: result.DurationSeconds,
				ProviderID:      p.ID(),
				CreatedAt:       time.Now(),
			}
			log.Printf("Generated %s for scene %s via %s in %s", kind, scene.ID, p.ID(), latency)
			return &GenerationOutcome{
				Asset:       asset,
				Bytes:       result.AssetBytes,
				ContentType: result.ContentType,
			}, nil
		}

		lastErr = err
		log.Printf("Provider %s failed for scene %s kind %s: %v", p.ID(), scene.ID, kind, err)

		var pErr *client.ProviderError
		if errors.As(err, &pErr) && !pErr.Retryable {
			// Permanent failure (e.g. the prompt itself was rejected):
			// the next provider would reject it too.
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: kind %s scene %s: %v", ErrProviderExhausted, kind, scene.ID, lastErr)
}

// generateMock returns a placeholder asset for development when no
// provider is configured for the kind.
func (o *ProviderOrchestrator) generateMock(scene *model.Scene, kind model.AssetKind) *GenerationOutcome {
	log.Printf("No configured provider for kind %s, using mock asset for scene %s", kind, scene.ID)
	return &GenerationOutcome{
		Asset: &model.Asset{
			ID:              uuid.New().String(),
			SceneID:         scene.ID,
			Kind:            kind,
			URI:             fmt.Sprintf("https://mock.storyreel.dev/%s/%s", kind, scene.ID),
			Origin:          model.OriginGenerated,
			Ready:           true,
			DurationSeconds: scene.DurationSeconds,
			ProviderID:      "mock",
			CreatedAt:       time.Now(),
		},
	}
}

// recordAttempt appends to the scene's attempt history. With a store
// the write goes through UpdateScene only: the caller's scene record
// may be shared across goroutines and is never mutated here.
func (o *ProviderOrchestrator) recordAttempt(ctx context.Context, scene *model.Scene, attempt model.ProviderAttempt) {
	if o.store == nil {
		scene.Attempts = append(scene.Attempts, attempt)
		return
	}
	if _, err := o.store.UpdateScene(ctx, scene.ProjectID, scene.ID, func(sc *model.Scene) error {
		sc.Attempts = append(sc.Attempts, attempt)
		return nil
	}); err != nil {
		log.Printf("Failed to record attempt for scene %s: %v", scene.ID, err)
	}
}
