package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

const sunoProviderID = "suno"

// SunoClient generates background music through the Suno API. Generation
// is task-based: start a task, then poll its status until the hosted
// audio URL is available.
type SunoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	pollInterval time.Duration
	maxWait      time.Duration
}

type sunoGenerateResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type sunoTaskResult struct {
	ID       string  `json:"id"`
	AudioURL string  `json:"audio_url"`
	Duration float64 `json:"duration"`
	Status   string  `json:"status"`
}

// NewSunoClient creates a new Suno API client
func NewSunoClient(cfg *config.SunoConfig) *SunoClient {
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: 5 * time.Second,
		maxWait:      10 * time.Minute,
	}
}

// ID implements ProviderClient
func (c *SunoClient) ID() string { return sunoProviderID }

// Supports implements ProviderClient
func (c *SunoClient) Supports(kind model.AssetKind) bool {
	return kind == model.AssetKindMusic || kind == model.AssetKindSoundEffect
}

// IsConfigured implements ProviderClient
func (c *SunoClient) IsConfigured() bool { return c.apiKey != "" }

// Generate implements ProviderClient
func (c *SunoClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	start, err := c.startTask(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := c.pollTask(ctx, start.TaskID)
	if err != nil {
		return nil, err
	}

	if result.AudioURL == "" {
		return nil, NewProviderError(sunoProviderID, ErrClassMalformed,
			fmt.Errorf("completed task %s has no audio URL", start.TaskID))
	}

	return &GenerateResult{
		AssetURL:        result.AudioURL,
		DurationSeconds: result.Duration,
	}, nil
}

func (c *SunoClient) startTask(ctx context.Context, req *GenerateRequest) (*sunoGenerateResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"prompt":            req.Prompt,
		"make_instrumental": true,
		"duration":          req.DurationSeconds,
	})
	if err != nil {
		return nil, NewProviderError(sunoProviderID, ErrClassProvider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/music/generate", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(sunoProviderID, ErrClassProvider, err)
	}

	var start sunoGenerateResponse
	if err := c.doRequest(httpReq, &start); err != nil {
		return nil, err
	}
	if start.TaskID == "" {
		return nil, NewProviderError(sunoProviderID, ErrClassMalformed,
			fmt.Errorf("generate response missing task_id"))
	}
	return &start, nil
}

// pollTask polls for music generation completion
func (c *SunoClient) pollTask(ctx context.Context, taskID string) (*sunoTaskResult, error) {
	deadline := time.Now().Add(c.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/v1/music/status/%s", c.baseURL, taskID), nil)
		if err != nil {
			return nil, NewProviderError(sunoProviderID, ErrClassProvider, err)
		}

		var result sunoTaskResult
		if err := c.doRequest(httpReq, &result); err != nil {
			return nil, err
		}

		log.Printf("[Suno] Poll #%d (task=%s) — status: %s", attempt, taskID, result.Status)

		switch result.Status {
		case "completed", "success":
			return &result, nil
		case "failed", "error":
			return nil, NewProviderError(sunoProviderID, ErrClassProvider,
				fmt.Errorf("music generation failed: %s", result.Status))
		}

		select {
		case <-ctx.Done():
			return nil, NewProviderError(sunoProviderID, ErrClassTimeout, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}

	return nil, NewProviderError(sunoProviderID, ErrClassTimeout,
		fmt.Errorf("music generation timed out after %v", c.maxWait))
}

func (c *SunoClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Suno] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Suno] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return NewProviderError(sunoProviderID, ErrClassTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewProviderError(sunoProviderID, ErrClassProvider, err)
	}

	log.Printf("[Suno] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewProviderError(sunoProviderID, classifyStatus(resp.StatusCode),
			fmt.Errorf("suno API error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return NewProviderError(sunoProviderID, ErrClassMalformed, err)
	}

	return nil
}
