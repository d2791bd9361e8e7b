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

const replicateProviderID = "replicate"

// ReplicateClient generates images and video through the Replicate
// predictions API. Predictions are asynchronous: create, then poll
// until a terminal status.
type ReplicateClient struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	imageModel string
	videoModel string

	pollInterval time.Duration
	maxWait      time.Duration
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error,omitempty"`
}

// NewReplicateClient creates a new Replicate API client
func NewReplicateClient(cfg *config.ReplicateConfig) *ReplicateClient {
	return &ReplicateClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiToken:     cfg.APIToken,
		imageModel:   cfg.ImageModel,
		videoModel:   cfg.VideoModel,
		pollInterval: 3 * time.Second,
		maxWait:      10 * time.Minute,
	}
}

// ID implements ProviderClient
func (c *ReplicateClient) ID() string { return replicateProviderID }

// Supports implements ProviderClient
func (c *ReplicateClient) Supports(kind model.AssetKind) bool {
	return kind == model.AssetKindImage || kind == model.AssetKindVideo
}

// IsConfigured implements ProviderClient
func (c *ReplicateClient) IsConfigured() bool { return c.apiToken != "" }

// Generate implements ProviderClient
func (c *ReplicateClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	modelName := c.imageModel
	input := map[string]interface{}{
		"prompt":       req.Prompt,
		"aspect_ratio": req.AspectRatio,
	}
	if req.Kind == model.AssetKindVideo {
		modelName = c.videoModel
		input["duration"] = int(req.DurationSeconds)
	}

	pred, err := c.createPrediction(ctx, modelName, input)
	if err != nil {
		return nil, err
	}

	pred, err = c.pollPrediction(ctx, pred.ID)
	if err != nil {
		return nil, err
	}

	url, err := firstOutputURL(pred.Output)
	if err != nil {
		return nil, NewProviderError(replicateProviderID, ErrClassMalformed, err)
	}

	return &GenerateResult{
		AssetURL:        url,
		DurationSeconds: req.DurationSeconds,
	}, nil
}

func (c *ReplicateClient) createPrediction(ctx context.Context, modelName string, input map[string]interface{}) (*replicatePrediction, error) {
	body, err := json.Marshal(map[string]interface{}{"input": input})
	if err != nil {
		return nil, NewProviderError(replicateProviderID, ErrClassProvider, err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", c.baseURL, modelName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(replicateProviderID, ErrClassProvider, err)
	}

	var pred replicatePrediction
	if err := c.doRequest(httpReq, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

func (c *ReplicateClient) getPrediction(ctx context.Context, id string) (*replicatePrediction, error) {
	endpoint := fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, id)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewProviderError(replicateProviderID, ErrClassProvider, err)
	}

	var pred replicatePrediction
	if err := c.doRequest(httpReq, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

// pollPrediction polls until the prediction reaches a terminal status.
func (c *ReplicateClient) pollPrediction(ctx context.Context, id string) (*replicatePrediction, error) {
	deadline := time.Now().Add(c.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		pred, err := c.getPrediction(ctx, id)
		if err != nil {
			return nil, err
		}

		log.Printf("[Replicate] Poll #%d (prediction=%s) — status: %s", attempt, id, pred.Status)

		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			return nil, NewProviderError(replicateProviderID, ErrClassProvider,
				fmt.Errorf("prediction %s: %s", pred.Status, pred.Error))
		}

		select {
		case <-ctx.Done():
			return nil, NewProviderError(replicateProviderID, ErrClassTimeout, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}

	return nil, NewProviderError(replicateProviderID, ErrClassTimeout,
		fmt.Errorf("prediction timed out after %v", c.maxWait))
}

func (c *ReplicateClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	log.Printf("[Replicate] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Replicate] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return NewProviderError(replicateProviderID, ErrClassTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewProviderError(replicateProviderID, ErrClassProvider, err)
	}

	log.Printf("[Replicate] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewProviderError(replicateProviderID, classifyStatus(resp.StatusCode),
			fmt.Errorf("replicate API error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return NewProviderError(replicateProviderID, ErrClassMalformed, err)
	}

	return nil
}

// firstOutputURL handles the two output shapes Replicate models return:
// a single URL string or a list of URL strings.
func firstOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty prediction output")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}

	return "", fmt.Errorf("unrecognized prediction output: %s", string(raw))
}
