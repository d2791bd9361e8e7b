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

const falProviderID = "fal"

// FalClient generates images and video through the fal.ai queue API:
// submit to the queue, poll the status URL, then fetch the response.
type FalClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	imageModel string
	videoModel string

	pollInterval time.Duration
	maxWait      time.Duration
}

type falQueueSubmit struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type falQueueStatus struct {
	Status string `json:"status"` // IN_QUEUE, IN_PROGRESS, COMPLETED
}

type falResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
}

// NewFalClient creates a new fal.ai queue client
func NewFalClient(cfg *config.FalConfig) *FalClient {
	return &FalClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		imageModel:   cfg.ImageModel,
		videoModel:   cfg.VideoModel,
		pollInterval: 3 * time.Second,
		maxWait:      10 * time.Minute,
	}
}

// ID implements ProviderClient
func (c *FalClient) ID() string { return falProviderID }

// Supports implements ProviderClient
func (c *FalClient) Supports(kind model.AssetKind) bool {
	return kind == model.AssetKindImage || kind == model.AssetKindVideo
}

// IsConfigured implements ProviderClient
func (c *FalClient) IsConfigured() bool { return c.apiKey != "" }

// Generate implements ProviderClient
func (c *FalClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	modelName := c.imageModel
	input := map[string]interface{}{
		"prompt":       req.Prompt,
		"aspect_ratio": req.AspectRatio,
	}
	if req.Kind == model.AssetKindVideo {
		modelName = c.videoModel
		input["duration"] = fmt.Sprintf("%d", int(req.DurationSeconds))
	}

	submit, err := c.submit(ctx, modelName, input)
	if err != nil {
		return nil, err
	}

	if err := c.waitCompleted(ctx, submit); err != nil {
		return nil, err
	}

	var result falResponse
	if err := c.getJSON(ctx, submit.ResponseURL, &result); err != nil {
		return nil, err
	}

	url := result.Video.URL
	if req.Kind == model.AssetKindImage {
		if len(result.Images) == 0 {
			return nil, NewProviderError(falProviderID, ErrClassMalformed,
				fmt.Errorf("no images in response"))
		}
		url = result.Images[0].URL
	}
	if url == "" {
		return nil, NewProviderError(falProviderID, ErrClassMalformed,
			fmt.Errorf("no output URL in response"))
	}

	return &GenerateResult{
		AssetURL:        url,
		DurationSeconds: req.DurationSeconds,
	}, nil
}

func (c *FalClient) submit(ctx context.Context, modelName string, input map[string]interface{}) (*falQueueSubmit, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, NewProviderError(falProviderID, ErrClassProvider, err)
	}

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, modelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(falProviderID, ErrClassProvider, err)
	}

	var submit falQueueSubmit
	if err := c.doRequest(req, &submit); err != nil {
		return nil, err
	}
	if submit.StatusURL == "" || submit.ResponseURL == "" {
		return nil, NewProviderError(falProviderID, ErrClassMalformed,
			fmt.Errorf("queue submit missing status/response URLs"))
	}
	return &submit, nil
}

func (c *FalClient) waitCompleted(ctx context.Context, submit *falQueueSubmit) error {
	deadline := time.Now().Add(c.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		var status falQueueStatus
		if err := c.getJSON(ctx, submit.StatusURL, &status); err != nil {
			return err
		}

		log.Printf("[Fal] Poll #%d (request=%s) — status: %s", attempt, submit.RequestID, status.Status)

		if status.Status == "COMPLETED" {
			return nil
		}

		select {
		case <-ctx.Done():
			return NewProviderError(falProviderID, ErrClassTimeout, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}

	return NewProviderError(falProviderID, ErrClassTimeout,
		fmt.Errorf("queue request timed out after %v", c.maxWait))
}

func (c *FalClient) getJSON(ctx context.Context, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewProviderError(falProviderID, ErrClassProvider, err)
	}
	return c.doRequest(req, result)
}

func (c *FalClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.apiKey)

	log.Printf("[Fal] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Fal] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return NewProviderError(falProviderID, ErrClassTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewProviderError(falProviderID, ErrClassProvider, err)
	}

	log.Printf("[Fal] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewProviderError(falProviderID, classifyStatus(resp.StatusCode),
			fmt.Errorf("fal API error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return NewProviderError(falProviderID, ErrClassMalformed, err)
	}

	return nil
}
