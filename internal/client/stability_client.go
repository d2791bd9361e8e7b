package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

const stabilityProviderID = "stability"

// StabilityClient generates images through the Stability AI stable-image
// API. Unlike the queue-based providers it returns the image bytes
// directly, so results carry AssetBytes and the cache uploads them.
type StabilityClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewStabilityClient creates a new Stability AI client
func NewStabilityClient(cfg *config.StabilityConfig) *StabilityClient {
	return &StabilityClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// ID implements ProviderClient
func (c *StabilityClient) ID() string { return stabilityProviderID }

// Supports implements ProviderClient
func (c *StabilityClient) Supports(kind model.AssetKind) bool {
	return kind == model.AssetKindImage
}

// IsConfigured implements ProviderClient
func (c *StabilityClient) IsConfigured() bool { return c.apiKey != "" }

// Generate implements ProviderClient
func (c *StabilityClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("prompt", req.Prompt)
	_ = writer.WriteField("output_format", "png")
	if req.AspectRatio != "" {
		_ = writer.WriteField("aspect_ratio", req.AspectRatio)
	}
	if err := writer.Close(); err != nil {
		return nil, NewProviderError(stabilityProviderID, ErrClassProvider, err)
	}

	endpoint := c.baseURL + "/v2beta/stable-image/generate/core"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, NewProviderError(stabilityProviderID, ErrClassProvider, err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "image/*")

	log.Printf("[Stability] → POST %s", endpoint)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("[Stability] ✗ POST %s — request failed: %v", endpoint, err)
		return nil, NewProviderError(stabilityProviderID, ErrClassTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(stabilityProviderID, ErrClassProvider, err)
	}

	log.Printf("[Stability] ← %d POST %s (%d bytes)", resp.StatusCode, endpoint, len(respBody))

	if resp.StatusCode != http.StatusOK {
		return nil, NewProviderError(stabilityProviderID, classifyStatus(resp.StatusCode),
			fmt.Errorf("stability API error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	if len(respBody) == 0 {
		return nil, NewProviderError(stabilityProviderID, ErrClassMalformed,
			fmt.Errorf("empty image response"))
	}

	return &GenerateResult{
		AssetBytes:  respBody,
		ContentType: "image/png",
	}, nil
}
