package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/storyreel/api/internal/config"
)

// ChunkRenderer defines the interface to the remote rendering function
// and its companion media operations.
type ChunkRenderer interface {
	RenderChunk(ctx context.Context, req *RenderChunkRequest) (*RenderChunkResponse, error)
	Concat(ctx context.Context, req *ConcatRequest) (*ConcatResponse, error)
	ExtractFrames(ctx context.Context, req *ExtractFramesRequest) (*ExtractFramesResponse, error)
	HealthCheck(ctx context.Context) error
}

// RenderClient implements ChunkRenderer for the media render service.
type RenderClient struct {
	httpClient *http.Client
	baseURL    string
}

// RenderChunkRequest renders one frame range of a composition
type RenderChunkRequest struct {
	CompositionID string          `json:"composition_id"`
	InputProps    json.RawMessage `json:"input_props"`
	StartFrame    int             `json:"start_frame"`
	EndFrame      int             `json:"end_frame"`
	FPS           int             `json:"fps"`
	OutputKey     string          `json:"output_key"`
}

// RenderChunkResponse carries the rendered chunk location
type RenderChunkResponse struct {
	OutputURL      string  `json:"output_url"`
	RenderedFrames int     `json:"rendered_frames"`
	Duration       float64 `json:"duration"`
}

// ConcatRequest joins chunk outputs in order. The join is a lossless
// container-level operation; the service never re-encodes.
type ConcatRequest struct {
	ChunkURLs []string `json:"chunk_urls"`
	OutputKey string   `json:"output_key"`
}

// ConcatResponse carries the final artifact location
type ConcatResponse struct {
	OutputURL string  `json:"output_url"`
	Duration  float64 `json:"duration"`
	Size      int64   `json:"size"`
}

// ExtractFramesRequest samples representative frames from a video
type ExtractFramesRequest struct {
	VideoURL string `json:"video_url"`
	Count    int    `json:"count"`
}

// ExtractFramesResponse carries the sampled frame locations
type ExtractFramesResponse struct {
	FrameURLs []string `json:"frame_urls"`
}

// NewRenderClient creates a new media render service client
func NewRenderClient(cfg *config.RenderConfig) *RenderClient {
	return &RenderClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// RenderChunk renders one chunk on the remote render function
func (c *RenderClient) RenderChunk(ctx context.Context, req *RenderChunkRequest) (*RenderChunkResponse, error) {
	var result RenderChunkResponse
	if err := c.post(ctx, "/render", req, &result); err != nil {
		return nil, err
	}
	if result.OutputURL == "" {
		return nil, fmt.Errorf("render response missing output URL")
	}
	return &result, nil
}

// Concat joins rendered chunks into one output
func (c *RenderClient) Concat(ctx context.Context, req *ConcatRequest) (*ConcatResponse, error) {
	var result ConcatResponse
	if err := c.post(ctx, "/concat", req, &result); err != nil {
		return nil, err
	}
	if result.OutputURL == "" {
		return nil, fmt.Errorf("concat response missing output URL")
	}
	return &result, nil
}

// ExtractFrames samples frames from a video for analysis
func (c *RenderClient) ExtractFrames(ctx context.Context, req *ExtractFramesRequest) (*ExtractFramesResponse, error) {
	var result ExtractFramesResponse
	if err := c.post(ctx, "/frames", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck checks if the render service is available
func (c *RenderClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("render service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// post sends a POST request with JSON body and parses the response
func (c *RenderClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("render service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *RenderClient) IsConfigured() bool {
	return c.baseURL != ""
}
