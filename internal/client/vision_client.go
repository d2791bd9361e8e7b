package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/storyreel/api/internal/config"
)

// VisionClient handles communication with an OpenAI-compatible
// vision-capable chat completions API.
type VisionClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type visionContentPart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *visionImageURL  `json:"image_url,omitempty"`
}

type visionImageURL struct {
	URL string `json:"url"`
}

type visionMessage struct {
	Role    string              `json:"role"`
	Content []visionContentPart `json:"content"`
}

type visionChatRequest struct {
	Model          string          `json:"model"`
	Messages       []visionMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type visionChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewVisionClient creates a new vision analysis client
func NewVisionClient(cfg *config.VisionConfig) *VisionClient {
	return &VisionClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// AnalyzeImages sends image bytes plus an instruction to the vision
// model and returns the raw JSON verdict text. Images are embedded as
// base64 data URLs.
func (c *VisionClient) AnalyzeImages(ctx context.Context, system, instruction string, images [][]byte) (string, error) {
	parts := []visionContentPart{{Type: "text", Text: instruction}}
	for _, img := range images {
		parts = append(parts, visionContentPart{
			Type: "image_url",
			ImageURL: &visionImageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	reqBody := visionChatRequest{
		Model: c.model,
		Messages: []visionMessage{
			{Role: "system", Content: []visionContentPart{{Type: "text", Text: system}}},
			{Role: "user", Content: parts},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	}
	reqBody.ResponseFormat.Type = "json_object"

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp visionChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *VisionClient) IsConfigured() bool {
	return c.apiKey != ""
}
