package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

const elevenLabsProviderID = "elevenlabs"

// ElevenLabsClient synthesizes narration through the ElevenLabs
// text-to-speech API. Audio bytes come back in the response body.
type ElevenLabsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voiceID    string
	modelID    string
}

// NewElevenLabsClient creates a new ElevenLabs TTS client
func NewElevenLabsClient(cfg *config.ElevenLabsConfig) *ElevenLabsClient {
	return &ElevenLabsClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		voiceID: cfg.VoiceID,
		modelID: cfg.ModelID,
	}
}

// ID implements ProviderClient
func (c *ElevenLabsClient) ID() string { return elevenLabsProviderID }

// Supports implements ProviderClient
func (c *ElevenLabsClient) Supports(kind model.AssetKind) bool {
	return kind == model.AssetKindVoice
}

// IsConfigured implements ProviderClient
func (c *ElevenLabsClient) IsConfigured() bool { return c.apiKey != "" }

// Generate implements ProviderClient. The prompt is the narration text.
func (c *ElevenLabsClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"text":     req.Prompt,
		"model_id": c.modelID,
	})
	if err != nil {
		return nil, NewProviderError(elevenLabsProviderID, ErrClassProvider, err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(elevenLabsProviderID, ErrClassProvider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")

	log.Printf("[ElevenLabs] → POST %s (%d chars)", endpoint, len(req.Prompt))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("[ElevenLabs] ✗ POST %s — request failed: %v", endpoint, err)
		return nil, NewProviderError(elevenLabsProviderID, ErrClassTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(elevenLabsProviderID, ErrClassProvider, err)
	}

	log.Printf("[ElevenLabs] ← %d POST %s (%d bytes)", resp.StatusCode, endpoint, len(respBody))

	if resp.StatusCode != http.StatusOK {
		return nil, NewProviderError(elevenLabsProviderID, classifyStatus(resp.StatusCode),
			fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	if len(respBody) == 0 {
		return nil, NewProviderError(elevenLabsProviderID, ErrClassMalformed,
			fmt.Errorf("empty audio response"))
	}

	return &GenerateResult{
		AssetBytes:      respBody,
		ContentType:     "audio/mpeg",
		DurationSeconds: EstimateSpeechSeconds(req.Prompt, 2.5),
	}, nil
}

// EstimateSpeechSeconds estimates spoken duration from word count at the
// given words-per-second rate. Used both for the TTS duration estimate
// and for recalculating scene durations before generation.
func EstimateSpeechSeconds(text string, wordsPerSecond float64) float64 {
	words := len(strings.Fields(text))
	if words == 0 || wordsPerSecond <= 0 {
		return 0
	}
	return float64(words) / wordsPerSecond
}
