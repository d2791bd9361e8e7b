package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
)

// AssetCache moves asset bytes from slow external provider storage to
// the fast object store the renderer reads from. It knows nothing about
// scenes; it operates purely on asset records.
type AssetCache struct {
	storage      client.StorageClient
	httpClient   *http.Client
	imageTimeout time.Duration
	mediaTimeout time.Duration
}

// NewAssetCache creates a cache over the given store. storage may be
// nil when object storage is not configured; assets are then passed
// through unmodified (development mode).
func NewAssetCache(storage client.StorageClient, imageTimeout, mediaTimeout time.Duration) *AssetCache {
	return &AssetCache{
		storage:      storage,
		httpClient:   &http.Client{}, // per-request timeouts via context
		imageTimeout: imageTimeout,
		mediaTimeout: mediaTimeout,
	}
}

// EnsureReady makes the asset resolvable at low latency by the
// renderer. Idempotent: an asset already on managed storage is returned
// unchanged with no network calls. raw carries provider-streamed bytes
// for providers that do not host their output; it may be nil.
//
// On download failure the asset is returned with Ready=false and the
// cache failure recorded on it; the caller degrades rather than
// blocking the project.
func (c *AssetCache) EnsureReady(ctx context.Context, asset *model.Asset, raw []byte, contentType string) (*model.Asset, error) {
	if c.storage == nil {
		// No object store configured: trust the provider URL.
		asset.Ready = asset.URI != ""
		return asset, nil
	}

	if asset.Ready && c.storage.IsManaged(asset.URI) {
		return asset, nil
	}

	if len(raw) > 0 {
		return c.upload(ctx, asset, raw, contentType, model.OriginGenerated)
	}

	if asset.URI == "" {
		asset.Ready = false
		asset.CacheError = "no source URI and no bytes"
		return asset, fmt.Errorf("asset %s: no source URI and no bytes", asset.ID)
	}

	if c.storage.IsManaged(asset.URI) {
		asset.Ready = true
		return asset, nil
	}

	data, ct, err := c.download(ctx, asset)
	if err != nil {
		// One retry, then degrade.
		data, ct, err = c.download(ctx, asset)
	}
	if err != nil {
		asset.Ready = false
		asset.CacheError = err.Error()
		log.Printf("Cache failed for asset %s (%s): %v", asset.ID, asset.Kind, err)
		return asset, fmt.Errorf("cache download failed: %w", err)
	}
	if contentType == "" {
		contentType = ct
	}

	return c.upload(ctx, asset, data, contentType, model.OriginCachedExternal)
}

// download fetches the asset bytes with a kind-specific timeout.
func (c *AssetCache) download(ctx context.Context, asset *model.Asset) ([]byte, string, error) {
	timeout := c.mediaTimeout
	if asset.Kind == model.AssetKindImage {
		timeout = c.imageTimeout
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dctx, http.MethodGet, asset.URI, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", asset.URI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: status %d", asset.URI, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func (c *AssetCache) upload(ctx context.Context, asset *model.Asset, data []byte, contentType string, origin model.AssetOrigin) (*model.Asset, error) {
	key := cacheKey(asset, contentType)
	url, err := c.storage.Upload(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		asset.Ready = false
		asset.CacheError = err.Error()
		return asset, fmt.Errorf("cache upload failed: %w", err)
	}

	asset.URI = url
	asset.Origin = origin
	asset.Ready = true
	asset.CacheError = ""
	log.Printf("Cached asset %s (%s, %d bytes) → %s", asset.ID, asset.Kind, len(data), key)
	return asset, nil
}

// cacheKey derives a stable object key from the asset identity.
func cacheKey(asset *model.Asset, contentType string) string {
	return fmt.Sprintf("assets/%s/%s/%s%s", asset.SceneID, asset.Kind, asset.ID, extensionFor(asset.Kind, contentType))
}

func extensionFor(kind model.AssetKind, contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	}
	switch kind {
	case model.AssetKindImage:
		return ".png"
	case model.AssetKindVideo:
		return ".mp4"
	default:
		return ".mp3"
	}
}
