// Package catalog implements the batched HTTP client to the upstream
// artifact catalog: search, metadata, file details, bulk mod lookup, and
// binary download, with retry-on-5xx and a single-flight mod-list cache.
// Requests are not rate-limited: the client bounds neither its request rate
// nor the number of requests outstanding at once.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/forgehost/panel/internal/apierr"
)

const (
	metadataTimeout = 30 * time.Second
	downloadTimeout = 5 * time.Minute
	downloadCeiling = 500 * 1024 * 1024 // 500 MB
	batchSize       = 100
	modListCacheTTL = 30 * time.Minute
	maxRetries      = 3
)

// Client is the Catalog Client (C2).
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	log     *zap.Logger

	modListCache *ttlcache.Cache[string, []EnrichedModEntry]
	group        singleflight.Group
}

// New builds a Client. An empty apiKey means every search/metadata call
// returns CatalogDisabled rather than attempting the upstream request.
func New(baseURL, apiKey string, log *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = maxRetries
	rc.Logger = nil // retryablehttp's own logger is off; retry attempts are not logged
	rc.CheckRetry = only5xxAndConnErrors

	cache := ttlcache.New[string, []EnrichedModEntry](
		ttlcache.WithTTL[string, []EnrichedModEntry](modListCacheTTL),
	)
	go cache.Start()

	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		http:         rc,
		log:          log,
		modListCache: cache,
	}
}

// Close stops the background cache janitor.
func (c *Client) Close() {
	c.modListCache.Stop()
}

func only5xxAndConnErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

func (c *Client) requireAPIKey() error {
	if c.apiKey == "" {
		return apierr.New(apierr.CatalogDisabled, "no catalog API key configured", nil)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, timeout time.Duration) (*retryablehttp.Request, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, nil, apierr.Wrap(err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	return req, cancel, nil
}

func (c *Client) doJSON(ctx context.Context, path string, timeout time.Duration, out any) error {
	if err := c.requireAPIKey(); err != nil {
		return err
	}
	req, cancel, err := c.newRequest(ctx, http.MethodGet, path, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.New(apierr.UpstreamUnavailable, err.Error(), nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// 4xx are surfaced immediately, not retried.
		return apierr.New(apierr.UpstreamUnavailable, fmt.Sprintf("catalog returned %d", resp.StatusCode), map[string]any{"path": path})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apierr.New(apierr.ManifestInvalid, "could not decode catalog response", nil)
	}
	return nil
}

// Search runs a paginated search against the catalog.
func (c *Client) Search(ctx context.Context, query, engineVersion string, page int) (SearchResult, error) {
	var out SearchResult
	path := fmt.Sprintf("/search?query=%s&gameVersion=%s&page=%d", query, engineVersion, page)
	err := c.doJSON(ctx, path, metadataTimeout, &out)
	return out, err
}

// ModpackMeta fetches top-level metadata for one modpack.
func (c *Client) ModpackMeta(ctx context.Context, id string) (ModpackMeta, error) {
	var out ModpackMeta
	err := c.doJSON(ctx, "/modpacks/"+id, metadataTimeout, &out)
	return out, err
}

// ModpackFiles lists files for a modpack, optionally filtered by engine
// version.
func (c *Client) ModpackFiles(ctx context.Context, id, engineVersion string) ([]FileEntry, error) {
	var out []FileEntry
	path := fmt.Sprintf("/modpacks/%s/files", id)
	if engineVersion != "" {
		path += "?gameVersion=" + engineVersion
	}
	err := c.doJSON(ctx, path, metadataTimeout, &out)
	return out, err
}

// FileDetail fetches details for a single file within a modpack.
func (c *Client) FileDetail(ctx context.Context, id, fileID string) (FileDetail, error) {
	var out FileDetail
	err := c.doJSON(ctx, fmt.Sprintf("/modpacks/%s/files/%s", id, fileID), metadataTimeout, &out)
	return out, err
}

// ModMetadataBatch resolves metadata for many mod ids. Requests are split
// into chunks of at most 100 ids.
func (c *Client) ModMetadataBatch(ctx context.Context, ids []int64) ([]ModMetadata, error) {
	if err := c.requireAPIKey(); err != nil {
		return nil, err
	}

	var all []ModMetadata
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		var out []ModMetadata
		if err := c.requireAPIKey(); err != nil {
			return nil, err
		}
		reqCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
		body, _ := json.Marshal(map[string]any{"modIds": chunk})
		req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/mods", bytes.NewReader(body))
		if err != nil {
			cancel()
			return nil, apierr.Wrap(err)
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		cancel()
		if err != nil {
			return nil, apierr.New(apierr.UpstreamUnavailable, err.Error(), nil)
		}
		decErr := json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if decErr != nil {
			return nil, apierr.New(apierr.ManifestInvalid, "could not decode mod metadata batch", nil)
		}
		all = append(all, out...)
	}
	return all, nil
}

// Download fetches url, failing with DownloadTooLarge if the response
// exceeds the 500 MB ceiling, and honoring ctx cancellation mid-transfer.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apierr.Wrap(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.UpstreamUnavailable, err.Error(), map[string]any{"url": url})
	}
	defer resp.Body.Close()

	if resp.ContentLength > downloadCeiling {
		return nil, apierr.New(apierr.DownloadTooLarge, "artifact exceeds the 500 MB download ceiling", map[string]any{"url": url})
	}

	limited := io.LimitReader(resp.Body, downloadCeiling+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.New(apierr.CancelledByCaller, "download cancelled", nil)
		}
		return nil, apierr.New(apierr.UpstreamUnavailable, err.Error(), map[string]any{"url": url})
	}
	if len(data) > downloadCeiling {
		return nil, apierr.New(apierr.DownloadTooLarge, "artifact exceeds the 500 MB download ceiling", map[string]any{"url": url})
	}
	return data, nil
}

// GetEnrichedModList returns the joined {manifest file, catalog metadata}
// view for a modpack file, single-flighted and cached for 30 minutes per
// (modpackID, fileID).
func (c *Client) GetEnrichedModList(ctx context.Context, modpackID, fileID string, compute func(ctx context.Context) ([]EnrichedModEntry, error)) ([]EnrichedModEntry, error) {
	key := modpackID + "/" + fileID
	if item := c.modListCache.Get(key); item != nil {
		return item.Value(), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check after winning the single-flight race: a concurrent
		// caller may have just populated the cache while we waited.
		if item := c.modListCache.Get(key); item != nil {
			return item.Value(), nil
		}
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.modListCache.Set(key, result, modListCacheTTL)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]EnrichedModEntry), nil
}
