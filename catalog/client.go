// Package catalog talks to the CurseForge mod catalog: mod and file metadata
// and download URL resolution.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mcwizard/config"
)

const defaultTimeout = 15 * time.Second

// StatusError is returned for non-2xx catalog responses.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog %s %s failed: status %d, body: %s", e.Method, e.URL, e.Status, e.Body)
}

// Client handles communication with the catalog API.
type Client struct {
	BaseURL    string
	APIKey     string
	UserAgent  string
	HTTPClient *http.Client
	Cache      Cache
	Log        *zap.SugaredLogger
}

// NewClient creates a catalog client from the configuration. cache may be nil.
func NewClient(cfg config.Config, cache Cache, log *zap.SugaredLogger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("USERAGENT is not configured")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		BaseURL:   cfg.CurseForgeAPIURL,
		APIKey:    cfg.CurseForgeAPIKey,
		UserAgent: cfg.UserAgent,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
		Cache: cache,
		Log:   log,
	}, nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.BaseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

// getJSON performs a GET and decodes the body into target. Cached requests
// are served from and stored into c.Cache by full URL.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, target any, cached bool) error {
	fullURL := c.buildURL(path, query)

	if cached && c.Cache != nil {
		if body, ok := c.Cache.Get(ctx, fullURL); ok {
			c.Log.Debugw("Catalog cache hit", zap.String("url", fullURL))
			return decode(body, target)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: http.MethodGet, URL: fullURL, Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	if err := decode(body, target); err != nil {
		return err
	}
	if cached && c.Cache != nil {
		if err := c.Cache.Set(ctx, fullURL, body); err != nil {
			c.Log.Warnw("Catalog cache write failed", zap.String("url", fullURL), zap.Error(err))
		}
	}
	return nil
}

func decode(body []byte, target any) error {
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode json response: %w", err)
	}
	return nil
}

// GetMod retrieves a single mod.
func (c *Client) GetMod(ctx context.Context, modID int) (*Mod, error) {
	var out envelope[Mod]
	if err := c.getJSON(ctx, fmt.Sprintf("/mods/%d", modID), nil, &out, false); err != nil {
		return nil, fmt.Errorf("failed to get mod %d: %w", modID, err)
	}
	return &out.Data, nil
}

// GetModFiles lists files of a mod, newest first. Results are cached.
func (c *Client) GetModFiles(ctx context.Context, modID int, q FilesQuery) (*FilesPage, error) {
	params := url.Values{}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
		params.Set("index", strconv.Itoa(q.Index))
	} else if q.Index > 0 {
		params.Set("index", strconv.Itoa(q.Index))
	}
	if q.GameVersion != "" {
		params.Set("gameVersion", q.GameVersion)
	}
	if q.ModLoaderType > 0 {
		params.Set("modLoaderType", strconv.Itoa(q.ModLoaderType))
	}

	var page FilesPage
	if err := c.getJSON(ctx, fmt.Sprintf("/mods/%d/files", modID), params, &page, true); err != nil {
		return nil, fmt.Errorf("failed to get files for mod %d: %w", modID, err)
	}
	return &page, nil
}

// GetFile retrieves metadata of one file.
func (c *Client) GetFile(ctx context.Context, fileID int) (*File, error) {
	var out envelope[File]
	if err := c.getJSON(ctx, fmt.Sprintf("/files/%d", fileID), nil, &out, false); err != nil {
		return nil, fmt.Errorf("failed to get file %d: %w", fileID, err)
	}
	return &out.Data, nil
}

// GetDownloadURL resolves the direct download URL of a file.
func (c *Client) GetDownloadURL(ctx context.Context, modID, fileID int) (string, error) {
	var out envelope[string]
	if err := c.getJSON(ctx, fmt.Sprintf("/mods/%d/files/%d/download-url", modID, fileID), nil, &out, false); err != nil {
		return "", fmt.Errorf("failed to get download url for file %d: %w", fileID, err)
	}
	return out.Data, nil
}

// GetModDescription returns the HTML description of a mod.
func (c *Client) GetModDescription(ctx context.Context, modID int) (string, error) {
	var out envelope[string]
	if err := c.getJSON(ctx, fmt.Sprintf("/mods/%d/description", modID), nil, &out, false); err != nil {
		return "", fmt.Errorf("failed to get description for mod %d: %w", modID, err)
	}
	return out.Data, nil
}

// ClearCache drops every cached response.
func (c *Client) ClearCache(ctx context.Context) error {
	if c.Cache == nil {
		return nil
	}
	return c.Cache.Clear(ctx)
}
