package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "sinulogmap/internal/log"
)

// maxBody bounds a remote document.
const maxBody = 16 << 20

// Result is a loaded document.
type Result struct {
	Location  string
	Body      []byte
	FromCache bool
}

// cacheEntry holds HTTP cache metadata for one remote document.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher loads schedule and calendar documents from local paths or
// http(s) URLs. Remote documents are revalidated with ETag/Last-Modified
// and kept in a disk cache that is used when the origin is unreachable.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir. An empty cacheDir
// disables the disk cache.
func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

// IsRemote reports whether loc is an http(s) URL.
func IsRemote(loc string) bool {
	u, err := url.Parse(loc)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Load reads loc, which is either a file path or an http(s) URL.
func (f *Fetcher) Load(ctx context.Context, loc string) (Result, error) {
	if strings.TrimSpace(loc) == "" {
		return Result{}, errors.New("source location is empty")
	}
	if !IsRemote(loc) {
		body, err := os.ReadFile(loc)
		if err != nil {
			return Result{}, fmt.Errorf("read %s: %w", loc, err)
		}
		return Result{Location: loc, Body: body}, nil
	}
	return f.fetch(ctx, loc)
}

func (f *Fetcher) fetch(ctx context.Context, loc string) (Result, error) {
	cachePath := f.cachePath(loc)
	var (
		meta   cacheEntry
		cached []byte
	)
	if cachePath != "" {
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			return Result{}, err
		}
		meta, _ = loadMeta(cachePath)
		cached, _ = os.ReadFile(filepath.Join(cachePath, "body"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return Result{}, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("source fetch start", "url", RedactURL(loc))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("source fetch network error, using cached body", err, "url", RedactURL(loc))
			return Result{Location: loc, Body: cached, FromCache: true}, nil
		}
		return Result{}, fmt.Errorf("fetch %s: %w", RedactURL(loc), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return Result{}, err
		}
		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          loc,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("source cache save failed", err, "url", RedactURL(loc))
			}
		}
		appLog.Info("source fetch success", "url", RedactURL(loc), "bytes", len(body))
		return Result{Location: loc, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Result{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("source not modified; using cache", "url", RedactURL(loc))
		return Result{Location: loc, Body: cached, FromCache: true}, nil

	default:
		if len(cached) > 0 {
			appLog.Error("source fetch non-OK, using cached body", errors.New(resp.Status), "url", RedactURL(loc), "status", resp.StatusCode)
			return Result{Location: loc, Body: cached, FromCache: true}, nil
		}
		return Result{}, fmt.Errorf("fetch %s: %s", RedactURL(loc), resp.Status)
	}
}

func (f *Fetcher) cachePath(loc string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(loc))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// RedactURL keeps only scheme and host so tokens in paths or queries never
// reach the logs.
func RedactURL(loc string) string {
	u, err := url.Parse(loc)
	if err != nil || u.Host == "" {
		return "...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
