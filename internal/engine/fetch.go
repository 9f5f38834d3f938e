package engine

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Cache downloads episode enclosures once and serves them from disk. Local
// paths and file:// URLs pass through untouched.
type Cache struct {
	dir    string
	client *http.Client
}

// NewCache creates an enclosure cache rooted at dir.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:    dir,
		client: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Fetch resolves rawURL to a local file path, downloading it on a cache miss.
func (c *Cache) Fetch(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("empty enclosure url")
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		// Plain filesystem path.
		if _, statErr := os.Stat(rawURL); statErr != nil {
			return "", fmt.Errorf("invalid enclosure url %q", rawURL)
		}
		return rawURL, nil
	}

	switch u.Scheme {
	case "file":
		return u.Path, nil
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported enclosure scheme %q", u.Scheme)
	}

	path := filepath.Join(c.dir, cacheFileName(rawURL))
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	return path, c.download(rawURL, path)
}

// Path returns the cache location for a URL without fetching it.
func (c *Cache) Path(rawURL string) string {
	return filepath.Join(c.dir, cacheFileName(rawURL))
}

// CachedPath resolves rawURL to a local file only when it is already
// available, never downloading.
func (c *Cache) CachedPath(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		if _, statErr := os.Stat(rawURL); statErr == nil {
			return rawURL, true
		}
		return "", false
	}
	switch u.Scheme {
	case "file":
		return u.Path, true
	case "http", "https":
	default:
		return "", false
	}
	path := filepath.Join(c.dir, cacheFileName(rawURL))
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, true
	}
	return "", false
}

// download writes to a temp file first so a partial transfer never looks like
// a cached enclosure.
func (c *Cache) download(rawURL, path string) error {
	resp, err := c.client.Get(rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("enclosure fetch: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func cacheFileName(rawURL string) string {
	h := fnv.New64a()
	h.Write([]byte(rawURL))
	return fmt.Sprintf("%x.mp3", h.Sum64())
}
