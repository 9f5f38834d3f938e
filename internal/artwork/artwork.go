// Package artwork fetches episode artwork once per session and caches it on
// disk for the remote-control surface, which wants a file:// URL. Oversized
// images are scaled down before caching.
package artwork

import (
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/jpeg"
	_ "image/png" // artwork decoding
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

// maxDimension bounds cached artwork; remote-control displays never need more.
const maxDimension = 512

// Fetcher resolves artwork URLs to local cache paths.
type Fetcher struct {
	dir    string
	client *http.Client
	log    *zap.Logger

	mu      sync.Mutex
	known   map[string]string // url -> path, hit once per session
	pending map[string][]func(string)
}

// NewFetcher creates an artwork fetcher caching under dir.
func NewFetcher(dir string, log *zap.Logger) (*Fetcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Fetcher{
		dir:     dir,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
		known:   make(map[string]string),
		pending: make(map[string][]func(string)),
	}, nil
}

// Cached returns the local path for a URL if it is already available this
// session, or "" on a miss.
func (f *Fetcher) Cached(url string) string {
	if url == "" {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if path, ok := f.known[url]; ok {
		return path
	}
	path := filepath.Join(f.dir, cacheName(url))
	if _, err := os.Stat(path); err == nil {
		f.known[url] = path
		return path
	}
	return ""
}

// Fetch resolves a URL asynchronously. onDone runs with the cached path (or
// "" on failure) once the artwork is available; a hit calls it immediately.
// Concurrent requests for the same URL share one download.
func (f *Fetcher) Fetch(url string, onDone func(path string)) {
	if url == "" {
		onDone("")
		return
	}
	if path := f.Cached(url); path != "" {
		onDone(path)
		return
	}

	f.mu.Lock()
	if waiters, inflight := f.pending[url]; inflight {
		f.pending[url] = append(waiters, onDone)
		f.mu.Unlock()
		return
	}
	f.pending[url] = []func(string){onDone}
	f.mu.Unlock()

	go func() {
		path, err := f.download(url)
		if err != nil {
			f.log.Warn("artwork fetch failed", zap.String("url", url), zap.Error(err))
			path = ""
		}

		f.mu.Lock()
		if path != "" {
			f.known[url] = path
		}
		waiters := f.pending[url]
		delete(f.pending, url)
		f.mu.Unlock()

		for _, done := range waiters {
			done(path)
		}
	}()
}

func (f *Fetcher) download(url string) (string, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(resp.Status)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return "", err
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxDimension || bounds.Dy() > maxDimension {
		img = resize.Thumbnail(maxDimension, maxDimension, img, resize.Lanczos3)
	}

	path := filepath.Join(f.dir, cacheName(url))
	tmp, err := os.CreateTemp(f.dir, ".artwork-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: 85}); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

func cacheName(url string) string {
	h := fnv.New64a()
	h.Write([]byte(url))
	return fmt.Sprintf("%x.jpg", h.Sum64())
}
