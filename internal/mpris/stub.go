//go:build !linux

package mpris

import (
	"github.com/llehouerou/earshot/internal/artwork"
	"github.com/llehouerou/earshot/internal/playback"
	"github.com/llehouerou/earshot/internal/queue"
)

// Adapter is a no-op on non-Linux platforms.
type Adapter struct{}

// New returns a no-op adapter on non-Linux platforms.
func New(_ playback.Service, _ *queue.Store, _ *artwork.Fetcher) (*Adapter, error) {
	return &Adapter{}, nil
}

// Close is a no-op on non-Linux platforms.
func (a *Adapter) Close() error {
	return nil
}
