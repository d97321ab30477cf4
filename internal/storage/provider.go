// Package storage defines the blob storage abstraction used to retain
// finished archives. Implementations cover Google Cloud Storage, the
// local filesystem, an in-memory store for tests, and a no-op for
// running without retention.
package storage

import (
	"context"
)

// Provider persists one named blob and returns a URI for it.
type Provider interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// NoOpProvider discards everything. It is the default when archive
// retention is disabled.
type NoOpProvider struct{}

// PutObject does nothing and returns an empty URI.
func (NoOpProvider) PutObject(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}
