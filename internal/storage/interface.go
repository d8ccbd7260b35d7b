package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one stored object for listing operations.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage defines the interface for blob storage operations.
// Keys are namespaced by purpose: uploads/{jobId}/... holds original
// submitted content and jobs/{jobId}.json holds serialized job records.
type ObjectStorage interface {
	// Upload stores an object under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadBytes reads an entire object into memory
	DownloadBytes(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)

	// List enumerates objects under a key prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
