package txwatch

import (
	"context"
	"fmt"
	"io/fs"
)

// StorageBackend is where datasets, baseline documents and session exports
// live. Keys are slash-separated and relative to the backend root.
// Read of a missing key returns an error matching fs.ErrNotExist.
type StorageBackend interface {
	// Read returns the object stored under key.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores data under key, replacing any previous object.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources.
	Close() error
}

var (
	_ StorageBackend = (*FileBackend)(nil)
	_ StorageBackend = (*S3Backend)(nil)
	_ StorageBackend = (*MemoryBackend)(nil)
)

// OpenStorage creates the backend selected by cfg.
func OpenStorage(cfg StorageConfig) (StorageBackend, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileBackend(cfg.Dir)
	case "memory":
		return NewMemoryBackend(), nil
	case "s3":
		remote, err := NewS3Backend(cfg.S3)
		if err != nil {
			return nil, err
		}
		if cfg.CacheDir == "" {
			return remote, nil
		}
		local, err := NewFileBackend(cfg.CacheDir)
		if err != nil {
			_ = remote.Close()
			return nil, err
		}
		return NewTieredBackend(local, remote), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", fs.ErrNotExist, key)
}
