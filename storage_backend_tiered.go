package txwatch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"slices"
)

// TieredBackend mirrors a remote backend on fast local storage. Reads are
// served locally when possible and populate the mirror on a miss. Writes go
// to the remote first, so the remote stays authoritative.
type TieredBackend struct {
	hot  StorageBackend
	cold StorageBackend
}

var _ StorageBackend = (*TieredBackend)(nil)

// NewTieredBackend creates a backend mirroring cold on hot.
func NewTieredBackend(hot, cold StorageBackend) *TieredBackend {
	return &TieredBackend{hot: hot, cold: cold}
}

func (t *TieredBackend) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := t.hot.Read(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Debug("local mirror read failed", "key", key, "err", err)
	}

	data, err = t.cold.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := t.hot.Write(ctx, key, data); err != nil {
		slog.Warn("failed to populate local mirror", "key", key, "err", err)
	}
	return data, nil
}

func (t *TieredBackend) Write(ctx context.Context, key string, data []byte) error {
	if err := t.cold.Write(ctx, key, data); err != nil {
		return err
	}
	if err := t.hot.Write(ctx, key, data); err != nil {
		slog.Warn("failed to update local mirror", "key", key, "err", err)
	}
	return nil
}

func (t *TieredBackend) Delete(ctx context.Context, key string) error {
	if err := t.cold.Delete(ctx, key); err != nil {
		return err
	}
	return t.hot.Delete(ctx, key)
}

// List returns the remote keys. Keys only present in the mirror are stale
// and not listed.
func (t *TieredBackend) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := t.cold.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func (t *TieredBackend) Exists(ctx context.Context, key string) (bool, error) {
	if ok, err := t.hot.Exists(ctx, key); err == nil && ok {
		return true, nil
	}
	return t.cold.Exists(ctx, key)
}

func (t *TieredBackend) Close() error {
	return errors.Join(t.cold.Close(), t.hot.Close())
}
