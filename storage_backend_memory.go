package txwatch

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryBackend keeps series files, baseline documents and exports in
// process memory. Replays that never touch disk use it, and so do the
// tests. Stored bytes never alias a caller's buffer.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
	bytes   int
	closed  bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

// MemoryUsage reports what a MemoryBackend holds.
type MemoryUsage struct {
	Objects int
	Bytes   int
}

// begin checks ctx and the closed flag. The caller holds mu.
func (m *MemoryBackend) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return ErrStorageClosed
	}
	return nil
}

func (m *MemoryBackend) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.begin(ctx); err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, notFound(key)
	}
	return slices.Clone(data), nil
}

func (m *MemoryBackend) Write(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return err
	}
	m.bytes += len(data) - len(m.objects[key])
	// Never store nil so an empty object reads back as an empty slice.
	m.objects[key] = append(make([]byte, 0, len(data)), data...)
	return nil
}

// Delete is a no-op for a missing key.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return err
	}
	m.bytes -= len(m.objects[key])
	delete(m.objects, key)
	return nil
}

// List returns the sorted keys under prefix in a slice owned by the caller.
// An empty result is a non-nil empty slice.
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.begin(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.begin(ctx); err != nil {
		return false, err
	}
	_, ok := m.objects[key]
	return ok, nil
}

// Close drops every object. Later calls fail with ErrStorageClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.objects = nil
	m.bytes = 0
	return nil
}

// Usage returns a point-in-time count of objects and stored bytes.
func (m *MemoryBackend) Usage() MemoryUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MemoryUsage{Objects: len(m.objects), Bytes: m.bytes}
}
