package storage

import (
	"context"
	"strings"
	"sync"
)

// Store is a flat key-value collection holding serialized values.
type Store interface {
	// Get returns the value under key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps values in process memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.values[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// Prefixed scopes every key of the underlying store under prefix.
type Prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix returns a view of inner whose keys are stored as "<prefix>/<key>".
func WithPrefix(inner Store, prefix string) *Prefixed {
	return &Prefixed{inner: inner, prefix: strings.Trim(prefix, "/")}
}

func (p *Prefixed) key(k string) string {
	if p.prefix == "" {
		return k
	}
	return p.prefix + "/" + k
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.inner.Get(ctx, p.key(key))
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.inner.Set(ctx, p.key(key), value)
}

func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.key(key))
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Prefixed)(nil)
)
