// Package kv is small string key-value storage for per-visitor state such as
// quest progress and history. Values are opaque JSON strings.
package kv

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Memory is a Store held in process memory.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// Prefixed scopes every key of an underlying store, e.g. per visitor.
type Prefixed struct {
	Store  Store
	Prefix string
}

func (p Prefixed) Get(ctx context.Context, key string) (string, error) {
	return p.Store.Get(ctx, p.Prefix+key)
}

func (p Prefixed) Set(ctx context.Context, key, value string) error {
	return p.Store.Set(ctx, p.Prefix+key, value)
}

func (p Prefixed) Delete(ctx context.Context, key string) error {
	return p.Store.Delete(ctx, p.Prefix+key)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = Prefixed{}
	_ Store = (*SQLite)(nil)
	_ Store = (*Redis)(nil)
)
