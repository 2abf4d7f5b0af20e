package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Store is a flat key-value persistence layer holding JSON documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// GetJSON decodes the value at key into out. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// Namespace prefixes every key with ns and a colon.
func Namespace(s Store, ns string) Store {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s
	}
	return &namespaced{inner: s, prefix: ns + ":"}
}

type namespaced struct {
	inner  Store
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}
