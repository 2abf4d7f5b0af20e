package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned for keys the archive does not hold.
var ErrNotFound = errors.New("object not found")

// Archive keeps the raw files users submitted for analysis.
type Archive interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// SourceKey is the archive key for the file behind a creation.
func SourceKey(creationID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return "creations/" + creationID + "/" + name
}

// MemoryArchive is an in-process Archive. PresignGet returns a memory:// URL.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: make(map[string]memoryObject)}
}

func (m *MemoryArchive) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryArchive) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return "memory://" + key, nil
}

// Object returns the stored bytes and content type.
func (m *MemoryArchive) Object(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.data, obj.contentType, ok
}
