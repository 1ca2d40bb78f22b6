package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jwalitptl/carebook/pkg/errors"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(ctx context.Context, key, contentType string, size int64, body io.Reader) (*Object, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Storage(fmt.Errorf("failed to read upload: %w", err))
	}

	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()

	return &Object{Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, errors.NotFound("file", nil)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), &Object{Key: key, ContentType: obj.contentType, Size: int64(len(obj.data))}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
