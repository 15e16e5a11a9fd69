package media

import (
	"context"
	"fmt"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// Memory keeps uploads in process and serves them below baseURL.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]object
}

func NewMemory(baseURL string) *Memory {
	return &Memory{baseURL: baseURL, objects: map[string]object{}}
}

func (m *Memory) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := checkPath(path); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	m.objects[path] = object{data: stored, contentType: contentType}
	m.mu.Unlock()
	return joinURL(m.baseURL, path), nil
}

func (m *Memory) DownloadURL(ctx context.Context, path string) (string, error) {
	if err := checkPath(path); err != nil {
		return "", err
	}
	m.mu.RLock()
	_, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return joinURL(m.baseURL, path), nil
}

// Open returns the bytes and content type stored at path.
func (m *Memory) Open(path string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, "", false
	}
	return obj.data, obj.contentType, true
}
