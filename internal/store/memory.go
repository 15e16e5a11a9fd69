package store

import (
	"context"
	"sync"
)

// Memory keeps the whole tree in process. Used in tests and for local runs.
type Memory struct {
	mu   sync.RWMutex
	root any
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Path: joinPath(segs), Value: clone(lookup(m.root, segs))}, nil
}

func (m *Memory) Set(ctx context.Context, path string, value any) error {
	return m.Update(ctx, path, func(Snapshot) (any, error) { return value, nil })
}

func (m *Memory) Update(ctx context.Context, path string, fn UpdateFunc) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current := Snapshot{Path: joinPath(segs), Value: clone(lookup(m.root, segs))}
	next, err := fn(current)
	if err != nil {
		return err
	}
	value, err := normalize(next)
	if err != nil {
		return err
	}
	m.root = assign(m.root, segs, value)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}
