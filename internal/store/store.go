// Package store is a hierarchical JSON store addressed by slash-separated
// paths. Every backend keeps one JSON document per top-level key and
// applies writes to a path inside that document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidPath = errors.New("invalid store path")
	ErrNotFound    = errors.New("no value at path")
	ErrShape       = errors.New("value has unexpected shape")
	ErrConflict    = errors.New("concurrent update conflict")
)

// Store reads and writes values at paths.
type Store interface {
	// Get returns a snapshot of the subtree at path. A missing value is
	// not an error; check Snapshot.Exists.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set overwrites the value at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error
	// Update atomically replaces the value at path with the result of fn.
	// An error from fn aborts the write and is returned as is. Backends
	// with optimistic concurrency may call fn more than once.
	Update(ctx context.Context, path string, fn UpdateFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// UpdateFunc computes the next value at a path from its current snapshot.
type UpdateFunc func(current Snapshot) (any, error)

// Snapshot is a point-in-time read of a path's subtree. Value holds the
// decoded JSON form: map[string]any, []any, string, float64, bool or nil.
type Snapshot struct {
	Path  string
	Value any
}

// Exists reports whether the path held a value.
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode unmarshals the snapshot into dst.
func (s Snapshot) Decode(dst any) error {
	if !s.Exists() {
		return fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	raw, err := json.Marshal(s.Value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrShape, s.Path, err)
	}
	return nil
}

// List returns the elements of a list value as raw JSON so callers can
// decode each element on its own.
func (s Snapshot) List() ([]json.RawMessage, error) {
	if !s.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	items, ok := s.Value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, not a list", ErrShape, s.Path, s.Value)
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
