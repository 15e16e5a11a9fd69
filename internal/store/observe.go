package store

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const subscriberBuffer = 8

// Observer streams snapshots of a path whenever it changes.
type Observer interface {
	// Observe sends the current snapshot of path, then a fresh snapshot
	// after every write that touches it. The channel closes when ctx ends.
	Observe(ctx context.Context, path string) (<-chan Snapshot, error)
}

// Observed wraps a Store and notifies observers after successful writes
// made through it. Writes made by other processes are not seen.
type Observed struct {
	Store
	logger log.Logger

	mu   sync.RWMutex
	subs map[string]map[chan Snapshot]struct{}
}

// NewObserved decorates inner with change notifications.
func NewObserved(inner Store, logger log.Logger) *Observed {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Observed{
		Store:  inner,
		logger: logger,
		subs:   make(map[string]map[chan Snapshot]struct{}),
	}
}

func (o *Observed) Set(ctx context.Context, path string, value any) error {
	if err := o.Store.Set(ctx, path, value); err != nil {
		return err
	}
	o.notify(ctx, path)
	return nil
}

func (o *Observed) Update(ctx context.Context, path string, fn UpdateFunc) error {
	if err := o.Store.Update(ctx, path, fn); err != nil {
		return err
	}
	o.notify(ctx, path)
	return nil
}

func (o *Observed) Observe(ctx context.Context, path string) (<-chan Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	key := joinPath(segs)
	ch := make(chan Snapshot, subscriberBuffer)

	o.mu.Lock()
	if _, ok := o.subs[key]; !ok {
		o.subs[key] = make(map[chan Snapshot]struct{})
	}
	o.subs[key][ch] = struct{}{}
	o.mu.Unlock()

	snap, err := o.Store.Get(ctx, key)
	if err != nil {
		o.unsubscribe(key, ch)
		return nil, err
	}
	select {
	case ch <- snap:
	default:
	}

	go func() {
		<-ctx.Done()
		o.unsubscribe(key, ch)
	}()
	return ch, nil
}

// Subscribers reports how many observers watch path.
func (o *Observed) Subscribers(path string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs[path])
}

func (o *Observed) unsubscribe(key string, ch chan Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	subscribers, ok := o.subs[key]
	if !ok {
		return
	}
	if _, ok := subscribers[ch]; !ok {
		return
	}
	delete(subscribers, ch)
	if len(subscribers) == 0 {
		delete(o.subs, key)
	}
	close(ch)
}

func (o *Observed) notify(ctx context.Context, written string) {
	segs, err := splitPath(written)
	if err != nil {
		return
	}
	written = joinPath(segs)

	o.mu.RLock()
	var paths []string
	for key := range o.subs {
		if related(key, written) {
			paths = append(paths, key)
		}
	}
	o.mu.RUnlock()

	for _, key := range paths {
		snap, err := o.Store.Get(context.WithoutCancel(ctx), key)
		if err != nil {
			level.Warn(o.logger).Log("msg", "observe refresh failed", "path", key, "err", err)
			continue
		}
		o.mu.RLock()
		for ch := range o.subs[key] {
			select {
			case ch <- snap:
			default:
				level.Debug(o.logger).Log("msg", "observer lagging, snapshot dropped", "path", key)
			}
		}
		o.mu.RUnlock()
	}
}
