package docstore

import (
	"context"
	"log/slog"
	"sync"
)

// LoadFunc reads the current content of a collection for a subscriber.
type LoadFunc func(ctx context.Context, c Collection) ([]Document, error)

// Broker fans out change notifications to collection subscribers. Backends
// call Notify after a commit; each subscriber goroutine then reloads the
// collection, so pending notifications coalesce into one fresh snapshot.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[chan struct{}]struct{}
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan struct{}]struct{}),
		done: make(chan struct{}),
	}
}

func (b *Broker) Subscribe(ctx context.Context, c Collection, load LoadFunc) (<-chan Snapshot, error) {
	wake := make(chan struct{}, 1)
	wake <- struct{}{}

	path := c.Path()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.subs[path] == nil {
		b.subs[path] = make(map[chan struct{}]struct{})
	}
	b.subs[path][wake] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	out := make(chan Snapshot, 1)
	go func() {
		defer b.wg.Done()
		defer close(out)
		defer b.remove(path, wake)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-wake:
			}
			docs, err := load(ctx, c)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.WarnContext(ctx, "Subscription reload failed", "collection", path, "error", err)
				continue
			}
			select {
			case out <- Snapshot{Collection: c, Documents: docs}:
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

// Notify wakes every subscriber of the given collection paths.
func (b *Broker) Notify(paths ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		for wake := range b.subs[p] {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

func (b *Broker) remove(path string, wake chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[path], wake)
	if len(b.subs[path]) == 0 {
		delete(b.subs, path)
	}
}

// Close ends all subscriptions and waits for their goroutines to exit.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()
	b.wg.Wait()
}
