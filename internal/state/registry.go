package state

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/docstore"
)

var ErrRegistryClosed = errors.New("state registry closed")

const (
	DefaultMaxViews    = 1000
	DefaultIdleTimeout = 30 * time.Minute
)

var _ cache.Cleaner = (*Registry)(nil)

// Registry lazily starts one View per user and owns their lifetime. Views
// unused for the idle timeout are closed by CleanExpired, and starting a
// view beyond the limit closes the least recently used one.
type Registry struct {
	store docstore.Store
	appID string

	maxViews int
	idle     time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	views     map[string]*entry
	observers []func(userID, collection string)
	closed    bool
}

type entry struct {
	view     *View
	lastUsed time.Time
}

type Option func(*Registry)

// WithMaxViews caps the number of live views.
func WithMaxViews(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxViews = n
		}
	}
}

// WithIdleTimeout sets how long an unused view stays live.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

func NewRegistry(store docstore.Store, appID string, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		store:    store,
		appID:    appID,
		maxViews: DefaultMaxViews,
		idle:     DefaultIdleTimeout,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		views:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers fn for every current and future View. An empty
// collection tells fn that the user's view was evicted.
func (r *Registry) OnChange(fn func(userID, collection string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
	for userID, e := range r.views {
		e.view.OnChange(func(c string) { fn(userID, c) })
	}
}

// View returns the user's View, starting it on first use, and waits until
// it holds a first snapshot of every collection.
func (r *Registry) View(ctx context.Context, userID string) (*View, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	var evicted map[string]*View
	e, ok := r.views[userID]
	if !ok {
		v, err := Start(r.ctx, r.store, docstore.Scope{AppID: r.appID, UserID: userID})
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		for _, fn := range r.observers {
			v.OnChange(func(c string) { fn(userID, c) })
		}
		if len(r.views) >= r.maxViews {
			evicted = r.evictOldestLocked()
		}
		e = &entry{view: v}
		r.views[userID] = e
		slog.Debug("State view started", "user_id", userID, "views", len(r.views))
	}
	e.lastUsed = r.now()
	v := e.view
	r.mu.Unlock()

	r.closeViews(evicted, "capacity")

	if err := v.WaitReady(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// CleanExpired closes views idle for longer than the idle timeout and
// returns how many were closed.
func (r *Registry) CleanExpired() int {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0
	}
	cutoff := r.now().Add(-r.idle)
	expired := make(map[string]*View)
	for userID, e := range r.views {
		if e.lastUsed.Before(cutoff) {
			expired[userID] = e.view
			delete(r.views, userID)
		}
	}
	r.mu.Unlock()

	r.closeViews(expired, "idle")
	return len(expired)
}

func (r *Registry) evictOldestLocked() map[string]*View {
	var (
		oldest string
		at     time.Time
	)
	for userID, e := range r.views {
		if oldest == "" || e.lastUsed.Before(at) {
			oldest, at = userID, e.lastUsed
		}
	}
	if oldest == "" {
		return nil
	}
	v := r.views[oldest].view
	delete(r.views, oldest)
	return map[string]*View{oldest: v}
}

// closeViews closes views already removed from the registry and tells the
// observers, so state derived from them is dropped.
func (r *Registry) closeViews(views map[string]*View, reason string) {
	if len(views) == 0 {
		return
	}
	r.mu.Lock()
	observers := append(([]func(string, string))(nil), r.observers...)
	r.mu.Unlock()

	for userID, v := range views {
		if err := v.Close(); err != nil {
			slog.Warn("State view close failed", "user_id", userID, "error", err)
		}
		for _, fn := range observers {
			fn(userID, "")
		}
		slog.Debug("State view evicted", "user_id", userID, "reason", reason)
	}
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Close tears down every View.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	views := r.views
	r.views = nil
	r.mu.Unlock()

	r.cancel()
	var errs []error
	for _, e := range views {
		if err := e.view.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
