package script

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/runlet/runlet/internal/events"
	"github.com/runlet/runlet/internal/log"
)

// Registry maintains the set of script names known to be runnable. It is
// refreshed by a background scan and consulted (never mutated) by the
// execution path. The name set is guarded by a single mutex; no other
// component holds a reference to it.
type Registry struct {
	store  *Store
	logger *slog.Logger
	events *events.Hub

	mu    sync.Mutex
	names map[string]struct{}
}

// NewRegistry creates an empty registry backed by store. Call Refresh or
// Watch to populate it.
func NewRegistry(store *Store) *Registry {
	return &Registry{
		store:  store,
		logger: log.WithComponent("registry"),
		names:  make(map[string]struct{}),
	}
}

// SetEvents attaches a hub. Refresh publishes a registry.refreshed event
// whenever the known set changes.
func (r *Registry) SetEvents(h *events.Hub) {
	r.events = h
}

// Refresh re-scans the backing directory, replacing the known-name set.
// A failed scan leaves the registry empty for this cycle; the error is
// logged, never surfaced to callers.
func (r *Registry) Refresh() {
	names, err := r.store.Scan()

	r.mu.Lock()

	prev := r.names
	r.names = make(map[string]struct{}, len(names))
	if err != nil {
		r.logger.Error("failed to scan scripts directory", "dir", r.store.Dir(), "error", err)
	} else {
		for _, name := range names {
			r.names[name] = struct{}{}
		}
		r.logger.Info("scanned scripts", "count", len(r.names))
	}
	changed := !sameNames(prev, r.names)
	count := len(r.names)

	r.mu.Unlock()

	if changed && r.events != nil {
		r.events.Publish("registry.refreshed", map[string]any{"count": count})
	}
}

func sameNames(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			return false
		}
	}
	return true
}

// Contains reports whether name is currently registered.
func (r *Registry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	return ok
}

// List returns the registered script names in sorted order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.names))
	for name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Register adds a name to the known set without waiting for the next scan,
// so a freshly created script is immediately runnable.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name] = struct{}{}
}

// Unregister removes a name from the known set.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, name)
}

// Watch refreshes the registry immediately and then on every interval tick
// until ctx is cancelled. A failed scan is retried unconditionally on the
// next tick; there is no backoff.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	r.logger.Info("registry watch started", "interval", interval)
	defer r.logger.Info("registry watch stopped")

	r.Refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh()
		}
	}
}
