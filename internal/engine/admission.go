package engine

import "context"

// Gate bounds the number of subprocesses running concurrently across all
// callers. Fairness between blocked acquirers is best-effort; none starve
// under bounded load.
type Gate struct {
	permits chan struct{}
}

// NewGate creates a gate with the given permit capacity.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{permits: make(chan struct{}, capacity)}
}

// Acquire blocks until a permit is available or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a held permit. It must be called exactly once per
// successful Acquire, on every exit path.
func (g *Gate) Release() {
	<-g.permits
}

// InUse returns the number of permits currently held.
func (g *Gate) InUse() int {
	return len(g.permits)
}

// Capacity returns the total permit count.
func (g *Gate) Capacity() int {
	return cap(g.permits)
}
