package host

import (
	"context"
	"sync"
)

type gilKey struct{}

// GIL is the host's global serialization lock. Any goroutine that touches
// host objects must hold it. It must never be held while waiting on a
// background task.
type GIL struct {
	mu sync.Mutex
}

// With runs fn while holding the lock. The context passed to fn records the
// acquisition, so calling With again with that context does not deadlock.
func (g *GIL) With(ctx context.Context, fn func(ctx context.Context) error) error {
	if Held(ctx, g) {
		return fn(ctx)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(context.WithValue(ctx, gilKey{}, g))
}

// Held reports whether ctx was produced by an acquisition of g.
func Held(ctx context.Context, g *GIL) bool {
	held, _ := ctx.Value(gilKey{}).(*GIL)
	return held == g
}
