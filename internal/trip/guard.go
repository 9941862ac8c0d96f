package trip

import "sync"

// Guard is the scan-debounce token owned by the core. A scanning surface
// acquires its token before invoking a trip operation and releases it only
// after the whole pipeline (state update, ledger, dispatch, UI feedback)
// has resolved or failed. A second physical scan arriving while the token
// is held is ignored, not queued, which prevents duplicate transitions from
// re-entrant scan callbacks.
type Guard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewGuard constructs an empty guard.
func NewGuard() *Guard {
	return &Guard{held: make(map[string]struct{})}
}

// TryAcquire takes the token for key if it is free and reports whether it
// was taken. Callers that get false must drop the scan.
func (g *Guard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, taken := g.held[key]; taken {
		return false
	}
	g.held[key] = struct{}{}
	return true
}

// Release frees the token for key. Releasing an unheld token is a no-op.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	delete(g.held, key)
	g.mu.Unlock()
}
