package engine

import "sync"

// lockTable is the in-process single-flight guard, keyed by instance id.
//
// Acquisition is non-blocking and non-queuing: a second dispatch for a held
// id is rejected immediately rather than awaited. Callers retry.
type lockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]struct{})}
}

// tryAcquire reports whether the lock for id was free and is now held.
func (l *lockTable) tryAcquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[id]; taken {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

// release frees the lock for id. Releasing an unheld id is a no-op.
func (l *lockTable) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}

// heldCount returns the number of held locks. Used in tests.
func (l *lockTable) heldCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
