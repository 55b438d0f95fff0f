package dialog

import "sync"

// identityLocks serializes event handling per identity. Messages for different
// identities proceed concurrently; two messages for the same identity never
// race on the same dialog state.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the identity and returns its unlock function.
func (l *identityLocks) acquire(identity string) func() {
	l.mu.Lock()
	m, ok := l.locks[identity]
	if !ok {
		m = &sync.Mutex{}
		l.locks[identity] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
