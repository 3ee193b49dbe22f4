package workflow

import "sync"

// userLocks serializes workflow steps per user id. Progress is persisted with
// last-write-wins semantics, so the read-modify-write of one step must not
// interleave with another step for the same user.
type userLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{entries: map[string]*lockEntry{}}
}

// acquire blocks until the caller holds the lock for userID and returns the
// release function. Entries are reclaimed once the last holder releases.
func (l *userLocks) acquire(userID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[userID]
	if !ok {
		entry = &lockEntry{}
		l.entries[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, userID)
		}
		l.mu.Unlock()
	}
}
