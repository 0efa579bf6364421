package corpus

import "sync"

// Locks is a set of mutexes keyed by action name. Entries are reference
// counted and dropped when the last holder unlocks. The zero value is ready
// to use.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the write lock for action and returns its release function.
func (l *Locks) Lock(action string) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*lockEntry)
	}
	e, ok := l.entries[action]
	if !ok {
		e = &lockEntry{}
		l.entries[action] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, action)
			}
			l.mu.Unlock()
		})
	}
}

// held returns the number of actions with a holder or waiter.
func (l *Locks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
