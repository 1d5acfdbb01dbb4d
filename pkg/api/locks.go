package api

import (
	"slices"
	"sync"
)

// nameLocks serializes mutations per sketch name. Entries are reference
// counted and dropped once nobody holds or waits for them.
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{locks: make(map[string]*nameLock)}
}

// lock acquires the locks of all names in sorted order and returns the
// function releasing them. Duplicate names are locked once.
func (l *nameLocks) lock(names ...string) (unlock func()) {
	names = slices.Clone(names)
	slices.Sort(names)
	names = slices.Compact(names)

	held := make([]*nameLock, 0, len(names))
	for _, name := range names {
		l.mu.Lock()
		nl, ok := l.locks[name]
		if !ok {
			nl = &nameLock{}
			l.locks[name] = nl
		}
		nl.refs++
		l.mu.Unlock()

		nl.mu.Lock()
		held = append(held, nl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, names[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *nameLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
