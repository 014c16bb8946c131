package repository

import (
	"sync"

	"github.com/okian/pickem/internal/domain/model"
)

// keyLocks hands out one mutex per pick key. Entries are reference counted
// and dropped once nobody holds or waits on them.
type keyLocks struct {
	mu sync.Mutex
	m  map[model.PickKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[model.PickKey]*keyLock)}
}

// Lock blocks until key is held and returns the matching unlock.
func (l *keyLocks) Lock(key model.PickKey) func() {
	l.mu.Lock()
	kl, ok := l.m[key]
	if !ok {
		kl = &keyLock{}
		l.m[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
