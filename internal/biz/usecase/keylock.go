package usecase

import (
	"sync"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

// keyLocker hands out one mutex per key. Entries are reference counted and
// dropped once no caller holds or waits on them, so idle groups cost nothing.
type keyLocker struct {
	mu    sync.Mutex // guards locks bookkeeping only, never held while waiting
	locks map[domain.Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[domain.Key]*keyLock)}
}

// Lock blocks until the key is free and returns its unlock function
func (l *keyLocker) Lock(key domain.Key) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	return func() {
		kl.mu.Unlock()

		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// size returns the number of live entries
func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
