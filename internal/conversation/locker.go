package conversation

import (
	"context"
	"sync"
)

// Locker serializes writers of a single conversation. Different ids never
// contend with each other.
type Locker interface {
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// LocalLocker is a table of per-id mutexes for a single process. Entries
// are dropped once nobody holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker creates an empty lock table
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until id is free or ctx is done
func (l *LocalLocker) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[id]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[id] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-k.ch
				l.release(id, k)
			})
		}, nil
	case <-ctx.Done():
		l.release(id, k)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(id string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, id)
	}
}

// size is the number of live entries, for tests
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
