// Package locker serializes disbursement per recipient. Without it, two
// concurrent requests for the same partner can each read a stale paid total
// and both conclude they have headroom.
package locker

import (
	"context"
	"sync"
)

// MemoryLocker is a keyed mutex for single-process deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*recipientLock
}

type recipientLock struct {
	ch   chan struct{}
	refs int
}

func NewMemory() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*recipientLock)}
}

// Lock blocks until the recipient lock is held or ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, recipient string) (func(), error) {
	l.mu.Lock()
	rl, ok := l.locks[recipient]
	if !ok {
		rl = &recipientLock{ch: make(chan struct{}, 1)}
		l.locks[recipient] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(recipient, rl, false)
		return nil, ctx.Err()
	}

	return func() { l.release(recipient, rl, true) }, nil
}

func (l *MemoryLocker) release(recipient string, rl *recipientLock, held bool) {
	if held {
		<-rl.ch
	}
	l.mu.Lock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, recipient)
	}
	l.mu.Unlock()
}
