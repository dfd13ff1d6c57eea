package indexer

import (
	"errors"
	"sync/atomic"
)

// ErrIndexingInProgress is returned when an ingestion run is already active
var ErrIndexingInProgress = errors.New("indexing already in progress")

// IndexLock rejects overlapping ingestion runs instead of queueing them
type IndexLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire attempts to acquire the lock without blocking
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Run calls fn while holding the lock, or returns ErrIndexingInProgress
// without calling it
func (l *IndexLock) Run(fn func() error) error {
	if !l.TryAcquire() {
		return ErrIndexingInProgress
	}
	defer l.Release()
	return fn()
}

// Busy reports whether a run currently holds the lock
func (l *IndexLock) Busy() bool {
	return l.state.Load() == 1
}
