package lfqueue

import "time"

// NewWithGrace builds a queue with a custom reclamation grace period so
// tests can force or forbid sweeps.
func NewWithGrace[T any](grace time.Duration) *Queue[T] {
	return newQueue[T](grace)
}

// SetAllocHooks wires counters around node allocation and release. Must be
// set before the queue is used concurrently.
func SetAllocHooks[T any](q *Queue[T], onAlloc, onRelease func()) {
	q.onAlloc = onAlloc
	q.onRelease = onRelease
}

// RetireChainLen counts counted nodes currently parked on the retire
// chain. Not safe to call concurrently with queue operations.
func RetireChainLen[T any](q *Queue[T]) int {
	count := 0
	for n := q.retireRoot; n != nil; n = n.nextRetired.Load() {
		if n.counted {
			count++
		}
	}
	return count
}
