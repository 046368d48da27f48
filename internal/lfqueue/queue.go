// Package lfqueue provides an unbounded lock-free FIFO queue and a
// per-worker queue pool with work-stealing dequeue.
//
// The queue is a Michael-Scott style sentinel-based linked list driven by
// compare-and-swap loops. Nodes unlinked by Dequeue are not dropped
// immediately: they move to a time-stamped retire chain and are released
// by a periodic sweep once older than a grace period. Go's garbage
// collector already rules out use-after-free, so the chain exists to keep
// the reclamation contract observable (see the package tests) rather than
// to protect readers.
package lfqueue

import (
	"sync/atomic"
	"time"
)

// defaultGracePeriod is how long a dequeued node stays on the retire
// chain before a sweep may release it.
const defaultGracePeriod = 2 * time.Second

type node[T any] struct {
	value T

	next        atomic.Pointer[node[T]]
	nextRetired atomic.Pointer[node[T]]

	// Written before the node is published on the retire chain.
	retiredAt int64

	// Sentinel base nodes are created outside newNode and excluded from
	// allocation accounting.
	counted bool
}

// Queue is an unbounded FIFO safe for any number of concurrent producers
// and consumers. Enqueue and Dequeue never block; they spin only on CAS
// contention. The zero value is not usable; call New.
type Queue[T any] struct {
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]

	// Retire chain, oldest first. retireRoot is touched only while the
	// sweeping gate is held (and by Destroy, which requires exclusive
	// access anyway).
	retireRoot *node[T]
	retireTail atomic.Pointer[node[T]]
	sweeping   atomic.Bool

	size  atomic.Int64
	grace time.Duration

	// Test instrumentation; nil outside tests.
	onAlloc   func()
	onRelease func()
}

// New creates an empty queue with the default reclamation grace period.
func New[T any]() *Queue[T] {
	return newQueue[T](defaultGracePeriod)
}

func newQueue[T any](grace time.Duration) *Queue[T] {
	q := &Queue[T]{grace: grace}

	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	retireBase := &node[T]{}
	q.retireRoot = retireBase
	q.retireTail.Store(retireBase)

	return q
}

func (q *Queue[T]) newNode(v T) *node[T] {
	if q.onAlloc != nil {
		q.onAlloc()
	}
	return &node[T]{value: v, counted: true}
}

// release drops a node from reclamation accounting. The node may still be
// reachable through a stale tail pointer, so its links are left intact; a
// retired node always has a non-nil next, which keeps lagging producers
// from linking onto it.
func (q *Queue[T]) release(n *node[T]) {
	if n.counted && q.onRelease != nil {
		q.onRelease()
	}
}

// Enqueue appends v. It never blocks and never fails.
func (q *Queue[T]) Enqueue(v T) {
	n := q.newNode(v)
	for {
		tail := q.tail.Load()
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			break
		}
		// Another producer won the race; help advance tail and retry.
		q.tail.CompareAndSwap(tail, tail.next.Load())
	}
	q.size.Add(1)
	q.maybeSweep()
}

// Dequeue removes and returns the oldest item. The second return is false
// when the queue was observed empty. The node that held the returned value
// becomes the new sentinel; its predecessor is retired.
func (q *Queue[T]) Dequeue() (T, bool) {
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			q.maybeSweep()
			var zero T
			return zero, false
		}
		v := next.value
		if q.head.CompareAndSwap(head, next) {
			q.retire(head)
			q.size.Add(-1)
			q.maybeSweep()
			return v, true
		}
	}
}

// Len reports the approximate number of items. It may be transiently off
// under concurrent mutation but converges once mutations stop.
func (q *Queue[T]) Len() int {
	n := q.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// retire appends n to the retire chain, stamped with the current time.
// Same CAS protocol as the hot list: link onto the chain tail, help
// advance on contention.
func (q *Queue[T]) retire(n *node[T]) {
	n.retiredAt = time.Now().UnixNano()
	for {
		t := q.retireTail.Load()
		if t.nextRetired.CompareAndSwap(nil, n) {
			q.retireTail.CompareAndSwap(t, n)
			return
		}
		q.retireTail.CompareAndSwap(t, t.nextRetired.Load())
	}
}

// maybeSweep releases retired nodes older than the grace period. The CAS
// gate admits one sweeper at a time; contending callers skip instead of
// waiting. The chain tail is never released here, only by Destroy.
func (q *Queue[T]) maybeSweep() {
	if !q.sweeping.CompareAndSwap(false, true) {
		return
	}
	cutoff := time.Now().UnixNano() - q.grace.Nanoseconds()
	n := q.retireRoot
	tail := q.retireTail.Load()
	for n != tail && n.retiredAt <= cutoff {
		next := n.nextRetired.Load()
		q.release(n)
		n = next
	}
	q.retireRoot = n
	q.sweeping.Store(false)
}

// Destroy drains all remaining items, releases every node on the retire
// chain regardless of age, then releases the sentinel. It must be called
// with no concurrent producers or consumers; the queue is unusable after.
func (q *Queue[T]) Destroy() {
	for {
		if _, ok := q.Dequeue(); !ok {
			break
		}
	}

	n := q.retireRoot
	for n != nil {
		next := n.nextRetired.Load()
		q.release(n)
		n = next
	}
	q.retireRoot = nil
	q.retireTail.Store(nil)

	q.release(q.head.Load())
	q.head.Store(nil)
	q.tail.Store(nil)
	q.size.Store(0)
}
