package lfqueue

// Pool is a fixed-size set of queues, one per worker. The size is chosen
// at construction and immutable afterward. Each worker enqueues only to
// its own queue (single logical producer per queue); any worker may
// dequeue from any queue while stealing.
type Pool[T any] struct {
	queues []*Queue[T]
}

// NewPool creates a pool of n queues. n is clamped to at least 1.
func NewPool[T any](n int) *Pool[T] {
	if n < 1 {
		n = 1
	}
	qs := make([]*Queue[T], n)
	for i := range qs {
		qs[i] = New[T]()
	}
	return &Pool[T]{queues: qs}
}

// Size returns the number of queues in the pool.
func (p *Pool[T]) Size() int {
	return len(p.queues)
}

// Enqueue pushes v onto the queue owned by owner.
func (p *Pool[T]) Enqueue(owner int, v T) {
	p.queues[owner].Enqueue(v)
}

// Dequeue pops from the owner's queue first; when it is empty every queue
// in the pool is tried in order (the owner's cheaply re-checked along the
// way) and the first hit is returned. A false return means every queue was
// observed empty during the sweep. That is a point-in-time observation,
// not a barrier: a peer may enqueue right after being observed empty.
func (p *Pool[T]) Dequeue(owner int) (T, bool) {
	if v, ok := p.queues[owner].Dequeue(); ok {
		return v, true
	}
	for _, q := range p.queues {
		if v, ok := q.Dequeue(); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Destroy releases every queue in the pool. It must be called with no
// concurrent producers or consumers.
func (p *Pool[T]) Destroy() {
	for _, q := range p.queues {
		q.Destroy()
	}
}
