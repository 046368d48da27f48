package lfqueue_test

import (
	"sync"
	"testing"

	"github.com/ChrisB0-2/watch-sage/internal/lfqueue"
)

func TestPoolSizeClampedToOne(t *testing.T) {
	p := lfqueue.NewPool[string](0)
	defer p.Destroy()

	if p.Size() != 1 {
		t.Fatalf("pool size = %d, want 1", p.Size())
	}
}

func TestPoolOwnQueueFirst(t *testing.T) {
	p := lfqueue.NewPool[string](3)
	defer p.Destroy()

	p.Enqueue(0, "other")
	p.Enqueue(1, "mine")

	v, ok := p.Dequeue(1)
	if !ok || v != "mine" {
		t.Fatalf("Dequeue(1) = %q, %v; want own item first", v, ok)
	}
}

func TestPoolStealsFromPeers(t *testing.T) {
	p := lfqueue.NewPool[string](4)
	defer p.Destroy()

	p.Enqueue(3, "/some/dir/")

	v, ok := p.Dequeue(0)
	if !ok {
		t.Fatal("expected steal from peer queue")
	}
	if v != "/some/dir/" {
		t.Fatalf("stole %q, want %q", v, "/some/dir/")
	}
}

func TestPoolEmptySweep(t *testing.T) {
	p := lfqueue.NewPool[int](4)
	defer p.Destroy()

	if _, ok := p.Dequeue(2); ok {
		t.Fatal("Dequeue on empty pool returned an item")
	}
}

func TestPoolConcurrentStealing(t *testing.T) {
	const (
		workers = 4
		items   = 1000
	)

	p := lfqueue.NewPool[int](workers)
	defer p.Destroy()

	for i := 0; i < items; i++ {
		p.Enqueue(i%workers, i)
	}

	var mu sync.Mutex
	seen := make(map[int]bool, items)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				v, ok := p.Dequeue(w)
				if !ok {
					return
				}
				mu.Lock()
				if seen[v] {
					mu.Unlock()
					t.Errorf("value %d dequeued twice", v)
					return
				}
				seen[v] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(seen) != items {
		t.Fatalf("drained %d items, want %d", len(seen), items)
	}
}
