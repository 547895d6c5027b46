package saga

import (
	"container/heap"
	"sync"
	"time"
)

// resumeMsg is what a suspended body receives when it continues.
type resumeMsg struct {
	value any
	err   error
}

// resumption continues task t from the wait identified by seq.
type resumption struct {
	task *Task
	seq  uint64
	msg  resumeMsg
	call bool

	// onStale runs on the loop when the wait was already released.
	onStale func()
}

// readyQueue is the FIFO of runnable resumptions. It is the only scheduler
// structure written from outside the loop goroutine.
type readyQueue struct {
	mu    sync.Mutex
	items []resumption
	wake  chan struct{}
}

func newReadyQueue() *readyQueue {
	return &readyQueue{wake: make(chan struct{}, 1)}
}

func (q *readyQueue) push(r resumption) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *readyQueue) pop() (resumption, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return resumption{}, false
	}
	r := q.items[0]
	q.items[0] = resumption{}
	q.items = q.items[1:]
	return r, true
}

func (q *readyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type timerEntry struct {
	deadline time.Time
	order    uint64
	task     *Task
	seq      uint64
	index    int
}

// timerHeap orders sleeping tasks by deadline, ties by registration order.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].order < h[j].order
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h *timerHeap) peek() *timerEntry {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

func (h *timerHeap) remove(e *timerEntry) {
	if e.index >= 0 && e.index < len(*h) && (*h)[e.index] == e {
		heap.Remove(h, e.index)
	}
}
