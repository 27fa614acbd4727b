package pool

import (
	"container/heap"
	"sync"
	"time"

	"buildweaver/internal/job"
)

// jobHeap orders jobs by (priority, declaration sequence), the tie-break the
// spec requires everywhere a priority queue is consulted.
type jobHeap []*job.Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, k int) bool {
	if h[i].Priority != h[k].Priority {
		return h[i].Priority < h[k].Priority
	}
	return h[i].Sequence() < h[k].Sequence()
}

func (h jobHeap) Swap(i, k int) { h[i], h[k] = h[k], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*job.Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// priorityQueue is a thread-safe priority queue of jobs, with a blocking Pop
// with timeout and a non-blocking TryPop, matching the two ways the original
// worker loop consults queue.PriorityQueue (blocking get with a short
// timeout on the general queue, non-blocking get on the serial queue).
type priorityQueue struct {
	mu     sync.Mutex
	heap   jobHeap
	signal chan struct{}
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{signal: make(chan struct{}, 1)}
}

// Push adds j and wakes one blocked Pop, if any.
func (q *priorityQueue) Push(j *job.Job) {
	q.mu.Lock()
	heap.Push(&q.heap, j)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryPop returns the highest-priority job without blocking.
func (q *priorityQueue) TryPop() (*job.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.heap).(*job.Job), true
}

// Pop blocks up to timeout waiting for an item.
func (q *priorityQueue) Pop(timeout time.Duration) (*job.Job, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if j, ok := q.TryPop(); ok {
			return j, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		select {
		case <-q.signal:
		case <-time.After(remaining):
			return nil, false
		}
	}
}
