package scheduler

import (
	"container/heap"
	"sync"

	"github.com/argusvision/framesched/internal/model"
)

// taskHeap orders tasks by capture timestamp, earliest first.
type taskHeap []*model.ProcessingTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].Timestamp < h[j].Timestamp }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*model.ProcessingTask)) }

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// frameQueue is one bounded, timestamp-ordered queue of admitted tasks.
// Safe for concurrent producers; the dispatch loop is the single consumer.
type frameQueue struct {
	mu       sync.Mutex
	capacity int
	tasks    taskHeap
}

func newFrameQueue(capacity int) *frameQueue {
	q := &frameQueue{capacity: capacity}
	heap.Init(&q.tasks)
	return q
}

// TryPush inserts a newly admitted task. It fails fast when the queue is at
// capacity; the caller counts the overflow. Never blocks.
func (q *frameQueue) TryPush(task *model.ProcessingTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) >= q.capacity {
		return false
	}
	heap.Push(&q.tasks, task)
	return true
}

// Requeue re-inserts a task that failed dispatch. Admitted tasks bypass the
// capacity bound: the overflow policy rejects newcomers, not elders.
func (q *frameQueue) Requeue(task *model.ProcessingTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	heap.Push(&q.tasks, task)
}

// Pop removes and returns the earliest task, or nil if the queue is empty.
func (q *frameQueue) Pop() *model.ProcessingTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}
	return heap.Pop(&q.tasks).(*model.ProcessingTask)
}

// Len returns the current queue depth.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
