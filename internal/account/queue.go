package account

import (
	"context"
	"sync"
)

type task func(ctx context.Context)

// taskQueue is an unbounded FIFO drained by a single worker. Pushing never
// blocks, so identity listeners can enqueue while the worker is busy.
type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []task
	closed bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *taskQueue) push(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)
	q.cond.Signal()
	return true
}

// pop blocks until a task is available. It returns false once closed; pending
// tasks are dropped on close.
func (q *taskQueue) pop() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	next := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return next, true
}

func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.tasks = nil
	q.cond.Broadcast()
}
