package storage

import (
	"context"
	"log"
	"sync"
)

// Task is a single unit of persistence work executed off the caller's
// goroutine. A non-nil error is logged by the queue and otherwise dropped;
// there are no retries anywhere in this core.
type Task func(ctx context.Context) error

// Queue makes the "mutate state, then persist fire-and-forget" pattern
// explicit: modules mutate their in-memory state synchronously, then enqueue
// a persistence task here. The publisher of the triggering event regains
// control before the write runs, so code that emits an event and immediately
// reads storage may observe stale data. Downstream consumers must react to
// further events, not rely on read-after-write consistency.
//
// A single worker goroutine executes tasks in enqueue order.
type Queue struct {
	tasks      chan queuedTask
	pending    sync.WaitGroup
	workerDone chan struct{}
	closeOnce  sync.Once
}

type queuedTask struct {
	name string
	run  Task
}

// NewQueue creates a queue with the given buffer size and starts its worker.
func NewQueue(bufferSize int) *Queue {
	if bufferSize < 1 {
		bufferSize = 64
	}

	q := &Queue{
		tasks:      make(chan queuedTask, bufferSize),
		workerDone: make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer close(q.workerDone)

	for task := range q.tasks {
		if err := task.run(context.Background()); err != nil {
			log.Printf("[Storage] %s failed: %v", task.name, err)
		}
		q.pending.Done()
	}
}

// Enqueue schedules a task. The name identifies the write in failure logs.
// Blocks only when the buffer is full. Must not be called after Close.
func (q *Queue) Enqueue(name string, task Task) {
	q.pending.Add(1)
	q.tasks <- queuedTask{name: name, run: task}
}

// Flush blocks until every task enqueued so far has finished executing.
func (q *Queue) Flush() {
	q.pending.Wait()
}

// Close drains outstanding tasks and stops the worker. Implements io.Closer.
// Safe to call multiple times.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.tasks)
		<-q.workerDone
	})
	return nil
}
