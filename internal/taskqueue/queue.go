// Package taskqueue runs submitted tasks one at a time, in submission order,
// on a single worker goroutine. The project runtime uses it as its logical
// task queue: observer notifications and settings write-backs never race.
package taskqueue

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/eapache/queue"
)

// Queue is a FIFO serial executor.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	running bool
	closed  bool
	done    chan struct{}
	logger  *slog.Logger
}

// New starts a queue worker. Call Close to stop it.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		tasks:  queue.New(),
		done:   make(chan struct{}),
		logger: logger,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Submit enqueues task. It returns false once the queue is closed.
func (q *Queue) Submit(task func()) bool {
	if q == nil || task == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks.Add(task)
	q.cond.Broadcast()
	return true
}

// Dispatch satisfies observable.Dispatcher. Tasks submitted after Close
// run inline so late notifications are not lost.
func (q *Queue) Dispatch(task func()) {
	if !q.Submit(task) && task != nil {
		q.run(task)
	}
}

// Wait blocks until every task submitted so far has finished.
// It must not be called from inside a task.
func (q *Queue) Wait() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.tasks.Length() > 0 || q.running {
		if q.closed && q.isDone() {
			return
		}
		q.cond.Wait()
	}
}

// Close drains pending tasks and stops the worker.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) isDone() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for q.tasks.Length() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.tasks.Length() == 0 && q.closed {
			q.cond.Broadcast()
			q.mu.Unlock()
			return
		}
		task := q.tasks.Remove().(func())
		q.running = true
		q.mu.Unlock()

		q.run(task)

		q.mu.Lock()
		q.running = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task queue: task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}
