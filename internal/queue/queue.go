// Package queue is the bounded hand-off between the directory watcher and the
// upload workers.
package queue

import (
	"context"
	"errors"
	"fmt"
)

// DefaultCapacity is the queue bound used when none is configured.
const DefaultCapacity = 500

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue: closed")

// Task is one file to upload.
type Task struct {
	SourcePath        string
	DestinationFolder string
	DestinationName   string
}

func (t Task) String() string {
	return fmt.Sprintf("%s -> %s/%s", t.SourcePath, t.DestinationFolder, t.DestinationName)
}

// Queue is a capacity-bounded FIFO. Enqueue blocks while the queue is full;
// nothing is ever dropped. It is safe for concurrent producers and consumers.
type Queue struct {
	items chan Task
	done  chan struct{}
}

// New creates a Queue holding at most capacity tasks. A non-positive
// capacity uses DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Queue{
		items: make(chan Task, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue appends t, blocking until a slot frees, ctx is canceled or the
// queue is closed.
func (q *Queue) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- t:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue: enqueue %s: %w", t.SourcePath, ctx.Err())
	case <-q.done:
		return ErrClosed
	}
}

// Dequeue removes the oldest task, blocking until one is available or ctx is
// canceled. A canceled ctx wins over queued tasks, which stay in the queue.
// After Close it drains the remaining tasks and then returns ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}

	select {
	case t := <-q.items:
		return t, nil
	default:
	}

	select {
	case t := <-q.items:
		return t, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	case <-q.done:
		select {
		case t := <-q.items:
			return t, nil
		default:
			return Task{}, ErrClosed
		}
	}
}

// Close stops accepting tasks. Queued tasks remain available to Dequeue.
// Close must be called at most once.
func (q *Queue) Close() {
	close(q.done)
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap reports the queue bound.
func (q *Queue) Cap() int {
	return cap(q.items)
}
