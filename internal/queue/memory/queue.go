// Package memory provides the in-process work queue shared by the worker pool.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Specoptor/trendyol/internal/harvest"
)

// ErrDrained is returned by Dequeue once the queue is closed and empty.
var ErrDrained = harvest.ErrQueueDrained

// Queue is a bounded in-memory FIFO with context-aware operations.
type Queue struct {
	ch      chan harvest.WorkItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan harvest.WorkItem, capacity),
	}
}

// Fill builds a closed queue holding exactly the given items.
func Fill(ctx context.Context, items []harvest.WorkItem) (*Queue, error) {
	q := NewQueue(len(items))
	for _, it := range items {
		if err := q.Enqueue(ctx, it); err != nil {
			return nil, err
		}
	}
	q.Close()
	return q, nil
}

// Enqueue pushes an item into the queue or returns if the context ends.
// Close waits for blocked Enqueue calls to finish.
func (q *Queue) Enqueue(ctx context.Context, item harvest.WorkItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return errors.New("enqueue on closed queue")
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (harvest.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return harvest.WorkItem{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return harvest.WorkItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return harvest.WorkItem{}, ErrDrained
		}
		return item, nil
	}
}

// TryDequeue pops an item without blocking.
func (q *Queue) TryDequeue() (harvest.WorkItem, bool) {
	select {
	case item, ok := <-q.ch:
		return item, ok
	default:
		return harvest.WorkItem{}, false
	}
}

// Len reports the number of items still queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting items. Queued items remain available to Dequeue.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
