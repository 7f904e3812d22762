package protocol

import (
	"context"
	"encoding/json"
	"sync"
)

// queuedNotification is a notification accepted by the receive loop together
// with the handler captured at arrival.
type queuedNotification struct {
	method  string
	params  json.RawMessage
	handler NotificationHandler
}

// notificationQueue is an unbounded FIFO drained by a single goroutine.
type notificationQueue struct {
	mu      sync.Mutex
	items   []queuedNotification
	busy    bool
	waiters []chan struct{}
	wake    chan struct{}
}

func newNotificationQueue() *notificationQueue {
	return &notificationQueue{wake: make(chan struct{}, 1)}
}

func (q *notificationQueue) push(n queuedNotification) {
	q.mu.Lock()
	q.items = append(q.items, n)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest item. When the queue is empty it marks the consumer
// idle and releases idle waiters.
func (q *notificationQueue) next() (queuedNotification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.busy = false

		for _, w := range q.waiters {
			close(w)
		}

		q.waiters = nil

		return queuedNotification{}, false
	}

	n := q.items[0]
	q.items[0] = queuedNotification{}
	q.items = q.items[1:]
	q.busy = true

	return n, true
}

// waitIdle blocks until every queued notification has been handled.
func (q *notificationQueue) waitIdle(ctx context.Context) error {
	q.mu.Lock()

	if len(q.items) == 0 && !q.busy {
		q.mu.Unlock()

		return nil
	}

	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
