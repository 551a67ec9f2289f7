// Package queue holds inbound messages awaiting the agent's attention.
// A single consumer drains it in arrival order; the reasoning loop
// peeks at the backlog without dequeuing so the oracle can see what
// else is waiting in the channel it is replying to.
package queue

import (
	"context"
	"sync"
	"time"
)

// Item is one inbound message waiting to be processed.
type Item struct {
	ID            string
	ChannelID     string
	AuthorID      string
	AuthorName    string
	Content       string
	Timestamp     time.Time
	IsDM          bool
	HasAttachment bool
	AttachmentURL string
}

// Queue is a FIFO with snapshot access to its pending items.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	notify chan struct{}
}

func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Put appends an item and wakes the consumer.
func (q *Queue) Put(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an item is available or the context ends. Only one
// goroutine may call Next.
func (q *Queue) Next(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// PeekChannel returns a copy of the pending items for one channel,
// oldest first, without removing anything.
func (q *Queue) PeekChannel(channelID string) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Item
	for _, item := range q.items {
		if item.ChannelID == channelID {
			out = append(out, item)
		}
	}
	return out
}

// PendingIDs reports the ids of every queued item. The history builder
// uses this to keep not-yet-processed messages out of the prompt.
func (q *Queue) PendingIDs() map[string]struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make(map[string]struct{}, len(q.items))
	for _, item := range q.items {
		ids[item.ID] = struct{}{}
	}
	return ids
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
