package network

import (
	"sync"
	"time"

	"github.com/danmuck/dronectl/internal/protocol/frame"
)

// queueItem is one encoded command payload awaiting the send loop. The
// sequence number is assigned at transmit time, not at enqueue time.
type queueItem struct {
	channelID    uint8
	frameType    frame.Type
	payload      []byte
	pending      *Pending
	supersedeKey string
}

// sendQueue is the bounded outbound command queue. Enqueueing blocks briefly
// under backpressure. A low-latency command carries a supersede key; pushing
// a newer payload with the same key overwrites the older unsent frame in
// place instead of consuming capacity.
type sendQueue struct {
	mu     sync.Mutex
	items  []*queueItem
	latest map[string]*queueItem
	slots  chan struct{}
	notify chan struct{}
	closed bool
}

func newSendQueue(capacity int) *sendQueue {
	return &sendQueue{
		latest: make(map[string]*queueItem),
		slots:  make(chan struct{}, capacity),
		notify: make(chan struct{}, 1),
	}
}

func (q *sendQueue) push(it *queueItem, wait time.Duration) error {
	if it.supersedeKey != "" {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if old, ok := q.latest[it.supersedeKey]; ok {
			old.payload = it.payload
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()
	}

	select {
	case q.slots <- struct{}{}:
	default:
		if wait <= 0 {
			return ErrQueueFull
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case q.slots <- struct{}{}:
		case <-t.C:
			return ErrQueueFull
		}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.slots
		return ErrClosed
	}
	q.items = append(q.items, it)
	if it.supersedeKey != "" {
		q.latest[it.supersedeKey] = it
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *sendQueue) pop() (*queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	if it.supersedeKey != "" && q.latest[it.supersedeKey] == it {
		delete(q.latest, it.supersedeKey)
	}
	select {
	case <-q.slots:
	default:
	}
	return it, true
}

// wake signals that at least one item was enqueued since the last drain.
func (q *sendQueue) wake() <-chan struct{} {
	return q.notify
}

// close rejects further pushes and hands back whatever never got sent.
func (q *sendQueue) close() []*queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	rest := q.items
	q.items = nil
	q.latest = nil
	return rest
}
