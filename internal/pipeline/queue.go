package pipeline

import (
	"context"
	"sync"

	"github.com/Lavryniukk/voice-translator/internal/audio"
)

// Queue is the unbounded FIFO handoff between the capture context and the
// driver. Push never blocks, so it is safe to call from the device callback.
type Queue struct {
	mu     sync.Mutex
	items  []audio.Segment
	closed bool
	notify chan struct{}

	onDepth func(depth int)
}

// NewQueue creates an empty queue. onDepth, when set, is called with the new
// depth after every push and receive.
func NewQueue(onDepth func(depth int)) *Queue {
	return &Queue{
		notify:  make(chan struct{}, 1),
		onDepth: onDepth,
	}
}

// Push appends seg. Segments pushed after Close are discarded.
func (q *Queue) Push(seg audio.Segment) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, seg)
	depth := len(q.items)
	q.mu.Unlock()

	q.signal()
	q.report(depth)
}

// Recv blocks until a segment is available, the queue is closed and drained,
// or ctx is done. ok is false in the latter two cases.
func (q *Queue) Recv(ctx context.Context) (seg audio.Segment, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			seg = q.items[0]
			q.items[0] = audio.Segment{}
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()

			q.report(depth)
			return seg, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return audio.Segment{}, false
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return audio.Segment{}, false
		}
	}
}

// Close stops accepting segments; already queued segments can still be received
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

// Len returns the number of queued segments
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) report(depth int) {
	if q.onDepth != nil {
		q.onDepth(depth)
	}
}
