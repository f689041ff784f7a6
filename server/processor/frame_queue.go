package processor

import (
	"errors"
	"sync"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
)

var (
	ErrFrameDropped   = errors.New("frame dropped by a newer frame")
	ErrStopped        = errors.New("camera stream stopped")
	ErrTooManyCameras = errors.New("camera limit reached")
)

type frameResult struct {
	score models.FusedScore
	err   error
}

type queuedFrame struct {
	frame models.Frame
	// result is nil for frames submitted without a waiter.
	result chan frameResult
}

func (q queuedFrame) reply(score models.FusedScore, err error) {
	if q.result != nil {
		q.result <- frameResult{score: score, err: err}
	}
}

// frameQueue is a latest-wins buffer. Pushing into a full queue evicts the
// oldest frame instead of blocking the producer.
type frameQueue struct {
	mu     sync.Mutex
	items  []queuedFrame
	depth  int
	ready  chan struct{}
	closed bool
}

func newFrameQueue(depth int) *frameQueue {
	if depth < 1 {
		depth = 1
	}
	return &frameQueue{
		items: make([]queuedFrame, 0, depth),
		depth: depth,
		ready: make(chan struct{}, 1),
	}
}

func (q *frameQueue) push(item queuedFrame) (*queuedFrame, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrStopped
	}

	var evicted *queuedFrame
	if len(q.items) >= q.depth {
		oldest := q.items[0]
		evicted = &oldest
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, item)

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted, nil
}

func (q *frameQueue) pop() (queuedFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return queuedFrame{}, false
	}
	item := q.items[0]
	copy(q.items, q.items[1:])
	q.items[len(q.items)-1] = queuedFrame{}
	q.items = q.items[:len(q.items)-1]
	return item, true
}

// close refuses further frames and hands back whatever was still queued.
func (q *frameQueue) close() []queuedFrame {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	pending := q.items
	q.items = nil
	return pending
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
