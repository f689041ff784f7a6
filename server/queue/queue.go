package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("queue full")
	ErrStopped   = errors.New("queue stopped")
)

// Queue is a bounded work queue drained by a fixed pool of workers. Enqueue
// never blocks. A panicking handler is recovered and logged; the worker
// keeps running.
type Queue[T any] struct {
	name    string
	items   chan T
	workers int
	handler func(context.Context, T)
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	isRunning bool
	mutex     sync.RWMutex

	processed int64
	panics    int64
	statsMu   sync.Mutex
}

type Stats struct {
	Name               string  `json:"name"`
	CurrentSize        int     `json:"current_size"`
	MaxCapacity        int     `json:"max_capacity"`
	ActiveWorkers      int     `json:"active_workers"`
	IsRunning          bool    `json:"is_running"`
	UtilizationPercent float64 `json:"utilization_percent"`
	Processed          int64   `json:"processed"`
	Panics             int64   `json:"panics"`
}

func New[T any](name string, size, workers int, handler func(context.Context, T), logger *zap.Logger) *Queue[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue[T]{
		name:      name,
		items:     make(chan T, size),
		workers:   workers,
		handler:   handler,
		logger:    logger.With(zap.String("queue", name)),
		ctx:       ctx,
		cancel:    cancel,
		stopCh:    make(chan struct{}),
		isRunning: true,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	return q
}

func (q *Queue[T]) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case item := <-q.items:
			q.process(id, item)
		case <-q.stopCh:
			for {
				select {
				case item := <-q.items:
					q.process(id, item)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue[T]) process(id int, item T) {
	defer func() {
		if r := recover(); r != nil {
			q.statsMu.Lock()
			q.panics++
			q.statsMu.Unlock()
			q.logger.Error("Queue worker panic",
				zap.Int("worker", id),
				zap.Any("panic", r))
		}
	}()

	q.handler(q.ctx, item)

	q.statsMu.Lock()
	q.processed++
	q.statsMu.Unlock()
}

func (q *Queue[T]) Enqueue(item T) error {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	if !q.isRunning {
		return ErrStopped
	}

	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue[T]) Size() int {
	return len(q.items)
}

func (q *Queue[T]) Capacity() int {
	return cap(q.items)
}

func (q *Queue[T]) IsRunning() bool {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return q.isRunning
}

// Shutdown stops intake and lets workers drain what is already queued. If
// the drain outlasts timeout the handlers' context is cancelled.
func (q *Queue[T]) Shutdown(timeout time.Duration) error {
	q.mutex.Lock()
	if !q.isRunning {
		q.mutex.Unlock()
		return nil
	}
	q.isRunning = false
	q.mutex.Unlock()

	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-time.After(timeout):
		q.cancel()
		<-done
		return fmt.Errorf("%s queue: shutdown timeout exceeded", q.name)
	}
}

func (q *Queue[T]) GetQueueStats() Stats {
	q.statsMu.Lock()
	processed, panics := q.processed, q.panics
	q.statsMu.Unlock()

	return Stats{
		Name:               q.name,
		CurrentSize:        q.Size(),
		MaxCapacity:        q.Capacity(),
		ActiveWorkers:      q.workers,
		IsRunning:          q.IsRunning(),
		UtilizationPercent: float64(q.Size()) / float64(q.Capacity()) * 100,
		Processed:          processed,
		Panics:             panics,
	}
}
