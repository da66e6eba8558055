package fiber

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Scheduler multiplexes ready fibers over a fixed pool of worker
// goroutines, each owning its own queue. A fiber is pinned to one
// worker by hashing its identity, so a fiber's scheduling turns are
// serialized without any per-fiber locking: the same worker that parked
// it is the one that runs it again.
type Scheduler struct {
	queues []chan *Fiber
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewScheduler starts numWorkers workers, each with a queue of
// bufferSize ready fibers. Both arguments must be positive.
func NewScheduler(numWorkers, bufferSize int, logger *zap.Logger) *Scheduler {
	if numWorkers < 1 {
		panic("scheduler: number of workers cannot be 0")
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		queues: make([]chan *Fiber, numWorkers),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	ready := sync.WaitGroup{}
	for i := 0; i < numWorkers; i++ {
		ch := make(chan *Fiber, bufferSize)
		s.queues[i] = ch
		ready.Add(1)
		s.wg.Add(1)
		go func(ch chan *Fiber) {
			defer s.wg.Done()
			ready.Done()
			for {
				select {
				case f := <-ch:
					f.run()
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	ready.Wait()

	logger.Debug("scheduler started", zap.Int("workers", numWorkers))
	return s
}

// Enqueue makes a ready fiber runnable. Safe to call from any
// goroutine, including async resume callbacks.
func (s *Scheduler) Enqueue(f *Fiber) {
	ch := s.queueOf(f)
	select {
	case ch <- f:
	case <-s.ctx.Done():
	default:
		// Queue full; hand off without blocking the caller, which may
		// be a worker re-enqueueing its own fiber.
		go func() {
			select {
			case ch <- f:
			case <-s.ctx.Done():
			}
		}()
	}
}

func (s *Scheduler) queueOf(f *Fiber) chan *Fiber {
	if len(s.queues) == 1 {
		return s.queues[0]
	}
	idx := xxhash.Sum64String(f.id.UID) % uint64(len(s.queues))
	return s.queues[idx]
}

// Stop shuts the workers down. Fibers still queued are abandoned;
// callers should drive outstanding work to completion first.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}
