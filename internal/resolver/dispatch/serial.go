// Package dispatch provides the execution contexts that completion callbacks run on.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher runs tasks on a designated execution context.
type Dispatcher interface {
	Dispatch(task func())
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(task func())

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(task func()) { f(task) }

// Serial runs tasks one at a time, in submission order, on a single goroutine.
// Dispatch never blocks. Tasks dispatched after Close are dropped.
type Serial struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closing bool
	done    chan struct{}
	logger  *slog.Logger
}

// NewSerial starts a Serial dispatcher.
func NewSerial() *Serial {
	s := &Serial{
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "dispatch"),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Dispatch enqueues task.
func (s *Serial) Dispatch(task func()) {
	if task == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		s.logger.Warn("task dispatched after close, dropping")
		return
	}
	s.queue = append(s.queue, task)
	s.cond.Signal()
}

// Close stops accepting tasks and waits for queued tasks to finish or ctx to end.
func (s *Serial) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.cond.Signal()
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serial) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closing {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.run(task)
	}
}

// run executes task, keeping the loop alive if it panics.
func (s *Serial) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatched task panicked", "panic", r)
		}
	}()
	task()
}
