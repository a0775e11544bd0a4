// Package sequence runs tasks one at a time, in the order they were posted.
//
// Every piece of tab group state is owned by a single Sequence. Goroutines
// that receive outside events (websocket reads, file watches, the TUI) never
// touch that state directly; they Post a closure instead.
package sequence

import (
	"context"
	"sync"
	"time"
)

// Sequence is a FIFO task queue drained by a single runner.
type Sequence struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
}

// New creates an empty Sequence.
func New() *Sequence {
	return &Sequence{wake: make(chan struct{}, 1)}
}

// Post queues task to run after everything already queued.
// Posting to a closed Sequence drops the task.
func (s *Sequence) Post(task func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// PostDelayed queues task once d has elapsed. A non-positive delay posts
// immediately. The returned func cancels the task if it has not been queued.
func (s *Sequence) PostDelayed(d time.Duration, task func()) (cancel func()) {
	if d <= 0 {
		s.Post(task)
		return func() {}
	}
	t := time.AfterFunc(d, func() { s.Post(task) })
	return func() { t.Stop() }
}

// Pending returns the number of queued tasks.
func (s *Sequence) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunUntilIdle runs queued tasks, including any they post, until the queue
// is empty. It returns the number of tasks run. It must not be called while
// Run is active.
func (s *Sequence) RunUntilIdle() int {
	n := 0
	for {
		task, ok := s.next()
		if !ok {
			return n
		}
		task()
		n++
	}
}

// Run drains the queue until ctx is cancelled, then closes the Sequence.
func (s *Sequence) Run(ctx context.Context) error {
	defer s.Close()
	for {
		s.RunUntilIdle()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// Close drops queued tasks and rejects new ones.
func (s *Sequence) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tasks = nil
}

func (s *Sequence) next() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil, false
	}
	task := s.tasks[0]
	s.tasks[0] = nil
	s.tasks = s.tasks[1:]
	return task, true
}
