// Package scheduler provides the ambient timer queue that backs TCP
// retransmission timers and deferred established-callback delivery
// (spec.md §4.8/§4.10's "scheduler tick"). Callbacks never run on the
// daemon goroutine directly: each due callback is posted as a closure onto
// a single channel that the owning event loop drains, so the rest of the
// stack never needs a mutex to stay single-threaded cooperative (spec.md
// §5).
package scheduler

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a scheduled callback. The zero value is not usable; obtain one
// from Scheduler.After or Scheduler.At.
type Task struct {
	f         func()
	at        time.Time
	cancelled uint32 // accessed atomically
	index     int    // heap index, maintained by container/heap
}

// Cancel prevents f from running if it hasn't already been posted to the
// run loop. If the callback has already fired (or is concurrently about to
// fire), Cancel has no effect on that invocation.
func (t *Task) Cancel() {
	atomic.StoreUint32(&t.cancelled, 1)
}

// Scheduler runs a single daemon goroutine that wakes up for the next due
// Task and posts its callback onto Run. It never calls a callback itself,
// so the adapter's event loop remains the only goroutine that ever touches
// stack state.
type Scheduler struct {
	mu      sync.Mutex
	tasks   taskHeap
	cond    *sync.Cond
	run     chan func()
	stopped bool
}

// New starts a scheduler daemon goroutine. Run must be drained by the
// caller's event loop for posted callbacks to ever execute.
func New() *Scheduler {
	s := &Scheduler{run: make(chan func(), 64)}
	s.cond = sync.NewCond(&s.mu)
	go s.daemon()
	return s
}

// Run is the channel onto which due callbacks are posted. The owning event
// loop should select on it alongside its other work.
func (s *Scheduler) Run() <-chan func() {
	return s.run
}

// After schedules f to be posted to Run after d elapses.
func (s *Scheduler) After(d time.Duration, f func()) *Task {
	return s.At(time.Now().Add(d), f)
}

// At schedules f to be posted to Run at time t.
func (s *Scheduler) At(t time.Time, f func()) *Task {
	task := &Task{f: f, at: t}
	s.mu.Lock()
	heap.Push(&s.tasks, task)
	if s.tasks.Len() == 1 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	return task
}

// Stop halts the daemon goroutine. Pending tasks are discarded without
// being posted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) daemon() {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if s.tasks.Len() == 0 {
			s.cond.Wait()
			if s.stopped {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			continue
		}

		next := s.tasks[0]
		now := time.Now()
		if now.Before(next.at) {
			wait := next.at.Sub(now)
			s.mu.Unlock()
			time.Sleep(wait)
			continue
		}

		task := heap.Pop(&s.tasks).(*Task)
		s.mu.Unlock()

		if atomic.LoadUint32(&task.cancelled) == 0 {
			s.run <- task.f
		}
	}
}

type taskHeap []*Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *taskHeap) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
