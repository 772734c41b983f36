// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// Scheduler runs fiber work.
//
// Tasks passed to one Scheduler must never run concurrently with each
// other: fiber state is only synchronized by this guarantee. Dispatch and
// DispatchLater may be called from any goroutine.
type Scheduler interface {
	// Dispatch queues task to run as soon as possible.
	Dispatch(task func())
	// DispatchLater queues task after d has elapsed. The returned function
	// cancels the timer if it has not fired yet.
	DispatchLater(d time.Duration, task func()) (cancel func())
}

// DefaultLoopCapacity is the ring capacity of an [EventLoop] created with a
// non-positive capacity.
const DefaultLoopCapacity = 1024

// EventLoop is the default [Scheduler]: a run queue drained by at most one
// goroutine at a time, started on demand and released when the queue
// empties.
//
// The queue is a bounded lock-free SPSC ring. Producers are serialized
// by a mutex; when the ring is full, tasks spill into an overflow list
// that is drained in order after the ring.
type EventLoop struct {
	mu       sync.Mutex
	ring     lfq.SPSC[func()]
	overflow []func()

	queued  atomix.Uint64
	running atomix.Uint32
}

// NewEventLoop returns an EventLoop whose ring holds capacity tasks.
func NewEventLoop(capacity int) *EventLoop {
	if capacity <= 0 {
		capacity = DefaultLoopCapacity
	}
	l := &EventLoop{}
	l.ring.Init(capacity)
	return l
}

// Dispatch implements [Scheduler].
func (l *EventLoop) Dispatch(task func()) {
	l.queued.Add(1)
	l.mu.Lock()
	if len(l.overflow) > 0 {
		l.overflow = append(l.overflow, task)
	} else if err := l.ring.Enqueue(&task); iox.IsWouldBlock(err) {
		l.overflow = append(l.overflow, task)
	}
	l.mu.Unlock()
	if l.running.CompareAndSwap(0, 1) {
		go l.drain()
	}
}

// DispatchLater implements [Scheduler].
func (l *EventLoop) DispatchLater(d time.Duration, task func()) func() {
	t := time.AfterFunc(d, func() { l.Dispatch(task) })
	return func() { t.Stop() }
}

// Pending returns the number of queued tasks not yet run.
func (l *EventLoop) Pending() int {
	return int(l.queued.Load())
}

func (l *EventLoop) drain() {
	for {
		l.runQueued()
		l.running.Store(0)
		// A producer may have queued after the last dequeue but lost the
		// race for running; pick its task up.
		if l.queued.Load() == 0 || !l.running.CompareAndSwap(0, 1) {
			return
		}
	}
}

func (l *EventLoop) runQueued() {
	for {
		task, err := l.ring.Dequeue()
		if err == nil {
			l.queued.Add(^uint64(0))
			task()
			continue
		}
		l.mu.Lock()
		batch := l.overflow
		l.overflow = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, task := range batch {
			l.queued.Add(^uint64(0))
			task()
		}
	}
}

// inlineScheduler queues tasks for an explicit drain on the caller's
// goroutine. It backs [RunSync] and has no timers.
type inlineScheduler struct {
	tasks []func()
}

func (s *inlineScheduler) Dispatch(task func()) {
	s.tasks = append(s.tasks, task)
}

func (s *inlineScheduler) DispatchLater(time.Duration, func()) func() {
	panic("fx: timers are unavailable in synchronous runs")
}

func (s *inlineScheduler) drain() {
	for len(s.tasks) > 0 {
		task := s.tasks[0]
		s.tasks[0] = nil
		s.tasks = s.tasks[1:]
		task()
	}
}
