// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"
	"slices"
	"sync"
)

// ErrQueueShutdown is the failure of queue operations after [Queue.Shutdown].
var ErrQueueShutdown = errors.New("fx: queue shut down")

// Strategy decides what [Queue.Offer] does when the queue is full.
type Strategy uint8

const (
	// BackPressure suspends the offering fiber until there is room.
	BackPressure Strategy = iota
	// Dropping discards the offered value.
	Dropping
	// Sliding discards the oldest queued value to make room.
	Sliding
)

// Queue is an asynchronous FIFO queue shared between fibers.
type Queue[A any] struct {
	mu       sync.Mutex
	capacity int
	strategy Strategy
	items    []A
	takers   []*Deferred[A]
	putters  []*putter[A]
	shutdown bool
}

type putter[A any] struct {
	value  A
	signal *Deferred[bool]
}

// NewBoundedQueue returns a queue holding at most capacity values whose
// offers wait for room.
func NewBoundedQueue[A any](capacity int) *Queue[A] {
	return newQueue[A](capacity, BackPressure)
}

// NewDroppingQueue returns a bounded queue that drops offers when full.
func NewDroppingQueue[A any](capacity int) *Queue[A] {
	return newQueue[A](capacity, Dropping)
}

// NewSlidingQueue returns a bounded queue that evicts its oldest value when full.
func NewSlidingQueue[A any](capacity int) *Queue[A] {
	return newQueue[A](capacity, Sliding)
}

// NewUnboundedQueue returns a queue without a capacity limit.
func NewUnboundedQueue[A any]() *Queue[A] {
	return newQueue[A](0, BackPressure)
}

func newQueue[A any](capacity int, strategy Strategy) *Queue[A] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[A]{capacity: capacity, strategy: strategy}
}

func (q *Queue[A]) full() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

// Offer adds a to the queue. It reports false when a was dropped.
//
// A back-pressured Offer that is interrupted after a taker made room for
// it still leaves a in the queue: the value is delivered at least once,
// while the offering fiber observes the interruption.
func (q *Queue[A]) Offer(a A) Effect[bool] {
	return Suspend(func() Effect[bool] {
		q.mu.Lock()
		if q.shutdown {
			q.mu.Unlock()
			return Fail[bool](ErrQueueShutdown)
		}
		if len(q.takers) > 0 {
			taker := q.takers[0]
			q.takers = q.takers[1:]
			q.mu.Unlock()
			taker.UnsafeDone(Succeeded(a))
			return Succeed(true)
		}
		if !q.full() {
			q.items = append(q.items, a)
			q.mu.Unlock()
			return Succeed(true)
		}
		switch q.strategy {
		case Dropping:
			q.mu.Unlock()
			return Succeed(false)
		case Sliding:
			q.items = append(q.items[1:], a)
			q.mu.Unlock()
			return Succeed(true)
		}
		p := &putter[A]{value: a, signal: NewDeferred[bool]()}
		q.putters = append(q.putters, p)
		q.mu.Unlock()
		return OnInterrupt(p.signal.Await(), Sync(func() struct{} {
			q.removePutter(p)
			return struct{}{}
		}))
	})
}

// OfferAll offers each of as in order and reports whether all were accepted.
func (q *Queue[A]) OfferAll(as []A) Effect[bool] {
	return Map(ForEach(as, q.Offer), func(oks []bool) bool {
		return !slices.Contains(oks, false)
	})
}

// Take removes the oldest value, waiting for one if the queue is empty.
func (q *Queue[A]) Take() Effect[A] {
	return Suspend(func() Effect[A] {
		q.mu.Lock()
		if len(q.items) > 0 {
			a := q.items[0]
			var zero A
			q.items[0] = zero
			q.items = q.items[1:]
			var admitted *putter[A]
			if len(q.putters) > 0 {
				admitted = q.putters[0]
				q.putters = q.putters[1:]
				q.items = append(q.items, admitted.value)
			}
			q.mu.Unlock()
			if admitted != nil {
				admitted.signal.UnsafeDone(Succeeded(true))
			}
			return Succeed(a)
		}
		if q.shutdown {
			q.mu.Unlock()
			return Fail[A](ErrQueueShutdown)
		}
		taker := NewDeferred[A]()
		q.takers = append(q.takers, taker)
		q.mu.Unlock()
		return OnInterrupt(taker.Await(), Sync(func() struct{} {
			q.cancelTake(taker)
			return struct{}{}
		}))
	})
}

// Poll removes the oldest value if there is one.
func (q *Queue[A]) Poll() Effect[Option[A]] {
	return Suspend(func() Effect[Option[A]] {
		q.mu.Lock()
		empty := len(q.items) == 0
		q.mu.Unlock()
		if empty {
			return Succeed(None[A]())
		}
		return Map(q.Take(), Some[A])
	})
}

// Size returns the number of queued values plus waiting offers, minus
// waiting takers.
func (q *Queue[A]) Size() Effect[int] {
	return Sync(func() int {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.items) + len(q.putters) - len(q.takers)
	})
}

// Capacity returns the capacity, or 0 for an unbounded queue.
func (q *Queue[A]) Capacity() int { return q.capacity }

// Shutdown fails every waiting offer and take with [ErrQueueShutdown] and
// makes further operations fail the same way. Queued values are dropped.
func (q *Queue[A]) Shutdown() Effect[struct{}] {
	return Sync(func() struct{} {
		q.mu.Lock()
		q.shutdown = true
		takers, putters := q.takers, q.putters
		q.takers, q.putters, q.items = nil, nil, nil
		q.mu.Unlock()
		for _, t := range takers {
			t.UnsafeDone(Halted[A](FailCause(ErrQueueShutdown)))
		}
		for _, p := range putters {
			p.signal.UnsafeDone(Halted[bool](FailCause(ErrQueueShutdown)))
		}
		return struct{}{}
	})
}

// IsShutdown reports whether the queue has been shut down.
func (q *Queue[A]) IsShutdown() Effect[bool] {
	return Sync(func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.shutdown
	})
}

// cancelTake withdraws an interrupted taker. A value an Offer already
// handed to it goes back to the head of the queue, or to the next taker.
func (q *Queue[A]) cancelTake(d *Deferred[A]) {
	q.mu.Lock()
	q.takers = slices.DeleteFunc(q.takers, func(x *Deferred[A]) bool { return x == d })
	q.mu.Unlock()

	exit, done := d.poll()
	if !done {
		return
	}
	a, ok := exit.Value()
	if !ok {
		return
	}
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return
	}
	if len(q.takers) > 0 {
		next := q.takers[0]
		q.takers = q.takers[1:]
		q.mu.Unlock()
		next.UnsafeDone(Succeeded(a))
		return
	}
	q.items = slices.Insert(q.items, 0, a)
	q.mu.Unlock()
}

func (q *Queue[A]) removePutter(p *putter[A]) {
	q.mu.Lock()
	q.putters = slices.DeleteFunc(q.putters, func(x *putter[A]) bool { return x == p })
	q.mu.Unlock()
}
