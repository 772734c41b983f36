// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"slices"

	"code.hybscloud.com/kont"
)

// Semaphore hands out permits. Acquirers that cannot be served wait in
// FIFO order; a waiter at the head of the queue holds the permits released
// so far until its full request is covered.
type Semaphore struct {
	state *Ref[semState]
}

// semState is Left(waiters) while anyone waits and Right(permits) otherwise.
type semState = kont.Either[[]semWaiter, int]

type semWaiter struct {
	signal    *Deferred[struct{}]
	remaining int
}

// reservation is the outcome of an acquire request: wait for the permits,
// or cancel to give back what was taken.
type reservation struct {
	wait   Effect[struct{}]
	cancel Effect[struct{}]
}

// NewSemaphore returns a semaphore holding permits.
func NewSemaphore(permits int) *Semaphore {
	return &Semaphore{state: NewRef(kont.Right[[]semWaiter](permits))}
}

// MakeSemaphore returns an effect that allocates a semaphore.
func MakeSemaphore(permits int) Effect[*Semaphore] {
	return Sync(func() *Semaphore { return NewSemaphore(permits) })
}

// Available returns the free permits, or minus the permits still owed to
// waiters when any are queued.
func (s *Semaphore) Available() Effect[int] {
	return Map(s.state.Get(), func(st semState) int {
		if permits, ok := st.GetRight(); ok {
			return permits
		}
		queue, _ := st.GetLeft()
		owed := 0
		for _, w := range queue {
			owed += w.remaining
		}
		return -owed
	})
}

// AcquireN takes n permits, waiting until they are available. Interrupting
// the wait returns the permits taken so far.
func (s *Semaphore) AcquireN(n int) Effect[struct{}] {
	return UninterruptibleMask(func(m InterruptMask) Effect[struct{}] {
		return FlatMap(s.reserve(n), func(r reservation) Effect[struct{}] {
			return s.awaitReservation(m, r)
		})
	})
}

// Acquire takes one permit.
func (s *Semaphore) Acquire() Effect[struct{}] { return s.AcquireN(1) }

// ReleaseN returns n permits, serving queued acquirers in order.
func (s *Semaphore) ReleaseN(n int) Effect[struct{}] {
	return FlatMap(ModifyRef(s.state, func(st semState) ([]*Deferred[struct{}], semState) {
		next, wake := releasePermits(st, n)
		return wake, next
	}), wakeAll)
}

// Release returns one permit.
func (s *Semaphore) Release() Effect[struct{}] { return s.ReleaseN(1) }

// WithPermitsN runs e holding n permits and returns them afterwards.
// Waiting for the permits is interruptible; e itself runs uninterruptibly
// unless it re-enables interruption.
func WithPermitsN[A any](s *Semaphore, n int, e Effect[A]) Effect[A] {
	return UninterruptibleMask(func(m InterruptMask) Effect[A] {
		return FlatMap(s.reserve(n), func(r reservation) Effect[A] {
			return ZipRight(s.awaitReservation(m, r), Ensuring(e, s.ReleaseN(n)))
		})
	})
}

// WithPermit runs e holding one permit.
func WithPermit[A any](s *Semaphore, e Effect[A]) Effect[A] {
	return WithPermitsN(s, 1, e)
}

func (s *Semaphore) awaitReservation(m InterruptMask, r reservation) Effect[struct{}] {
	return FoldCause(Restore(m, r.wait),
		func(c Cause) Effect[struct{}] { return ZipRight(r.cancel, Halt[struct{}](c)) },
		Succeed[struct{}],
	)
}

// reserve takes what is available of n permits and queues for the rest.
func (s *Semaphore) reserve(n int) Effect[reservation] {
	return ModifyRef(s.state, func(st semState) (reservation, semState) {
		if permits, ok := st.GetRight(); ok && permits >= n {
			return reservation{wait: Unit(), cancel: s.ReleaseN(n)}, kont.Right[[]semWaiter](permits - n)
		}
		signal := NewDeferred[struct{}]()
		r := reservation{wait: signal.Await(), cancel: s.restore(signal, n)}
		if permits, ok := st.GetRight(); ok {
			return r, kont.Left[[]semWaiter, int]([]semWaiter{{signal: signal, remaining: n - permits}})
		}
		queue, _ := st.GetLeft()
		queue = append(slices.Clone(queue), semWaiter{signal: signal, remaining: n})
		return r, kont.Left[[]semWaiter, int](queue)
	})
}

// restore withdraws the request of signal and returns the permits it had
// been given. A request that was already served returns all n.
func (s *Semaphore) restore(signal *Deferred[struct{}], n int) Effect[struct{}] {
	return FlatMap(ModifyRef(s.state, func(st semState) ([]*Deferred[struct{}], semState) {
		if queue, ok := st.GetLeft(); ok {
			i := slices.IndexFunc(queue, func(w semWaiter) bool { return w.signal == signal })
			if i >= 0 {
				taken := n - queue[i].remaining
				rest := slices.Delete(slices.Clone(queue), i, i+1)
				next := kont.Left[[]semWaiter, int](rest)
				if len(rest) == 0 {
					next = kont.Right[[]semWaiter](0)
				}
				next, wake := releasePermits(next, taken)
				return wake, next
			}
		}
		next, wake := releasePermits(st, n)
		return wake, next
	}), wakeAll)
}

// releasePermits adds n permits to st, satisfying waiters from the head of
// the queue. It returns the new state and the waiters to wake.
func releasePermits(st semState, n int) (semState, []*Deferred[struct{}]) {
	var wake []*Deferred[struct{}]
	for {
		queue, waiting := st.GetLeft()
		if !waiting {
			permits, _ := st.GetRight()
			return kont.Right[[]semWaiter](permits + n), wake
		}
		if n == 0 {
			return st, wake
		}
		head := queue[0]
		if n < head.remaining {
			queue = slices.Clone(queue)
			queue[0].remaining -= n
			return kont.Left[[]semWaiter, int](queue), wake
		}
		wake = append(wake, head.signal)
		n -= head.remaining
		if len(queue) == 1 {
			st = kont.Right[[]semWaiter](0)
		} else {
			st = kont.Left[[]semWaiter, int](queue[1:])
		}
	}
}

func wakeAll(signals []*Deferred[struct{}]) Effect[struct{}] {
	return Sync(func() struct{} {
		for _, d := range signals {
			d.UnsafeDone(Succeeded(struct{}{}))
		}
		return struct{}{}
	})
}
