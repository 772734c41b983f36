// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"slices"
	"sync"

	"code.hybscloud.com/kont"
)

// Deferred is a single-assignment variable. The first completion wins and
// wakes every waiter; later completions are ignored.
type Deferred[A any] struct {
	mu      sync.Mutex
	exit    Exit[A]
	done    bool
	waiters []*deferredWaiter
}

type deferredWaiter struct {
	resume func(instruction)
}

// NewDeferred returns an empty Deferred.
func NewDeferred[A any]() *Deferred[A] {
	return &Deferred[A]{}
}

// MakeDeferred returns an effect that allocates an empty Deferred.
func MakeDeferred[A any]() Effect[*Deferred[A]] {
	return Sync(NewDeferred[A])
}

// Await waits until d is completed and then completes the same way.
func (d *Deferred[A]) Await() Effect[A] {
	return effectOf[A](internalAsync(func(resume func(instruction)) kont.Either[instruction, instruction] {
		d.mu.Lock()
		if d.done {
			exit := d.exit
			d.mu.Unlock()
			return kont.Right[instruction, instruction](Done(exit).instr())
		}
		w := &deferredWaiter{resume: resume}
		d.waiters = append(d.waiters, w)
		d.mu.Unlock()
		return kont.Left[instruction, instruction](syncUnit(func() { d.removeWaiter(w) }))
	}))
}

func (d *Deferred[A]) removeWaiter(w *deferredWaiter) {
	d.mu.Lock()
	d.waiters = slices.DeleteFunc(d.waiters, func(x *deferredWaiter) bool { return x == w })
	d.mu.Unlock()
}

// Complete runs e and completes d with its outcome. It reports whether this
// call completed d.
func (d *Deferred[A]) Complete(e Effect[A]) Effect[bool] {
	return FlatMap(Result(e), d.Done)
}

// Done completes d with exit. It reports whether this call completed d.
func (d *Deferred[A]) Done(exit Exit[A]) Effect[bool] {
	return Sync(func() bool { return d.UnsafeDone(exit) })
}

// Succeed completes d with a.
func (d *Deferred[A]) Succeed(a A) Effect[bool] { return d.Done(Succeeded(a)) }

// Fail completes d with the typed failure err.
func (d *Deferred[A]) Fail(err error) Effect[bool] { return d.Done(Halted[A](FailCause(err))) }

// Die completes d with the defect err.
func (d *Deferred[A]) Die(err error) Effect[bool] { return d.Done(Halted[A](DieCause(err))) }

// Halt completes d with cause.
func (d *Deferred[A]) Halt(cause Cause) Effect[bool] { return d.Done(Halted[A](cause)) }

// Interrupt completes d with an interruption by the running fiber.
func (d *Deferred[A]) Interrupt() Effect[bool] {
	return FlatMap(SelfID(), func(id FiberID) Effect[bool] {
		return d.Done(Halted[A](InterruptCause(id)))
	})
}

// Poll returns the exit of d if it has been completed.
func (d *Deferred[A]) Poll() Effect[Option[Exit[A]]] {
	return Sync(func() Option[Exit[A]] {
		if exit, ok := d.poll(); ok {
			return Some(exit)
		}
		return None[Exit[A]]()
	})
}

func (d *Deferred[A]) poll() (Exit[A], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exit, d.done
}

// IsDone reports whether d has been completed.
func (d *Deferred[A]) IsDone() Effect[bool] {
	return Sync(func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.done
	})
}

// UnsafeDone completes d outside of any fiber, for example from a callback
// on another goroutine. It reports whether this call completed d.
func (d *Deferred[A]) UnsafeDone(exit Exit[A]) bool {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return false
	}
	d.exit, d.done = exit, true
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	next := Done(exit).instr()
	for _, w := range waiters {
		w.resume(next)
	}
	return true
}
