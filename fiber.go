// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"code.hybscloud.com/kont"
)

// Fiber is a handle on a running fiber that produces an A.
type Fiber[A any] struct {
	ctx *fiberContext
}

// ID returns the identity of the fiber.
func (fb Fiber[A]) ID() FiberID { return fb.ctx.id }

// Await waits for the fiber to complete and returns its exit.
// Interrupting the waiting fiber stops the wait, not the awaited fiber.
func (fb Fiber[A]) Await() Effect[Exit[A]] {
	return effectOf[Exit[A]](&flatMap{effect: fb.ctx.await(), k: func(v kont.Erased) instruction {
		return &succeedNow{value: typedExit[A](v.(Exit[kont.Erased]))}
	}})
}

// Join waits for the fiber, merges its fiber-local values into the running
// fiber and completes with the fiber's outcome.
func (fb Fiber[A]) Join() Effect[A] {
	return FlatMap(fb.Await(), func(exit Exit[A]) Effect[A] {
		return ZipRight(fb.InheritRefs(), Done(exit))
	})
}

// Interrupt interrupts the fiber on behalf of the running fiber and waits
// for it to complete. Interrupting a completed fiber returns its exit.
func (fb Fiber[A]) Interrupt() Effect[Exit[A]] {
	return effectOf[Exit[A]](&descriptor{f: func(self *fiberContext) instruction {
		return fb.InterruptAs(self.id).instr()
	}})
}

// InterruptAs interrupts the fiber on behalf of id and waits for it to complete.
func (fb Fiber[A]) InterruptAs(id FiberID) Effect[Exit[A]] {
	return effectOf[Exit[A]](thenDo(syncUnit(func() { fb.ctx.interruptAs(id) }), fb.Await().instr))
}

// InterruptFork requests interruption without waiting for completion.
func (fb Fiber[A]) InterruptFork() Effect[struct{}] {
	return effectOf[struct{}](&descriptor{f: func(self *fiberContext) instruction {
		fb.ctx.interruptAs(self.id)
		return unitNow
	}})
}

// Poll returns the exit of the fiber if it has completed.
func (fb Fiber[A]) Poll() Effect[Option[Exit[A]]] {
	return Sync(func() Option[Exit[A]] {
		if exit, ok := fb.ctx.poll(); ok {
			return Some(typedExit[A](exit))
		}
		return None[Exit[A]]()
	})
}

// IsDone reports whether the fiber has completed.
func (fb Fiber[A]) IsDone() Effect[bool] {
	return Sync(func() bool {
		_, ok := fb.ctx.poll()
		return ok
	})
}

// Status returns the current status of the fiber.
func (fb Fiber[A]) Status() Effect[Status] {
	return Sync(fb.ctx.status)
}

// InheritRefs merges the fiber's fiber-local values into the running fiber.
func (fb Fiber[A]) InheritRefs() Effect[struct{}] {
	return effectOf[struct{}](&descriptor{f: func(self *fiberContext) instruction {
		self.inheritRefs(fb.ctx)
		return unitNow
	}})
}

// EvalOn runs e on the fiber, between two of its instructions. When the
// fiber has already completed, orElse runs on the calling fiber instead.
func (fb Fiber[A]) EvalOn(e Effect[struct{}], orElse Effect[struct{}]) Effect[struct{}] {
	return effectOf[struct{}](&suspend{factory: func() instruction {
		if fb.ctx.evalOn(e.instr()) {
			return unitNow
		}
		return orElse.instr()
	}})
}
