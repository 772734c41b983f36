// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"fmt"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
)

// evaluateNow runs the fiber from current until it suspends, yields or
// completes.
func (f *fiberContext) evaluateNow(current instruction) {
	for current != nil {
		current = f.runSlice(current)
	}
}

// runSlice interprets instructions until the fiber stops or a panic
// escapes user code. A recovered panic is returned as a defect to raise.
func (f *fiberContext) runSlice(current instruction) (next instruction) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := f.executing(); !ok {
				f.rt.logger.Error().
					Stringer("fiber", f.id).
					Interface("panic", r).
					Msg("fx: panic after fiber completion")
				next = nil
				return
			}
			next = dieNow(panicDefect(r))
		}
	}()

	maxOps := f.rt.maxOps
	opCount := 0
	for current != nil {
		st, ok := f.executing()
		if !ok {
			return nil
		}

		if f.shouldInterrupt() {
			interruption := st.suppressed
			if fl, ok := current.(*fail); ok {
				raised := fl.cause
				current = &fail{cause: func() Cause {
					c := raised()
					if Contains(c, interruption) {
						return c
					}
					return CauseThen(c, interruption)
				}}
			} else {
				current = haltNow(interruption)
			}
			f.setInterrupting(true)
		}

		if st.mailbox != nil {
			mb, resume := st.mailbox, current
			st.mailbox = nil
			current = thenDo(mb, func() instruction { return resume })
		}

		if opCount == maxOps {
			resume := current
			f.rt.scheduler.Dispatch(func() { f.evaluateNow(resume) })
			return nil
		}
		opCount++

		if sup := f.supervisor(); sup != NoSupervisor {
			sup.OnEffect(f.id, current.op())
		}
		current = f.step(current)
	}
	return nil
}

// step executes one instruction and returns the next one, or nil when the
// fiber suspends or completes.
func (f *fiberContext) step(current instruction) instruction {
	switch c := current.(type) {
	case *succeedNow:
		return f.nextInstr(c.value)

	case *succeed:
		return f.nextInstr(c.thunk())

	case *suspend:
		return c.factory()

	case *flatMap:
		switch inner := c.effect.(type) {
		case *succeedNow:
			return c.k(inner.value)
		case *succeed:
			return c.k(inner.thunk())
		case yieldNow:
			f.yieldWith(&flatMap{effect: unitNow, k: c.k})
			return nil
		}
		f.pushFrame(&applyFrame{k: c.k})
		return c.effect

	case *fold:
		f.pushFrame(&foldFrame{onFailure: c.onFailure, onSuccess: c.onSuccess})
		return c.effect

	case *fail:
		cause := c.cause()
		if f.unwindStack() {
			cause = StripFailures(cause)
		}
		if f.isStackEmpty() {
			f.setInterrupting(true)
			return f.done(Halted[kont.Erased](cause))
		}
		f.setInterrupting(false)
		return f.nextInstr(cause)

	case *async:
		return f.enterAsyncInstr(c)

	case *fork:
		return f.nextInstr(f.fork(c.effect, c.scope))

	case *interruptStatus:
		if c.interruptible == f.isInterruptible() {
			return c.effect
		}
		f.pushInterruptStatus(c.interruptible)
		f.pushFrame(interruptExitFrame{})
		return c.effect

	case *checkInterrupt:
		return c.f(f.isInterruptible())

	case *access:
		return c.f(f.currentEnv())

	case *provide:
		f.pushEnv(c.env)
		f.pushFrame(&finalizerFrame{finalizer: syncUnit(f.popEnv)})
		return c.effect

	case *descriptor:
		return c.f(f)

	case *fiberRefModify:
		result, value := c.f(f.getLocal(c.ref))
		f.locals[c.ref] = value
		return f.nextInstr(result)

	case *fiberRefGetAll:
		return c.f(f.snapshotLocals())

	case *fiberRefLocally:
		old, had := f.locals[c.ref]
		f.locals[c.ref] = c.value
		ref := c.ref
		f.pushFrame(&finalizerFrame{finalizer: syncUnit(func() {
			if had {
				f.locals[ref] = old
			} else {
				delete(f.locals, ref)
			}
		})})
		return c.effect

	case *fiberRefDelete:
		delete(f.locals, c.ref)
		return f.nextInstr(struct{}{})

	case *fiberRefWith:
		return c.f(f.getLocal(c.ref))

	case *ensuring:
		f.pushFrame(&finalizerFrame{finalizer: c.finalizer})
		return c.effect

	case *supervise:
		f.pushSupervisor(Supervisors(f.supervisor(), c.supervisor))
		f.pushFrame(&finalizerFrame{finalizer: syncUnit(f.popSupervisor)})
		return c.effect

	case *raceWith:
		return f.raceWith(c)

	case yieldNow:
		f.yieldWith(&succeedNow{value: struct{}{}})
		return nil

	case *finish:
		return f.done(c.exit)
	}
	return dieNow(fmt.Errorf("fx: unknown instruction %T", current))
}

// yieldWith reschedules the fiber to continue with next.
func (f *fiberContext) yieldWith(next instruction) {
	f.rt.scheduler.Dispatch(func() { f.evaluateNow(next) })
}

func (f *fiberContext) enterAsyncInstr(c *async) instruction {
	if f.rt.syncOnly && !c.internal {
		return dieNow(ErrAsyncOperation)
	}
	epoch := f.asyncEpoch
	f.asyncEpoch++
	f.enterAsync(epoch, c.blockingOn)

	r := c.register(f.resumeAsync(epoch))
	if next, ok := r.GetRight(); ok {
		if f.exitAsync(epoch) {
			return next
		}
		return nil
	}
	canceler, _ := r.GetLeft()
	if canceler == nil {
		canceler = unitNow
	}
	f.setAsyncCanceler(epoch, canceler)
	if f.shouldInterrupt() && f.exitAsync(epoch) {
		f.setInterrupting(true)
		return f.cancelThenHalt(canceler)
	}
	return nil
}

// nextInstr feeds value to the innermost continuation, running finalizers
// on the way. With an empty stack the fiber completes.
func (f *fiberContext) nextInstr(value kont.Erased) instruction {
	for !f.isStackEmpty() {
		switch fr := f.popFrame().(type) {
		case *applyFrame:
			return fr.k(value)
		case *foldFrame:
			return fr.onSuccess(value)
		case interruptExitFrame:
			f.popInterruptStatus()
			// Re-enter the loop so a deferred interruption is raised here.
			return &succeedNow{value: value}
		case *finalizerFrame:
			f.pushInterruptStatus(false)
			return &fold{
				effect: fr.finalizer,
				onFailure: func(c Cause) instruction {
					f.popInterruptStatus()
					return haltNow(c)
				},
				onSuccess: func(kont.Erased) instruction {
					f.popInterruptStatus()
					return &succeedNow{value: value}
				},
			}
		}
	}
	return f.done(Succeeded(value))
}

// unwindStack pops frames looking for a failure handler. A finalizer stops
// the unwinding and re-raises the cause once it has run. Fold frames are
// skipped while an interruption is pending; the result reports whether any
// were.
func (f *fiberContext) unwindStack() (discardedFolds bool) {
	for !f.isStackEmpty() {
		switch fr := f.popFrame().(type) {
		case interruptExitFrame:
			f.popInterruptStatus()
		case *finalizerFrame:
			f.pushInterruptStatus(false)
			fin := fr.finalizer
			f.pushFrame(&applyFrame{k: func(v kont.Erased) instruction {
				cause := v.(Cause)
				return &fold{
					effect: fin,
					onFailure: func(fc Cause) instruction {
						f.popInterruptStatus()
						return haltNow(mergeFinalizerCause(cause, fc))
					},
					onSuccess: func(kont.Erased) instruction {
						f.popInterruptStatus()
						return haltNow(cause)
					},
				}
			}})
			return discardedFolds
		case *foldFrame:
			if f.interruptPending() {
				discardedFolds = true
				continue
			}
			f.pushFrame(&applyFrame{k: func(v kont.Erased) instruction { return fr.onFailure(v.(Cause)) }})
			return discardedFolds
		}
	}
	return discardedFolds
}

// mergeFinalizerCause appends the failure of a finalizer to the cause it
// ran for. Typed failures of the finalizer are dropped when the fiber was
// interrupted.
func mergeFinalizerCause(original, finalizer Cause) Cause {
	if IsInterrupted(original) {
		finalizer = StripFailures(finalizer)
	}
	if Contains(original, finalizer) {
		return original
	}
	return CauseThen(original, finalizer)
}

// raceFlag decides the winner of a race exactly once.
type raceFlag struct {
	v atomix.Uint32
}

func (r *raceFlag) decide() bool {
	return r.v.CompareAndSwap(0, 1)
}
