// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"

	"code.hybscloud.com/kont"
)

// Effect is an immutable description of a computation that, when run on a
// fiber, succeeds with an A or fails with a [Cause].
//
// Effects are values: building one performs nothing. The zero Effect dies
// with [ErrNilEffect] when run.
type Effect[A any] struct {
	i instruction
}

// ErrNilEffect is the defect raised by running a zero [Effect].
var ErrNilEffect = errors.New("fx: nil effect")

var nilEffect instruction = &fail{cause: func() Cause { return DieCause(ErrNilEffect) }}

func (e Effect[A]) instr() instruction {
	if e.i == nil {
		return nilEffect
	}
	return e.i
}

func effectOf[A any](i instruction) Effect[A] { return Effect[A]{i: i} }

// Succeed returns an effect that succeeds with a.
func Succeed[A any](a A) Effect[A] {
	return effectOf[A](&succeedNow{value: a})
}

// Unit returns an effect that succeeds with struct{}{}.
func Unit() Effect[struct{}] {
	return effectOf[struct{}](unitNow)
}

// Sync returns an effect that calls f each time it runs.
// A panic in f becomes a defect.
func Sync[A any](f func() A) Effect[A] {
	return effectOf[A](&succeed{thunk: func() kont.Erased { return f() }})
}

// SyncErr returns an effect that calls f and fails with its error, if any.
func SyncErr[A any](f func() (A, error)) Effect[A] {
	return effectOf[A](&suspend{factory: func() instruction {
		a, err := f()
		if err != nil {
			return haltNow(FailCause(err))
		}
		return &succeedNow{value: a}
	}})
}

// Suspend defers construction of an effect until it runs.
func Suspend[A any](f func() Effect[A]) Effect[A] {
	return effectOf[A](&suspend{factory: func() instruction { return f().instr() }})
}

// Fail returns an effect that fails with the typed error err.
func Fail[A any](err error) Effect[A] {
	return Halt[A](FailCause(err))
}

// Die returns an effect that fails with the defect err.
func Die[A any](err error) Effect[A] {
	return Halt[A](DieCause(err))
}

// Halt returns an effect that fails with cause.
func Halt[A any](cause Cause) Effect[A] {
	return effectOf[A](haltNow(orEmpty(cause)))
}

// HaltWith returns an effect that fails with the cause built by f when it runs.
func HaltWith[A any](f func() Cause) Effect[A] {
	return effectOf[A](&fail{cause: f})
}

// Done returns an effect that completes with exit.
func Done[A any](exit Exit[A]) Effect[A] {
	if exit.failed {
		return Halt[A](exit.cause)
	}
	return Succeed(exit.value)
}

// FlatMap sequences f after e.
func FlatMap[A, B any](e Effect[A], f func(A) Effect[B]) Effect[B] {
	return effectOf[B](&flatMap{effect: e.instr(), k: func(v kont.Erased) instruction {
		return f(as[A](v)).instr()
	}})
}

// FoldCause handles both outcomes of e. onFailure receives the full cause,
// including defects and interruptions.
func FoldCause[A, B any](e Effect[A], onFailure func(Cause) Effect[B], onSuccess func(A) Effect[B]) Effect[B] {
	return effectOf[B](&fold{
		effect:    e.instr(),
		onFailure: func(c Cause) instruction { return onFailure(c).instr() },
		onSuccess: func(v kont.Erased) instruction { return onSuccess(as[A](v)).instr() },
	})
}

// Async suspends the fiber until register's callback is invoked.
// Only the first invocation of the callback has an effect. Interrupting
// the waiting fiber abandons the callback.
func Async[A any](register func(resume func(Effect[A]))) Effect[A] {
	return AsyncInterrupt(func(resume func(Effect[A])) kont.Either[Effect[struct{}], Effect[A]] {
		register(resume)
		return kont.Left[Effect[struct{}], Effect[A]](Unit())
	})
}

// AsyncInterrupt suspends the fiber until register's callback is invoked.
// register returns Left(canceler), run if the fiber is interrupted while
// waiting, or Right(effect) to continue immediately without waiting.
func AsyncInterrupt[A any](register func(resume func(Effect[A])) kont.Either[Effect[struct{}], Effect[A]], blockingOn ...FiberID) Effect[A] {
	return effectOf[A](&async{
		blockingOn: blockingOn,
		register: func(resume func(instruction)) kont.Either[instruction, instruction] {
			r := register(func(e Effect[A]) { resume(e.instr()) })
			if next, ok := r.GetRight(); ok {
				return kont.Right[instruction, instruction](next.instr())
			}
			canceler, _ := r.GetLeft()
			return kont.Left[instruction, instruction](canceler.instr())
		},
	})
}

// internalAsync is an async wait issued by the runtime itself.
func internalAsync(register func(resume func(instruction)) kont.Either[instruction, instruction], blockingOn ...FiberID) instruction {
	return &async{register: register, blockingOn: blockingOn, internal: true}
}

// Never suspends forever. It can only be interrupted.
func Never[A any]() Effect[A] {
	return effectOf[A](internalAsync(func(func(instruction)) kont.Either[instruction, instruction] {
		return kont.Left[instruction, instruction](unitNow)
	}))
}

// Yield hands the scheduler to other fibers before continuing.
func Yield() Effect[struct{}] {
	return effectOf[struct{}](&flatMap{effect: yieldNow{}, k: func(kont.Erased) instruction { return unitNow }})
}

// Interruptible runs e with interruption enabled.
func Interruptible[A any](e Effect[A]) Effect[A] {
	return effectOf[A](&interruptStatus{effect: e.instr(), interruptible: true})
}

// Uninterruptible runs e with interruption disabled. Interruption requests
// received meanwhile take effect once the region exits.
func Uninterruptible[A any](e Effect[A]) Effect[A] {
	return effectOf[A](&interruptStatus{effect: e.instr(), interruptible: false})
}

// InterruptMask captures the interruptibility in force when
// [UninterruptibleMask] was entered.
type InterruptMask struct {
	interruptible bool
}

// Restore runs e with the interruptibility captured by m.
func Restore[A any](m InterruptMask, e Effect[A]) Effect[A] {
	return effectOf[A](&interruptStatus{effect: e.instr(), interruptible: m.interruptible})
}

// UninterruptibleMask runs f uninterruptibly, passing a mask that
// [Restore] uses to reinstate the outer interruptibility.
func UninterruptibleMask[A any](f func(InterruptMask) Effect[A]) Effect[A] {
	return effectOf[A](&checkInterrupt{f: func(flag bool) instruction {
		return &interruptStatus{effect: f(InterruptMask{interruptible: flag}).instr(), interruptible: false}
	}})
}

// CheckInterruptible passes the current interruptibility to f.
func CheckInterruptible[A any](f func(interruptible bool) Effect[A]) Effect[A] {
	return effectOf[A](&checkInterrupt{f: func(flag bool) instruction { return f(flag).instr() }})
}

// Ensuring runs finalizer after e completes, whatever the outcome.
// The finalizer runs uninterruptibly; its failure is added to the outcome.
func Ensuring[A, B any](e Effect[A], finalizer Effect[B]) Effect[A] {
	return effectOf[A](&ensuring{effect: e.instr(), finalizer: finalizer.instr()})
}

// Access passes the environment installed by [Provide] to f.
func Access[R, A any](f func(R) Effect[A]) Effect[A] {
	return effectOf[A](&access{f: func(env kont.Erased) instruction { return f(as[R](env)).instr() }})
}

// Environment returns the environment installed by [Provide].
func Environment[R any]() Effect[R] {
	return Access(func(r R) Effect[R] { return Succeed(r) })
}

// Provide runs e with env as its environment.
func Provide[R, A any](env R, e Effect[A]) Effect[A] {
	return effectOf[A](&provide{env: env, effect: e.instr()})
}

// DescriptorWith passes a snapshot of the running fiber to f.
func DescriptorWith[A any](f func(Descriptor) Effect[A]) Effect[A] {
	return effectOf[A](&descriptor{f: func(fc *fiberContext) instruction { return f(fc.descriptor()).instr() }})
}

// GetDescriptor returns a snapshot of the running fiber.
func GetDescriptor() Effect[Descriptor] {
	return DescriptorWith(func(d Descriptor) Effect[Descriptor] { return Succeed(d) })
}

// SelfID returns the identity of the running fiber.
func SelfID() Effect[FiberID] {
	return effectOf[FiberID](&descriptor{f: func(fc *fiberContext) instruction { return &succeedNow{value: fc.id} }})
}

// Supervised runs e with sup added to the supervisors of the running fiber.
// Children forked by e inherit the combined supervisor.
func Supervised[A any](sup Supervisor, e Effect[A]) Effect[A] {
	return effectOf[A](&supervise{effect: e.instr(), supervisor: sup})
}

// Fork starts e on a child fiber in the ambient scope, which by default is
// the running fiber's own scope. The child is interrupted when the parent
// completes.
func Fork[A any](e Effect[A]) Effect[Fiber[A]] {
	return forkIn[A](e.instr(), nil)
}

// ForkDaemon starts e on a fiber in the global scope, detached from the
// running fiber's lifetime.
func ForkDaemon[A any](e Effect[A]) Effect[Fiber[A]] {
	return forkIn[A](e.instr(), GlobalScope())
}

// ForkIn starts e on a fiber registered in scope.
func ForkIn[A any](scope Scope, e Effect[A]) Effect[Fiber[A]] {
	return forkIn[A](e.instr(), scope)
}

func forkIn[A any](i instruction, scope Scope) Effect[Fiber[A]] {
	return effectOf[Fiber[A]](&flatMap{
		effect: &fork{effect: i, scope: scope},
		k: func(v kont.Erased) instruction {
			return &succeedNow{value: Fiber[A]{ctx: v.(*fiberContext)}}
		},
	})
}

// RaceWith runs left and right concurrently. The handler of whichever side
// completes first receives its exit and the other, still running, fiber.
// The loser is not interrupted automatically.
func RaceWith[A, B, C any](left Effect[A], right Effect[B], onLeft func(Exit[A], Fiber[B]) Effect[C], onRight func(Exit[B], Fiber[A]) Effect[C]) Effect[C] {
	return effectOf[C](&raceWith{
		left:  left.instr(),
		right: right.instr(),
		onLeft: func(exit Exit[kont.Erased], loser *fiberContext) instruction {
			return onLeft(typedExit[A](exit), Fiber[B]{ctx: loser}).instr()
		},
		onRight: func(exit Exit[kont.Erased], loser *fiberContext) instruction {
			return onRight(typedExit[B](exit), Fiber[A]{ctx: loser}).instr()
		},
	})
}
