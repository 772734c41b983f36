// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"
	"time"

	"code.hybscloud.com/kont"
)

// Map applies f to the success value of e.
func Map[A, B any](e Effect[A], f func(A) B) Effect[B] {
	return effectOf[B](&flatMap{effect: e.instr(), k: func(v kont.Erased) instruction {
		return &succeedNow{value: f(as[A](v))}
	}})
}

// As replaces the success value of e with b.
func As[A, B any](e Effect[A], b B) Effect[B] {
	return Map(e, func(A) B { return b })
}

// Void discards the success value of e.
func Void[A any](e Effect[A]) Effect[struct{}] {
	return As(e, struct{}{})
}

// ZipRight runs a then b and keeps the result of b.
func ZipRight[A, B any](a Effect[A], b Effect[B]) Effect[B] {
	return FlatMap(a, func(A) Effect[B] { return b })
}

// ZipLeft runs a then b and keeps the result of a.
func ZipLeft[A, B any](a Effect[A], b Effect[B]) Effect[A] {
	return FlatMap(a, func(x A) Effect[A] { return As(b, x) })
}

// ZipWith runs a then b and combines their results with f.
func ZipWith[A, B, C any](a Effect[A], b Effect[B], f func(A, B) C) Effect[C] {
	return FlatMap(a, func(x A) Effect[C] {
		return Map(b, func(y B) C { return f(x, y) })
	})
}

// Zip runs a then b and pairs their results.
func Zip[A, B any](a Effect[A], b Effect[B]) Effect[kont.Pair[A, B]] {
	return ZipWith(a, b, func(x A, y B) kont.Pair[A, B] { return kont.Pair[A, B]{Fst: x, Snd: y} })
}

// Tap runs f on the success value of e and keeps that value.
func Tap[A, B any](e Effect[A], f func(A) Effect[B]) Effect[A] {
	return FlatMap(e, func(a A) Effect[A] { return As(f(a), a) })
}

// Fold handles the typed failure or the success of e. Defects and
// interruptions propagate unchanged.
func Fold[A, B any](e Effect[A], onFailure func(error) Effect[B], onSuccess func(A) Effect[B]) Effect[B] {
	return FoldCause(e, func(c Cause) Effect[B] {
		if fs := Failures(c); len(fs) > 0 {
			return onFailure(fs[0])
		}
		return Halt[B](c)
	}, onSuccess)
}

// CatchAll recovers from the typed failure of e.
func CatchAll[A any](e Effect[A], h func(error) Effect[A]) Effect[A] {
	return Fold(e, h, Succeed[A])
}

// CatchAllCause recovers from any failure of e that reaches it.
func CatchAllCause[A any](e Effect[A], h func(Cause) Effect[A]) Effect[A] {
	return FoldCause(e, h, Succeed[A])
}

// MapError transforms the typed failure of e.
func MapError[A any](e Effect[A], f func(error) error) Effect[A] {
	return CatchAll(e, func(err error) Effect[A] { return Fail[A](f(err)) })
}

// OrElse runs that when e fails with a typed failure.
func OrElse[A any](e, that Effect[A]) Effect[A] {
	return CatchAll(e, func(error) Effect[A] { return that })
}

// Result turns the outcome of e into a successful [Exit].
func Result[A any](e Effect[A]) Effect[Exit[A]] {
	return FoldCause(e,
		func(c Cause) Effect[Exit[A]] { return Succeed(Halted[A](c)) },
		func(a A) Effect[Exit[A]] { return Succeed(Succeeded(a)) },
	)
}

// Absolve turns an [Exit] back into the outcome it describes.
func Absolve[A any](e Effect[Exit[A]]) Effect[A] {
	return FlatMap(e, Done[A])
}

// AsyncMaybe is like [Async], except that register may return an effect
// to continue with immediately instead of waiting for the callback.
func AsyncMaybe[A any](register func(resume func(Effect[A])) Option[Effect[A]]) Effect[A] {
	return AsyncInterrupt(func(resume func(Effect[A])) kont.Either[Effect[struct{}], Effect[A]] {
		if e, ok := register(resume).Get(); ok {
			return kont.Right[Effect[struct{}]](e)
		}
		return kont.Left[Effect[struct{}], Effect[A]](Unit())
	})
}

// Bracket acquires a resource uninterruptibly, passes it to use and always
// releases it. A failing release is added to the outcome of use.
func Bracket[R, A, B any](acquire Effect[R], use func(R) Effect[A], release func(R) Effect[B]) Effect[A] {
	return UninterruptibleMask(func(m InterruptMask) Effect[A] {
		return FlatMap(acquire, func(r R) Effect[A] {
			return Ensuring(Restore(m, use(r)), Suspend(func() Effect[B] { return release(r) }))
		})
	})
}

// BracketExit is like [Bracket], except that release sees the exit of use.
func BracketExit[R, A, B any](acquire Effect[R], use func(R) Effect[A], release func(R, Exit[A]) Effect[B]) Effect[A] {
	return UninterruptibleMask(func(m InterruptMask) Effect[A] {
		return FlatMap(acquire, func(r R) Effect[A] {
			return FlatMap(Result(Restore(m, use(r))), func(exit Exit[A]) Effect[A] {
				return FoldCause(Suspend(func() Effect[B] { return release(r, exit) }),
					func(c Cause) Effect[A] {
						if exit.failed {
							return Halt[A](CauseThen(exit.cause, c))
						}
						return Halt[A](c)
					},
					func(B) Effect[A] { return Done(exit) },
				)
			})
		})
	})
}

// OnExit runs cleanup with the exit of e once e completes.
func OnExit[A, B any](e Effect[A], cleanup func(Exit[A]) Effect[B]) Effect[A] {
	return BracketExit(Unit(),
		func(struct{}) Effect[A] { return e },
		func(_ struct{}, exit Exit[A]) Effect[B] { return cleanup(exit) },
	)
}

// OnError runs cleanup with the cause of e if e fails.
func OnError[A, B any](e Effect[A], cleanup func(Cause) Effect[B]) Effect[A] {
	return OnExit(e, func(exit Exit[A]) Effect[struct{}] {
		if exit.failed {
			return Void(cleanup(exit.cause))
		}
		return Unit()
	})
}

// OnInterrupt runs cleanup if e is interrupted.
func OnInterrupt[A, B any](e Effect[A], cleanup Effect[B]) Effect[A] {
	return OnExit(e, func(exit Exit[A]) Effect[struct{}] {
		if exit.failed && IsInterrupted(exit.cause) {
			return Void(cleanup)
		}
		return Unit()
	})
}

// InterruptSelf interrupts the running fiber. Inside an uninterruptible
// region the interruption can be observed by handlers and is raised again
// once the region exits.
func InterruptSelf[A any]() Effect[A] {
	return effectOf[A](&descriptor{f: func(fc *fiberContext) instruction {
		fc.interruptAs(fc.id)
		return haltNow(InterruptCause(fc.id))
	}})
}

// Sleep suspends the running fiber for d.
func Sleep(d time.Duration) Effect[struct{}] {
	return effectOf[struct{}](&descriptor{f: func(fc *fiberContext) instruction {
		return &async{register: func(resume func(instruction)) kont.Either[instruction, instruction] {
			stop := fc.rt.scheduler.DispatchLater(d, func() { resume(unitNow) })
			return kont.Left[instruction, instruction](syncUnit(stop))
		}}
	}})
}

// Delay runs e after d.
func Delay[A any](d time.Duration, e Effect[A]) Effect[A] {
	return ZipRight(Sleep(d), e)
}

// Timeout runs e for at most d. It returns None, after interrupting e,
// when d elapses first.
func Timeout[A any](e Effect[A], d time.Duration) Effect[Option[A]] {
	return RaceWith(e, Sleep(d),
		func(exit Exit[A], timer Fiber[struct{}]) Effect[Option[A]] {
			return ZipRight(timer.Interrupt(), Done(MapExit(exit, Some[A])))
		},
		func(exit Exit[struct{}], worker Fiber[A]) Effect[Option[A]] {
			return FlatMap(worker.Interrupt(), func(Exit[A]) Effect[Option[A]] {
				return ZipRight(Done(exit), Succeed(None[A]()))
			})
		},
	)
}

// Race returns the first successful result of left and right and
// interrupts the other side. It fails only when both fail.
func Race[A any](left, right Effect[A]) Effect[A] {
	return RaceWith(left, right, raceSuccess[A], raceSuccess[A])
}

func raceSuccess[A any](exit Exit[A], loser Fiber[A]) Effect[A] {
	if !exit.failed {
		return ZipRight(loser.Interrupt(), Done(exit))
	}
	return FlatMap(loser.Await(), func(other Exit[A]) Effect[A] {
		if other.failed {
			return Halt[A](CauseBoth(exit.cause, other.cause))
		}
		return ZipRight(loser.InheritRefs(), Done(other))
	})
}

// RaceFirst returns the outcome of whichever of left and right completes
// first, success or failure, and interrupts the other side.
func RaceFirst[A any](left, right Effect[A]) Effect[A] {
	return RaceWith(left, right, raceFirst[A], raceFirst[A])
}

func raceFirst[A any](exit Exit[A], loser Fiber[A]) Effect[A] {
	return ZipRight(loser.Interrupt(), Done(exit))
}

// ErrEmptyRace is the defect of [RaceAll] with no effects.
var ErrEmptyRace = errors.New("fx: race of no effects")

// RaceAll returns the outcome of the first of es to complete and
// interrupts the others.
func RaceAll[A any](es []Effect[A]) Effect[A] {
	if len(es) == 0 {
		return Die[A](ErrEmptyRace)
	}
	acc := es[0]
	for _, e := range es[1:] {
		acc = RaceFirst(acc, e)
	}
	return acc
}

// ForEach applies f to each element of as in order and collects the results.
func ForEach[A, B any](as []A, f func(A) Effect[B]) Effect[[]B] {
	return Suspend(func() Effect[[]B] {
		out := make([]B, 0, len(as))
		return Loop(0, func(i int) Effect[kont.Either[int, []B]] {
			if i == len(as) {
				return Succeed(kont.Right[int](out))
			}
			return Map(f(as[i]), func(b B) kont.Either[int, []B] {
				out = append(out, b)
				return kont.Left[int, []B](i + 1)
			})
		})
	})
}

// ForEachPar applies f to each element of as on its own fiber and collects
// the results in input order. The first failure interrupts the remaining
// fibers and fails the whole.
func ForEachPar[A, B any](as []A, f func(A) Effect[B]) Effect[[]B] {
	return Suspend(func() Effect[[]B] {
		failed := NewDeferred[[]B]()
		worker := func(a A) Effect[B] {
			return OnError(f(a), failed.Halt)
		}
		return FlatMap(ForEach(as, func(a A) Effect[Fiber[B]] { return Fork(worker(a)) }), func(fibers []Fiber[B]) Effect[[]B] {
			joined := ForEach(fibers, func(fb Fiber[B]) Effect[B] { return fb.Join() })
			return CatchAllCause(RaceFirst(joined, failed.Await()), func(c Cause) Effect[[]B] {
				return ZipRight(ForEach(fibers, func(fb Fiber[B]) Effect[Exit[B]] { return fb.Interrupt() }), Halt[[]B](c))
			})
		})
	})
}

// CollectAllPar runs es concurrently and collects their results in order.
func CollectAllPar[A any](es []Effect[A]) Effect[[]A] {
	return ForEachPar(es, func(e Effect[A]) Effect[A] { return e })
}

// Forever repeats e until it fails.
func Forever[A any](e Effect[A]) Effect[struct{}] {
	return Loop(struct{}{}, func(struct{}) Effect[kont.Either[struct{}, struct{}]] {
		return As(e, kont.Left[struct{}, struct{}](struct{}{}))
	})
}
