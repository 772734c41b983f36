// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"testing"

	"code.hybscloud.com/fx"
)

func TestSemaphoreAcquireRelease(t *testing.T) {
	sem := fx.NewSemaphore(4)
	acquired := fx.ZipRight(fx.Fork(sem.AcquireN(3)), fx.ZipRight(fx.Yield(), sem.Available()))
	if got := mustValue(t, acquired); got != 1 {
		t.Fatalf("available after acquiring 3 of 4 = %d, want 1", got)
	}

	sem = fx.NewSemaphore(4)
	released := fx.ZipRight(fx.Fork(sem.ReleaseN(3)), fx.ZipRight(fx.Yield(), sem.Available()))
	if got := mustValue(t, released); got != 7 {
		t.Fatalf("available after releasing 3 onto 4 = %d, want 7", got)
	}
}

func TestSemaphoreWaitersServedInOrder(t *testing.T) {
	sem := fx.NewSemaphore(0)
	e := fx.FlatMap(fx.MakeRef([]int(nil)), func(order *fx.Ref[[]int]) fx.Effect[[]int] {
		waiter := func(n, permits int) fx.Effect[fx.Fiber[struct{}]] {
			return fx.Fork(fx.ZipRight(sem.AcquireN(permits), order.Update(func(s []int) []int { return append(s, n) })))
		}
		return fx.FlatMap(waiter(1, 2), func(first fx.Fiber[struct{}]) fx.Effect[[]int] {
			return fx.FlatMap(waiter(2, 1), func(second fx.Fiber[struct{}]) fx.Effect[[]int] {
				return fx.FlatMap(sem.Available(), func(owed int) fx.Effect[[]int] {
					if owed != -3 {
						return fx.Die[[]int](errC)
					}
					joinBoth := fx.ZipRight(first.Join(), second.Join())
					return fx.ZipRight(sem.ReleaseN(3), fx.ZipRight(joinBoth, order.Get()))
				})
			})
		})
	})
	got := mustValue(t, e)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("waiters served in order %v, want [1 2]", got)
	}
}

func TestWithPermitsInterruptedRestoresPermits(t *testing.T) {
	sem := fx.NewSemaphore(1)
	e := fx.FlatMap(fx.Fork(fx.WithPermitsN(sem, 2, fx.Succeed(1))), func(fb fx.Fiber[int]) fx.Effect[[3]int] {
		return fx.FlatMap(sem.Available(), func(waiting int) fx.Effect[[3]int] {
			return fx.FlatMap(fb.Interrupt(), func(exit fx.Exit[int]) fx.Effect[[3]int] {
				interrupted := 0
				if fx.IsInterruptedOnly(exit.Cause()) {
					interrupted = 1
				}
				return fx.Map(sem.Available(), func(after int) [3]int { return [3]int{waiting, after, interrupted} })
			})
		})
	})
	got := mustValue(t, e)
	if got != [3]int{-1, 1, 1} {
		t.Fatalf("available while waiting, after interruption, interrupted = %v, want [-1 1 1]", got)
	}
}

func TestWithPermitBodyIsUninterruptible(t *testing.T) {
	sem := fx.NewSemaphore(1)
	type result struct {
		exit      fx.Exit[struct{}]
		completed bool
		available int
	}
	e := fx.FlatMap(fx.MakeDeferred[struct{}](), func(latch *fx.Deferred[struct{}]) fx.Effect[result] {
		return fx.FlatMap(fx.MakeRef(false), func(completed *fx.Ref[bool]) fx.Effect[result] {
			body := fx.WithPermit(sem, fx.ZipRight(latch.Await(), completed.Set(true)))
			return fx.FlatMap(fx.Fork(body), func(fb fx.Fiber[struct{}]) fx.Effect[result] {
				steps := fx.ZipRight(fb.InterruptFork(), fx.ZipRight(latch.Succeed(struct{}{}), fb.Await()))
				return fx.FlatMap(steps, func(exit fx.Exit[struct{}]) fx.Effect[result] {
					return fx.ZipWith(completed.Get(), sem.Available(), func(ok bool, n int) result {
						return result{exit: exit, completed: ok, available: n}
					})
				})
			})
		})
	})
	got := mustValue(t, e)
	if !got.completed {
		t.Fatal("the body holding the permit was interrupted midway")
	}
	if !fx.IsInterruptedOnly(got.exit.Cause()) {
		t.Fatalf("exit = %v, want interruption after the body", got.exit)
	}
	if got.available != 1 {
		t.Fatalf("available = %d, want the permit returned", got.available)
	}
}

func TestWithPermitReleasesOnFailure(t *testing.T) {
	sem := fx.NewSemaphore(2)
	e := fx.ZipRight(fx.Result(fx.WithPermitsN(sem, 2, fx.Fail[int](errA))), sem.Available())
	if got := mustValue(t, e); got != 2 {
		t.Fatalf("available = %d, want 2", got)
	}
}
