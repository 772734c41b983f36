// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"testing"

	"code.hybscloud.com/fx"
)

func TestDeferredCompletesOnce(t *testing.T) {
	d := fx.NewDeferred[int]()
	e := fx.FlatMap(fx.Fork(d.Await()), func(waiter fx.Fiber[int]) fx.Effect[[3]int] {
		return fx.FlatMap(d.Succeed(5), func(first bool) fx.Effect[[3]int] {
			return fx.FlatMap(d.Succeed(6), func(second bool) fx.Effect[[3]int] {
				return fx.Map(waiter.Join(), func(v int) [3]int {
					return [3]int{v, boolInt(first), boolInt(second)}
				})
			})
		})
	})
	if got := mustValue(t, e); got != [3]int{5, 1, 0} {
		t.Fatalf("got %v, want [5 1 0]", got)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestDeferredFailure(t *testing.T) {
	d := fx.NewDeferred[int]()
	e := fx.ZipRight(d.Fail(errA), d.Await())
	if fs := fx.Failures(mustCause(t, e)); len(fs) != 1 || fs[0] != errA {
		t.Fatalf("failures = %v", fs)
	}

	interrupted := fx.NewDeferred[int]()
	c := mustCause(t, fx.ZipRight(interrupted.Interrupt(), interrupted.Await()))
	if !fx.IsInterruptedOnly(c) {
		t.Fatalf("cause = %v, want interruption", c)
	}
}

func TestDeferredComplete(t *testing.T) {
	d := fx.NewDeferred[string]()
	calls := 0
	once := fx.Sync(func() string {
		calls++
		return "x"
	})
	e := fx.ZipRight(d.Complete(once), fx.ZipRight(d.Complete(once), d.Await()))
	if got := mustValue(t, e); got != "x" {
		t.Fatalf("got %q", got)
	}
	if calls != 2 {
		t.Fatalf("Complete ran its effect %d times, want 2", calls)
	}
}

func TestDeferredPoll(t *testing.T) {
	d := fx.NewDeferred[int]()
	before := mustValue(t, d.Poll())
	if before.IsSome() || mustValue(t, d.IsDone()) {
		t.Fatal("an empty Deferred reported completion")
	}
	if !d.UnsafeDone(fx.Succeeded(3)) {
		t.Fatal("UnsafeDone on an empty Deferred must complete it")
	}
	after, ok := mustValue(t, d.Poll()).Get()
	if v, _ := after.Value(); !ok || v != 3 {
		t.Fatalf("Poll = %v, %v", after, ok)
	}
}

func TestDeferredInterruptedWaiterLeaves(t *testing.T) {
	d := fx.NewDeferred[int]()
	e := fx.FlatMap(fx.Fork(d.Await()), func(waiter fx.Fiber[int]) fx.Effect[fx.Exit[int]] {
		return fx.ZipLeft(waiter.Interrupt(), d.Succeed(1))
	})
	exit := mustValue(t, e)
	if !fx.IsInterruptedOnly(exit.Cause()) {
		t.Fatalf("waiter exit = %v, want interruption", exit)
	}
}
