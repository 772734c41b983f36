// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"context"
	"testing"
	"time"

	"code.hybscloud.com/fx"
	"code.hybscloud.com/kont"
)

// newRuntime returns a runtime that keeps test output quiet.
func newRuntime(opts ...fx.RuntimeOption) *fx.Runtime {
	return fx.NewRuntime(append([]fx.RuntimeOption{fx.WithReportUnhandled(false)}, opts...)...)
}

// runExit runs e on a fresh runtime, failing the test if it does not
// complete within a few seconds.
func runExit[A any](tb testing.TB, e fx.Effect[A], opts ...fx.RuntimeOption) fx.Exit[A] {
	tb.Helper()
	return runExitOn(tb, newRuntime(opts...), e)
}

// runExitOn runs e on rt, failing the test if it does not complete within
// a few seconds.
func runExitOn[A any](tb testing.TB, rt *fx.Runtime, e fx.Effect[A]) fx.Exit[A] {
	tb.Helper()
	skipRace(tb)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exit := fx.RunExit(ctx, rt, e)
	if ctx.Err() != nil {
		tb.Fatalf("effect did not complete in time: %v", exit)
	}
	return exit
}

// shutdown interrupts every root fiber of rt and waits for them.
func shutdown(tb testing.TB, rt *fx.Runtime) {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		tb.Fatalf("Shutdown: %v", err)
	}
}

func fiberID[A any](fb fx.Fiber[A]) fx.FiberID { return fb.ID() }

// mustValue runs e and returns its value, failing the test on failure.
func mustValue[A any](tb testing.TB, e fx.Effect[A], opts ...fx.RuntimeOption) A {
	tb.Helper()
	exit := runExit(tb, e, opts...)
	v, ok := exit.Value()
	if !ok {
		tb.Fatalf("got %v, want success", exit)
	}
	return v
}

// mustCause runs e and returns its failure cause, failing the test on success.
func mustCause[A any](tb testing.TB, e fx.Effect[A], opts ...fx.RuntimeOption) fx.Cause {
	tb.Helper()
	exit := runExit(tb, e, opts...)
	if exit.IsSuccess() {
		tb.Fatalf("got %v, want failure", exit)
	}
	return exit.Cause()
}

type step = kont.Either[struct{}, struct{}]

var (
	stop  = kont.Right[struct{}, struct{}](struct{}{})
	again = kont.Left[struct{}, struct{}](struct{}{})
)

// yieldUntil yields until cond reports true.
func yieldUntil(cond fx.Effect[bool]) fx.Effect[struct{}] {
	return fx.Loop(struct{}{}, func(struct{}) fx.Effect[step] {
		return fx.FlatMap(cond, func(ok bool) fx.Effect[step] {
			if ok {
				return fx.Succeed(stop)
			}
			return fx.As(fx.Yield(), again)
		})
	})
}

// awaitSuspended yields until fb waits on an asynchronous callback or completes.
func awaitSuspended[A any](fb fx.Fiber[A]) fx.Effect[struct{}] {
	return yieldUntil(fx.Map(fb.Status(), func(st fx.Status) bool {
		return st.Kind == fx.StatusSuspended || st.Kind == fx.StatusDone
	}))
}
