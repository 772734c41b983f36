// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fxprom_test

import (
	"errors"
	"strings"
	"testing"

	"code.hybscloud.com/fx"
	"code.hybscloud.com/fx/fxprom"
	"code.hybscloud.com/kont"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errBoom = errors.New("boom")

// lifecycle forks one fiber per outcome and waits for all of them.
func lifecycle() fx.Effect[struct{}] {
	awaitAll := func(fbs ...fx.Fiber[int]) fx.Effect[[]fx.Exit[int]] {
		return fx.ForEach(fbs, func(fb fx.Fiber[int]) fx.Effect[fx.Exit[int]] { return fb.Await() })
	}
	return fx.FlatMap(fx.Fork(fx.Succeed(1)), func(ok fx.Fiber[int]) fx.Effect[struct{}] {
		return fx.FlatMap(fx.Fork(fx.Fail[int](errBoom)), func(failed fx.Fiber[int]) fx.Effect[struct{}] {
			return fx.FlatMap(fx.Fork(fx.Die[int](errBoom)), func(died fx.Fiber[int]) fx.Effect[struct{}] {
				return fx.FlatMap(fx.Fork(fx.Never[int]()), func(stuck fx.Fiber[int]) fx.Effect[struct{}] {
					return fx.ZipRight(stuck.Interrupt(), fx.Void(awaitAll(ok, failed, died)))
				})
			})
		})
	})
}

func TestSupervisorCountsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	sup, err := fxprom.New(reg, fxprom.Options{})
	if err != nil {
		t.Fatal(err)
	}
	exit := fx.RunSync(lifecycle(), fx.WithSupervisor(sup), fx.WithReportUnhandled(false))
	if !exit.IsSuccess() {
		t.Fatalf("exit = %v", exit)
	}

	const want = `
# HELP fx_fibers_ended_total Fibers completed, by outcome.
# TYPE fx_fibers_ended_total counter
fx_fibers_ended_total{outcome="defect"} 1
fx_fibers_ended_total{outcome="failure"} 1
fx_fibers_ended_total{outcome="interrupted"} 1
fx_fibers_ended_total{outcome="success"} 2
# HELP fx_fibers_live Fibers started and not yet completed.
# TYPE fx_fibers_live gauge
fx_fibers_live 0
# HELP fx_fibers_started_total Fibers started.
# TYPE fx_fibers_started_total counter
fx_fibers_started_total 5
# HELP fx_fibers_suspended Fibers waiting on an asynchronous callback.
# TYPE fx_fibers_suspended gauge
fx_fibers_suspended 0
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(want),
		"fx_fibers_started_total", "fx_fibers_ended_total", "fx_fibers_live", "fx_fibers_suspended")
	if err != nil {
		t.Fatal(err)
	}
	if n, err := testutil.GatherAndCount(reg, "fx_effects_total"); err != nil || n != 0 {
		t.Fatalf("effects_total series = %d, %v, want none without CountEffects", n, err)
	}
}

func TestSupervisorCountsEffects(t *testing.T) {
	reg := prometheus.NewRegistry()
	sup, err := fxprom.New(reg, fxprom.Options{Namespace: "app", Subsystem: "fibers", CountEffects: true})
	if err != nil {
		t.Fatal(err)
	}
	fx.RunSync(fx.Map(fx.Sync(func() int { return 1 }), func(n int) int { return n + 1 }), fx.WithSupervisor(sup))
	n, err := testutil.GatherAndCount(reg, "app_fibers_effects_total")
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("no effects_total series recorded")
	}
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := fxprom.New(reg, fxprom.Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := fxprom.New(reg, fxprom.Options{}); err == nil {
		t.Fatal("second registration with the same names succeeded")
	}
}

func TestOutcome(t *testing.T) {
	cases := []struct {
		exit fx.Exit[kont.Erased]
		want string
	}{
		{fx.Succeeded[kont.Erased](1), fxprom.OutcomeSuccess},
		{fx.Halted[kont.Erased](fx.FailCause(errBoom)), fxprom.OutcomeFailure},
		{fx.Halted[kont.Erased](fx.DieCause(errBoom)), fxprom.OutcomeDefect},
		{fx.Halted[kont.Erased](fx.InterruptCause(fx.NoFiber)), fxprom.OutcomeInterrupted},
		{fx.Halted[kont.Erased](fx.CauseThen(fx.InterruptCause(fx.NoFiber), fx.DieCause(errBoom))), fxprom.OutcomeDefect},
	}
	for _, tc := range cases {
		if got := fxprom.Outcome(tc.exit); got != tc.want {
			t.Errorf("Outcome(%v) = %q, want %q", tc.exit, got, tc.want)
		}
	}
}
