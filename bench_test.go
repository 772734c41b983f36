// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"context"
	"testing"

	"code.hybscloud.com/fx"
	"code.hybscloud.com/kont"
)

func flatMapChain(n int) fx.Effect[int] {
	e := fx.Succeed(0)
	for range n {
		e = fx.FlatMap(e, func(x int) fx.Effect[int] { return fx.Succeed(x + 1) })
	}
	return e
}

// BenchmarkFlatMapChain measures a 100-step FlatMap chain on a synchronous run.
func BenchmarkFlatMapChain(b *testing.B) {
	e := flatMapChain(100)
	b.ReportAllocs()
	for b.Loop() {
		fx.RunSync(e)
	}
}

// BenchmarkSyncChain measures a chain of Sync steps that each leave the fast path.
func BenchmarkSyncChain(b *testing.B) {
	e := fx.Succeed(0)
	for range 100 {
		e = fx.FlatMap(e, func(x int) fx.Effect[int] { return fx.Sync(func() int { return x + 1 }) })
	}
	b.ReportAllocs()
	for b.Loop() {
		fx.RunSync(e)
	}
}

// BenchmarkLoop measures 1000 iterations of Loop.
func BenchmarkLoop(b *testing.B) {
	e := fx.Loop(0, func(i int) fx.Effect[kont.Either[int, int]] {
		if i == 1000 {
			return fx.Succeed(kont.Right[int](i))
		}
		return fx.Succeed(kont.Left[int, int](i + 1))
	})
	b.ReportAllocs()
	for b.Loop() {
		fx.RunSync(e)
	}
}

// BenchmarkForkJoin measures forking and joining one fiber on the event loop.
func BenchmarkForkJoin(b *testing.B) {
	skipRace(b)
	rt := newRuntime()
	e := fx.FlatMap(fx.Fork(fx.Succeed(1)), func(fb fx.Fiber[int]) fx.Effect[int] { return fb.Join() })
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		fx.RunExit(ctx, rt, e)
	}
}

// BenchmarkDeferredHandoff measures a value handed between two fibers through a Deferred.
func BenchmarkDeferredHandoff(b *testing.B) {
	skipRace(b)
	rt := newRuntime()
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		d := fx.NewDeferred[int]()
		e := fx.FlatMap(fx.Fork(d.Await()), func(fb fx.Fiber[int]) fx.Effect[int] {
			return fx.ZipRight(d.Succeed(1), fb.Join())
		})
		fx.RunExit(ctx, rt, e)
	}
}

// BenchmarkInterpret measures a kont state computation interpreted on a fiber.
func BenchmarkInterpret(b *testing.B) {
	m := kont.ExprBind(kont.ExprPerform(kont.Get[int]{}), func(x int) kont.Expr[int] {
		return kont.ExprThen(kont.ExprPerform(kont.Put[int]{Value: x + 1}), kont.ExprPerform(kont.Get[int]{}))
	})
	r := fx.NewRef(0)
	h := refState(r)
	b.ReportAllocs()
	for b.Loop() {
		fx.RunSync(fx.Interpret(m, h))
	}
}
