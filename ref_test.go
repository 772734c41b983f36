// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"slices"
	"strconv"
	"testing"
	"testing/quick"

	"code.hybscloud.com/fx"
)

func TestRef(t *testing.T) {
	r := fx.NewRef(1)
	e := fx.ZipRight(r.Set(2), fx.ZipRight(r.Update(func(n int) int { return n * 10 }), r.UpdateAndGet(func(n int) int { return n + 1 })))
	if got := mustValue(t, e); got != 21 {
		t.Fatalf("got %d, want 21", got)
	}
	old := fx.ModifyRef(r, func(n int) (string, int) { return "was 21", 0 })
	if got := mustValue(t, old); got != "was 21" {
		t.Fatalf("ModifyRef result = %q", got)
	}
	if got := mustValue(t, r.Get()); got != 0 {
		t.Fatalf("after ModifyRef = %d, want 0", got)
	}
}

func TestRefConcurrentUpdates(t *testing.T) {
	const n = 64
	e := fx.FlatMap(fx.MakeRef(0), func(r *fx.Ref[int]) fx.Effect[int] {
		incr := func(int) fx.Effect[struct{}] {
			return fx.ZipRight(fx.Yield(), r.Update(func(v int) int { return v + 1 }))
		}
		return fx.ZipRight(fx.ForEachPar(make([]int, n), incr), r.Get())
	})
	if got := mustValue(t, e); got != n {
		t.Fatalf("got %d, want %d", got, n)
	}
}

func TestFiberRefForkAndJoin(t *testing.T) {
	ref := fx.NewFiberRef("root")
	e := fx.ZipRight(ref.Set("parent"), fx.FlatMap(fx.Fork(fx.ZipRight(ref.Update(func(s string) string { return s + "+child" }), ref.Get())),
		func(fb fx.Fiber[string]) fx.Effect[[2]string] {
			return fx.FlatMap(ref.Get(), func(before string) fx.Effect[[2]string] {
				return fx.FlatMap(fb.Join(), func(string) fx.Effect[[2]string] {
					return fx.Map(ref.Get(), func(after string) [2]string { return [2]string{before, after} })
				})
			})
		}))
	if got := mustValue(t, e); got != [2]string{"parent", "parent+child"} {
		t.Fatalf("before/after join = %v", got)
	}
}

func TestFiberRefCustomJoin(t *testing.T) {
	counter := fx.MakeFiberRef(0, func(int) int { return 0 }, func(parent, child int) int { return parent + child })
	work := func(n int) fx.Effect[struct{}] { return counter.Set(n) }
	e := fx.ZipRight(counter.Set(1), fx.FlatMap(fx.ForEach([]int{2, 3, 4}, func(n int) fx.Effect[fx.Fiber[struct{}]] {
		return fx.Fork(work(n))
	}), func(fibers []fx.Fiber[struct{}]) fx.Effect[int] {
		return fx.ZipRight(fx.ForEach(fibers, func(fb fx.Fiber[struct{}]) fx.Effect[struct{}] { return fb.Join() }), counter.Get())
	}))
	if got := mustValue(t, e); got != 10 {
		t.Fatalf("joined counter = %d, want 10", got)
	}
}

func TestFiberRefLocally(t *testing.T) {
	ref := fx.NewFiberRef(0)
	prop := func(outer, inner int) bool {
		e := fx.ZipRight(ref.Set(outer), fx.FlatMap(fx.Locally(ref, inner, ref.Get()), func(seen int) fx.Effect[[2]int] {
			return fx.Map(ref.Get(), func(after int) [2]int { return [2]int{seen, after} })
		}))
		got, ok := fx.RunSync(e).Value()
		return ok && got == [2]int{inner, outer}
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatal(err)
	}
}

func TestFiberRefLocallyRestoresOnFailure(t *testing.T) {
	ref := fx.NewFiberRef(1)
	e := fx.ZipRight(fx.Result(fx.Locally(ref, 7, fx.Fail[int](errA))), ref.Get())
	if got := mustValue(t, e); got != 1 {
		t.Fatalf("after failed Locally = %d, want 1", got)
	}
}

func TestFiberRefDeleteAndLocals(t *testing.T) {
	name := fx.NewFiberRef("anon")
	level := fx.NewFiberRef(0)
	e := fx.ZipRight(name.Set("svc"), fx.ZipRight(level.Set(3), fx.FlatMap(fx.GetAllLocals(), func(all fx.Locals) fx.Effect[[]string] {
		return fx.ZipRight(name.Delete(), fx.Map(name.Get(), func(deleted string) []string {
			return []string{fx.LocalOf(all, name), deleted, strconv.Itoa(fx.LocalOf(all, level)), strconv.Itoa(all.Len())}
		}))
	})))
	if got := mustValue(t, e); !slices.Equal(got, []string{"svc", "anon", "3", "2"}) {
		t.Fatalf("got %v", got)
	}
}

func TestModifyFiberRef(t *testing.T) {
	ref := fx.NewFiberRef([]string{"a"})
	e := fx.ZipRight(fx.ModifyFiberRef(ref, func(s []string) (int, []string) { return len(s), append(s, "b") }),
		fx.FiberRefWith(ref, func(s []string) fx.Effect[int] { return fx.Succeed(len(s)) }))
	if got := mustValue(t, e); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}
