// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"maps"

	"code.hybscloud.com/kont"
)

type fiberRefCore struct {
	initial kont.Erased
	fork    func(kont.Erased) kont.Erased
	join    func(parent, child kont.Erased) kont.Erased
}

// FiberRef is a fiber-local variable. A forked child starts with the
// parent's value passed through fork; [Fiber.Join] and [Fiber.InheritRefs]
// fold the child's value back into the parent with join.
//
// FiberRef values are compared by identity.
type FiberRef[A any] struct {
	core *fiberRefCore
}

// MakeFiberRef creates a fiber-local variable with the given fork and
// join transforms.
func MakeFiberRef[A any](initial A, fork func(A) A, join func(parent, child A) A) FiberRef[A] {
	return FiberRef[A]{core: &fiberRefCore{
		initial: initial,
		fork:    func(v kont.Erased) kont.Erased { return fork(as[A](v)) },
		join:    func(p, c kont.Erased) kont.Erased { return join(as[A](p), as[A](c)) },
	}}
}

// NewFiberRef creates a fiber-local variable that children copy on fork
// and that takes the child's value on join.
func NewFiberRef[A any](initial A) FiberRef[A] {
	return MakeFiberRef(initial, func(a A) A { return a }, func(_, child A) A { return child })
}

// Initial returns the value seen by fibers that never set r.
func (r FiberRef[A]) Initial() A { return as[A](r.core.initial) }

// Get returns the running fiber's value of r.
func (r FiberRef[A]) Get() Effect[A] {
	return ModifyFiberRef(r, func(a A) (A, A) { return a, a })
}

// Set replaces the running fiber's value of r.
func (r FiberRef[A]) Set(a A) Effect[struct{}] {
	return ModifyFiberRef(r, func(A) (struct{}, A) { return struct{}{}, a })
}

// Update applies f to the running fiber's value of r.
func (r FiberRef[A]) Update(f func(A) A) Effect[struct{}] {
	return ModifyFiberRef(r, func(a A) (struct{}, A) { return struct{}{}, f(a) })
}

// Delete drops the running fiber's value of r, restoring the initial value.
func (r FiberRef[A]) Delete() Effect[struct{}] {
	return effectOf[struct{}](&fiberRefDelete{ref: r.core})
}

// FiberRefWith passes the running fiber's value of r to f.
func FiberRefWith[A, B any](r FiberRef[A], f func(A) Effect[B]) Effect[B] {
	return effectOf[B](&fiberRefWith{ref: r.core, f: func(v kont.Erased) instruction { return f(as[A](v)).instr() }})
}

// ModifyFiberRef replaces the running fiber's value of r and returns a derived result.
func ModifyFiberRef[A, B any](r FiberRef[A], f func(A) (B, A)) Effect[B] {
	return effectOf[B](&fiberRefModify{ref: r.core, f: func(v kont.Erased) (kont.Erased, kont.Erased) {
		b, a := f(as[A](v))
		return b, a
	}})
}

// Locally runs e with r set to a, restoring the previous value afterwards.
func Locally[A, B any](r FiberRef[A], a A, e Effect[B]) Effect[B] {
	return effectOf[B](&fiberRefLocally{ref: r.core, value: a, effect: e.instr()})
}

// Locals is a snapshot of every fiber-local value a fiber has set.
type Locals struct {
	values map[*fiberRefCore]kont.Erased
}

// Len returns the number of variables in the snapshot.
func (l Locals) Len() int { return len(l.values) }

// LocalOf returns the value of r in l, or r's initial value.
func LocalOf[A any](l Locals, r FiberRef[A]) A {
	if v, ok := l.values[r.core]; ok {
		return as[A](v)
	}
	return r.Initial()
}

// GetAllLocals returns a snapshot of the running fiber's locals.
func GetAllLocals() Effect[Locals] {
	return effectOf[Locals](&fiberRefGetAll{f: func(m map[*fiberRefCore]kont.Erased) instruction {
		return &succeedNow{value: Locals{values: m}}
	}})
}

func (f *fiberContext) getLocal(r *fiberRefCore) kont.Erased {
	if v, ok := f.locals[r]; ok {
		return v
	}
	return r.initial
}

func (f *fiberContext) snapshotLocals() map[*fiberRefCore]kont.Erased {
	return maps.Clone(f.locals)
}

func (f *fiberContext) forkLocals() map[*fiberRefCore]kont.Erased {
	out := make(map[*fiberRefCore]kont.Erased, len(f.locals))
	for r, v := range f.locals {
		out[r] = r.fork(v)
	}
	return out
}

// inheritRefs joins the locals of child into f.
func (f *fiberContext) inheritRefs(child *fiberContext) {
	for r, v := range child.locals {
		if r == forkScopeOverride.core {
			continue
		}
		f.locals[r] = r.join(f.getLocal(r), v)
	}
}

// forkScopeOverride, when set, selects the scope of fibers forked without
// an explicit scope.
var forkScopeOverride = MakeFiberRef[Scope](nil,
	func(Scope) Scope { return nil },
	func(parent, _ Scope) Scope { return parent },
)

// WithForkScope runs e so that fibers it forks without an explicit scope
// are registered in scope.
func WithForkScope[A any](scope Scope, e Effect[A]) Effect[A] {
	return Locally(forkScopeOverride, scope, e)
}
