// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"sync"
)

// Ref is a mutable cell shared between fibers.
//
// Each operation is a single instruction, so it is atomic with respect to
// other fibers of the same runtime. A read followed by a separate write is
// not; use [ModifyRef] for read-modify-write.
type Ref[A any] struct {
	mu    sync.Mutex
	value A
}

// NewRef returns a Ref holding a.
func NewRef[A any](a A) *Ref[A] {
	return &Ref[A]{value: a}
}

// MakeRef returns an effect that allocates a Ref holding a.
func MakeRef[A any](a A) Effect[*Ref[A]] {
	return Sync(func() *Ref[A] { return NewRef(a) })
}

// Get returns the current value.
func (r *Ref[A]) Get() Effect[A] {
	return Sync(r.load)
}

// Set replaces the current value.
func (r *Ref[A]) Set(a A) Effect[struct{}] {
	return ModifyRef(r, func(A) (struct{}, A) { return struct{}{}, a })
}

// Update applies f to the current value.
func (r *Ref[A]) Update(f func(A) A) Effect[struct{}] {
	return ModifyRef(r, func(a A) (struct{}, A) { return struct{}{}, f(a) })
}

// UpdateAndGet applies f to the current value and returns the new value.
func (r *Ref[A]) UpdateAndGet(f func(A) A) Effect[A] {
	return ModifyRef(r, func(a A) (A, A) {
		b := f(a)
		return b, b
	})
}

// ModifyRef replaces the value of r with the second result of f and
// returns the first.
func ModifyRef[A, B any](r *Ref[A], f func(A) (B, A)) Effect[B] {
	return Sync(func() B { return modifyRef(r, f) })
}

func (r *Ref[A]) load() A {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

func modifyRef[A, B any](r *Ref[A], f func(A) (B, A)) B {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, a := f(r.value)
	r.value = a
	return b
}
