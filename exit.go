// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"fmt"

	"code.hybscloud.com/kont"
)

// Exit is the terminal result of a fiber: success with a value or
// failure with a [Cause]. Exits are immutable.
type Exit[A any] struct {
	value  A
	cause  Cause
	failed bool
}

// Succeeded returns a successful exit carrying a.
func Succeeded[A any](a A) Exit[A] {
	return Exit[A]{value: a}
}

// Halted returns a failed exit carrying cause.
func Halted[A any](cause Cause) Exit[A] {
	return Exit[A]{cause: orEmpty(cause), failed: true}
}

// IsSuccess reports whether the exit is a success.
func (e Exit[A]) IsSuccess() bool { return !e.failed }

// IsFailure reports whether the exit is a failure.
func (e Exit[A]) IsFailure() bool { return e.failed }

// Value returns the success value and true, or zero and false.
func (e Exit[A]) Value() (A, bool) {
	if e.failed {
		var zero A
		return zero, false
	}
	return e.value, true
}

// Cause returns the failure cause, or [Empty] for a success.
func (e Exit[A]) Cause() Cause {
	if !e.failed {
		return Empty{}
	}
	return e.cause
}

// Err returns nil on success, or a [*FiberFailure] describing the cause.
func (e Exit[A]) Err() error {
	if !e.failed {
		return nil
	}
	return &FiberFailure{Cause: e.cause}
}

func (e Exit[A]) String() string {
	if e.failed {
		return "Failure(" + e.cause.String() + ")"
	}
	return fmt.Sprintf("Success(%v)", e.value)
}

// MapExit applies f to the success value of e.
func MapExit[A, B any](e Exit[A], f func(A) B) Exit[B] {
	if e.failed {
		return Halted[B](e.cause)
	}
	return Succeeded(f(e.value))
}

// ZipExit combines two exits. Failures are composed with [CauseThen] when
// parallel is false and with [CauseBoth] otherwise.
func ZipExit[A, B, C any](a Exit[A], b Exit[B], f func(A, B) C, parallel bool) Exit[C] {
	compose := CauseThen
	if parallel {
		compose = CauseBoth
	}
	switch {
	case a.failed && b.failed:
		return Halted[C](compose(a.cause, b.cause))
	case a.failed:
		return Halted[C](a.cause)
	case b.failed:
		return Halted[C](b.cause)
	}
	return Succeeded(f(a.value, b.value))
}

// eraseExit widens e to the type-erased form used by the run loop.
func eraseExit[A any](e Exit[A]) Exit[kont.Erased] {
	if e.failed {
		return Halted[kont.Erased](e.cause)
	}
	return Succeeded[kont.Erased](e.value)
}

// typedExit recovers the concrete value type of an erased exit.
func typedExit[A any](e Exit[kont.Erased]) Exit[A] {
	if e.failed {
		return Halted[A](e.cause)
	}
	return Succeeded(as[A](e.value))
}

// as recovers A from an erased value; nil becomes the zero value.
func as[A any](v kont.Erased) A {
	if v == nil {
		var zero A
		return zero
	}
	return v.(A)
}

// Option is an optional value.
type Option[A any] struct {
	value A
	ok    bool
}

// Some returns an Option holding a.
func Some[A any](a A) Option[A] { return Option[A]{value: a, ok: true} }

// None returns an empty Option.
func None[A any]() Option[A] { return Option[A]{} }

// Get returns the value and true, or zero and false.
func (o Option[A]) Get() (A, bool) { return o.value, o.ok }

// IsSome reports whether o holds a value.
func (o Option[A]) IsSome() bool { return o.ok }
