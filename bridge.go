// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"
	"fmt"

	"code.hybscloud.com/kont"
)

// Handler interprets one kont effect operation as an effect producing the
// value the suspended computation resumes with.
type Handler func(op kont.Operation) Effect[kont.Resumed]

// Interpret runs the kont computation m on the running fiber. Each
// operation m performs is handed to handle; the computation resumes with
// the handler's result. A failing handler discards the suspension and
// fails the effect with the handler's cause.
//
// Handlers may suspend, fork or fail like any other effect, so operations
// of m become ordinary fiber work.
func Interpret[A any](m kont.Expr[A], handle Handler) Effect[A] {
	return Suspend(func() Effect[A] {
		return advance(kont.StepExpr(m))(handle)
	})
}

// InterpretCont is [Interpret] for closure-based computations.
func InterpretCont[A any](m kont.Eff[A], handle Handler) Effect[A] {
	return Suspend(func() Effect[A] {
		return advance(kont.Step(m))(handle)
	})
}

// advance continues from one step result of a kont computation.
func advance[A any](result A, susp *kont.Suspension[A]) func(Handler) Effect[A] {
	return func(handle Handler) Effect[A] {
		if susp == nil {
			return Succeed(result)
		}
		op := susp.Op()
		resumed := OnError(handle(op), func(Cause) Effect[struct{}] {
			return Sync(func() struct{} {
				susp.Discard()
				return struct{}{}
			})
		})
		return FlatMap(resumed, func(v kont.Resumed) Effect[A] {
			return advance(susp.Resume(v))(handle)
		})
	}
}

// ErrUnhandledOperation is the defect raised for an operation no handler accepts.
var ErrUnhandledOperation = errors.New("fx: unhandled effect operation")

// HandleErrors returns a handler for kont's error operations with error
// type E. A thrown error becomes a typed failure of the fiber; a caught
// one is handled in place. Other operations are passed to next, or die
// with [ErrUnhandledOperation] when next is nil.
func HandleErrors[E error](next Handler) Handler {
	return func(op kont.Operation) Effect[kont.Resumed] {
		if eop, ok := op.(interface {
			DispatchError(ctx *kont.ErrorContext[E]) (kont.Resumed, bool)
		}); ok {
			return Suspend(func() Effect[kont.Resumed] {
				var ctx kont.ErrorContext[E]
				v, _ := eop.DispatchError(&ctx)
				if ctx.HasErr {
					return Fail[kont.Resumed](ctx.Err)
				}
				return Succeed(v)
			})
		}
		if next == nil {
			return Die[kont.Resumed](fmt.Errorf("%w: %T", ErrUnhandledOperation, op))
		}
		return next(op)
	}
}
