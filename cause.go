// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"go.uber.org/multierr"
)

// Cause describes why a fiber failed.
//
// Cause is a closed sum over three atoms, [Failed] (typed failure),
// [Died] (defect) and [Interrupted], composed sequentially with [Then]
// and in parallel with [Both]. [Empty] is the identity of both compositions.
// Dispatch uses type switches; the unexported marker keeps the set closed.
type Cause interface {
	cause()
	String() string
}

// Empty is the cause carrying no information.
type Empty struct{}

// Failed is an expected failure produced by [Fail].
type Failed struct{ Err error }

// Died is an unexpected defect: a panic or an explicit [Die].
type Died struct{ Err error }

// Interrupted records an interruption requested by fiber By.
type Interrupted struct{ By FiberID }

// Then means Left happened and then Right happened.
type Then struct{ Left, Right Cause }

// Both means Left and Right happened concurrently.
type Both struct{ Left, Right Cause }

func (Empty) cause()       {}
func (Failed) cause()      {}
func (Died) cause()        {}
func (Interrupted) cause() {}
func (Then) cause()        {}
func (Both) cause()        {}

func (Empty) String() string         { return "Empty" }
func (c Failed) String() string      { return "Fail(" + errString(c.Err) + ")" }
func (c Died) String() string        { return "Die(" + errString(c.Err) + ")" }
func (c Interrupted) String() string { return "Interrupt(" + c.By.String() + ")" }
func (c Then) String() string        { return "Then(" + c.Left.String() + ", " + c.Right.String() + ")" }
func (c Both) String() string        { return "Both(" + c.Left.String() + ", " + c.Right.String() + ")" }

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// FailCause returns the cause of a typed failure.
func FailCause(err error) Cause { return Failed{Err: err} }

// DieCause returns the cause of a defect.
func DieCause(err error) Cause { return Died{Err: err} }

// InterruptCause returns the cause of an interruption by id.
func InterruptCause(id FiberID) Cause { return Interrupted{By: id} }

// CauseThen composes left and right sequentially, dropping [Empty] operands.
func CauseThen(left, right Cause) Cause {
	if IsEmpty(left) {
		return orEmpty(right)
	}
	if IsEmpty(right) {
		return left
	}
	return Then{Left: left, Right: right}
}

// CauseBoth composes left and right in parallel, dropping [Empty] operands.
func CauseBoth(left, right Cause) Cause {
	if IsEmpty(left) {
		return orEmpty(right)
	}
	if IsEmpty(right) {
		return left
	}
	return Both{Left: left, Right: right}
}

func orEmpty(c Cause) Cause {
	if c == nil {
		return Empty{}
	}
	return c
}

// IsEmpty reports whether c carries no failure, defect or interruption.
func IsEmpty(c Cause) bool {
	switch c := c.(type) {
	case nil, Empty:
		return true
	case Then:
		return IsEmpty(c.Left) && IsEmpty(c.Right)
	case Both:
		return IsEmpty(c.Left) && IsEmpty(c.Right)
	}
	return false
}

// foldCause visits every atom of c from left to right.
func foldCause(c Cause, visit func(Cause)) {
	switch c := c.(type) {
	case nil, Empty:
	case Then:
		foldCause(c.Left, visit)
		foldCause(c.Right, visit)
	case Both:
		foldCause(c.Left, visit)
		foldCause(c.Right, visit)
	default:
		visit(c)
	}
}

// Linearize returns the atoms of c in left-to-right order.
func Linearize(c Cause) []Cause {
	var atoms []Cause
	foldCause(c, func(a Cause) { atoms = append(atoms, a) })
	return atoms
}

// Failures returns the errors of every typed failure in c.
func Failures(c Cause) []error {
	var errs []error
	foldCause(c, func(a Cause) {
		if f, ok := a.(Failed); ok {
			errs = append(errs, f.Err)
		}
	})
	return errs
}

// Defects returns the errors of every defect in c.
func Defects(c Cause) []error {
	var errs []error
	foldCause(c, func(a Cause) {
		if d, ok := a.(Died); ok {
			errs = append(errs, d.Err)
		}
	})
	return errs
}

// Interruptors returns the distinct fibers that interrupted, in order of appearance.
func Interruptors(c Cause) []FiberID {
	var ids []FiberID
	foldCause(c, func(a Cause) {
		if i, ok := a.(Interrupted); ok {
			for _, id := range ids {
				if id == i.By {
					return
				}
			}
			ids = append(ids, i.By)
		}
	})
	return ids
}

// IsInterrupted reports whether c contains at least one interruption.
func IsInterrupted(c Cause) bool {
	found := false
	foldCause(c, func(a Cause) {
		if _, ok := a.(Interrupted); ok {
			found = true
		}
	})
	return found
}

// IsInterruptedOnly reports whether c contains interruptions and nothing else.
func IsInterruptedOnly(c Cause) bool {
	only, seen := true, false
	foldCause(c, func(a Cause) {
		if _, ok := a.(Interrupted); ok {
			seen = true
			return
		}
		only = false
	})
	return seen && only
}

// StripFailures removes every typed failure from c, keeping defects and
// interruptions in their original composition.
func StripFailures(c Cause) Cause {
	switch c := c.(type) {
	case nil:
		return Empty{}
	case Failed:
		return Empty{}
	case Then:
		return CauseThen(StripFailures(c.Left), StripFailures(c.Right))
	case Both:
		return CauseBoth(StripFailures(c.Left), StripFailures(c.Right))
	}
	return c
}

// Contains reports whether that can be obtained from c by stripping away
// compositions: c equals that, or one of its sub-causes does.
func Contains(c, that Cause) bool {
	if IsEmpty(that) {
		return true
	}
	if Equal(c, that) {
		return true
	}
	switch c := c.(type) {
	case Then:
		return Contains(c.Left, that) || Contains(c.Right, that)
	case Both:
		return Contains(c.Left, that) || Contains(c.Right, that)
	}
	return false
}

// Equal reports whether a and b describe the same cause.
// Then is associative, Both is associative and commutative, and
// Empty operands are ignored.
func Equal(a, b Cause) bool {
	as, bs := flattenSeq(a), flattenSeq(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if !equalStep(as[i], bs[i]) {
			return false
		}
	}
	return true
}

// flattenSeq splits c into its sequential steps.
func flattenSeq(c Cause) []Cause {
	switch c := c.(type) {
	case nil, Empty:
		return nil
	case Then:
		return append(flattenSeq(c.Left), flattenSeq(c.Right)...)
	case Both:
		if par := flattenPar(c); len(par) == 1 {
			return flattenSeq(par[0])
		} else if len(par) == 0 {
			return nil
		}
	}
	return []Cause{c}
}

// flattenPar splits c into its parallel branches.
func flattenPar(c Cause) []Cause {
	switch c := c.(type) {
	case nil, Empty:
		return nil
	case Both:
		return append(flattenPar(c.Left), flattenPar(c.Right)...)
	case Then:
		if seq := flattenSeq(c); len(seq) == 1 {
			return flattenPar(seq[0])
		} else if len(seq) == 0 {
			return nil
		}
	}
	return []Cause{c}
}

func equalStep(a, b Cause) bool {
	as, bs := flattenPar(a), flattenPar(b)
	if len(as) != len(bs) {
		return false
	}
	used := make([]bool, len(bs))
outer:
	for _, x := range as {
		for j, y := range bs {
			if !used[j] && equalBranch(x, y) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func equalBranch(a, b Cause) bool {
	_, at := a.(Then)
	_, bt := b.(Then)
	if at || bt {
		return at && bt && Equal(a, b)
	}
	switch a := a.(type) {
	case Failed:
		b, ok := b.(Failed)
		return ok && sameError(a.Err, b.Err)
	case Died:
		b, ok := b.(Died)
		return ok && sameError(a.Err, b.Err)
	case Interrupted:
		b, ok := b.(Interrupted)
		return ok && a.By == b.By
	}
	return false
}

func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() && a == b {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// ErrInterrupted is matched by errors produced from interrupted fibers.
var ErrInterrupted = errors.New("fx: fiber interrupted")

// InterruptedError is the error form of an [Interrupted] cause.
type InterruptedError struct{ By FiberID }

func (e *InterruptedError) Error() string { return "fx: fiber interrupted by " + e.By.String() }

func (e *InterruptedError) Unwrap() error { return ErrInterrupted }

// PanicError is the defect recorded when user code panics inside the run loop.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("fx: panic: %v", e.Value) }

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func panicDefect(r any) error {
	return &PanicError{Value: r, Stack: debug.Stack()}
}

// atomError converts a single atom into an error.
func atomError(c Cause) error {
	switch c := c.(type) {
	case Failed:
		return c.Err
	case Died:
		return c.Err
	case Interrupted:
		return &InterruptedError{By: c.By}
	}
	return nil
}

// CauseError converts every atom of c into one error, combined with multierr
// when c holds more than one atom. Returns nil for an empty cause.
func CauseError(c Cause) error {
	var err error
	for _, a := range Linearize(c) {
		err = multierr.Append(err, atomError(a))
	}
	return err
}

// Squash picks the most relevant single error of c: the first typed failure,
// else an interruption, else the first defect.
func Squash(c Cause) error {
	if fs := Failures(c); len(fs) > 0 {
		return fs[0]
	}
	if ids := Interruptors(c); len(ids) > 0 {
		return &InterruptedError{By: ids[0]}
	}
	if ds := Defects(c); len(ds) > 0 {
		return ds[0]
	}
	return nil
}

// FiberFailure is the error returned to Go callers when an effect fails.
type FiberFailure struct {
	Cause Cause
}

func (e *FiberFailure) Error() string {
	var b strings.Builder
	b.WriteString("fx: fiber failed: ")
	b.WriteString(e.Cause.String())
	return b.String()
}

// Unwrap exposes every atom of the cause to errors.Is and errors.As.
func (e *FiberFailure) Unwrap() []error {
	var errs []error
	for _, a := range Linearize(e.Cause) {
		errs = append(errs, atomError(a))
	}
	return errs
}
