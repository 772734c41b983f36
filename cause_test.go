// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"code.hybscloud.com/fx"
	"go.uber.org/multierr"
)

var (
	errA = errors.New("a")
	errB = errors.New("b")
	errC = errors.New("c")
)

// genCause is a quick.Generator for random cause trees.
type genCause struct{ fx.Cause }

func (genCause) Generate(r *rand.Rand, size int) reflect.Value {
	return reflect.ValueOf(genCause{randomCause(r, min(size, 4))})
}

func randomCause(r *rand.Rand, depth int) fx.Cause {
	if depth == 0 {
		switch r.Intn(4) {
		case 0:
			return fx.Empty{}
		case 1:
			return fx.FailCause([]error{errA, errB, errC}[r.Intn(3)])
		case 2:
			return fx.DieCause(errC)
		default:
			return fx.InterruptCause(fx.FiberID{Seq: uint64(r.Intn(3) + 1)})
		}
	}
	left, right := randomCause(r, depth-1), randomCause(r, depth-1)
	if r.Intn(2) == 0 {
		return fx.Then{Left: left, Right: right}
	}
	return fx.Both{Left: left, Right: right}
}

func TestCauseIdentity(t *testing.T) {
	c := fx.FailCause(errA)
	if got := fx.CauseThen(fx.Empty{}, c); got != c {
		t.Fatalf("Then(Empty, c) = %v, want %v", got, c)
	}
	if got := fx.CauseBoth(c, fx.Empty{}); got != c {
		t.Fatalf("Both(c, Empty) = %v, want %v", got, c)
	}
	if !fx.IsEmpty(fx.Then{Left: fx.Empty{}, Right: fx.Both{Left: fx.Empty{}, Right: fx.Empty{}}}) {
		t.Fatal("composition of empties must be empty")
	}
}

func TestPropertyCauseEqual(t *testing.T) {
	assocThen := func(a, b, c genCause) bool {
		return fx.Equal(fx.Then{Left: fx.Then{Left: a.Cause, Right: b.Cause}, Right: c.Cause},
			fx.Then{Left: a.Cause, Right: fx.Then{Left: b.Cause, Right: c.Cause}})
	}
	if err := quick.Check(assocThen, nil); err != nil {
		t.Fatalf("Then associativity: %v", err)
	}
	commBoth := func(a, b genCause) bool {
		return fx.Equal(fx.Both{Left: a.Cause, Right: b.Cause}, fx.Both{Left: b.Cause, Right: a.Cause})
	}
	if err := quick.Check(commBoth, nil); err != nil {
		t.Fatalf("Both commutativity: %v", err)
	}
	emptyUnit := func(a genCause) bool {
		return fx.Equal(fx.Then{Left: a.Cause, Right: fx.Empty{}}, a.Cause) &&
			fx.Equal(fx.Both{Left: fx.Empty{}, Right: a.Cause}, a.Cause)
	}
	if err := quick.Check(emptyUnit, nil); err != nil {
		t.Fatalf("Empty identity: %v", err)
	}
}

func TestPropertyStripFailures(t *testing.T) {
	f := func(a genCause) bool {
		stripped := fx.StripFailures(a.Cause)
		return len(fx.Failures(stripped)) == 0 &&
			len(fx.Defects(stripped)) == len(fx.Defects(a.Cause)) &&
			fx.IsInterrupted(stripped) == fx.IsInterrupted(a.Cause)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestPropertyContainsParts(t *testing.T) {
	f := func(a, b genCause) bool {
		then := fx.CauseThen(a.Cause, b.Cause)
		return fx.Contains(then, a.Cause) && fx.Contains(then, b.Cause) && fx.Contains(a.Cause, fx.Empty{})
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestCauseEqualOrder(t *testing.T) {
	ab := fx.Then{Left: fx.FailCause(errA), Right: fx.FailCause(errB)}
	ba := fx.Then{Left: fx.FailCause(errB), Right: fx.FailCause(errA)}
	if fx.Equal(ab, ba) {
		t.Fatal("Then must be order sensitive")
	}
	if !fx.Equal(fx.Both{Left: ab.Left, Right: ab.Right}, fx.Both{Left: ba.Left, Right: ba.Right}) {
		t.Fatal("Both must be order insensitive")
	}
}

func TestCauseQueries(t *testing.T) {
	id1, id2 := fx.FiberID{Seq: 1}, fx.FiberID{Seq: 2}
	c := fx.Then{
		Left:  fx.Both{Left: fx.FailCause(errA), Right: fx.InterruptCause(id1)},
		Right: fx.Then{Left: fx.DieCause(errC), Right: fx.Both{Left: fx.InterruptCause(id2), Right: fx.InterruptCause(id1)}},
	}
	if got := fx.Failures(c); len(got) != 1 || got[0] != errA {
		t.Fatalf("Failures = %v", got)
	}
	if got := fx.Defects(c); len(got) != 1 || got[0] != errC {
		t.Fatalf("Defects = %v", got)
	}
	if got := fx.Interruptors(c); !reflect.DeepEqual(got, []fx.FiberID{id1, id2}) {
		t.Fatalf("Interruptors = %v", got)
	}
	if fx.IsInterruptedOnly(c) {
		t.Fatal("IsInterruptedOnly must be false with failures present")
	}
	if !fx.IsInterruptedOnly(fx.Both{Left: fx.InterruptCause(id1), Right: fx.InterruptCause(id2)}) {
		t.Fatal("IsInterruptedOnly must be true for interruptions only")
	}
	if got := len(fx.Linearize(c)); got != 5 {
		t.Fatalf("Linearize has %d atoms, want 5", got)
	}
}

func TestSquash(t *testing.T) {
	id := fx.FiberID{Seq: 7}
	if err := fx.Squash(fx.Then{Left: fx.DieCause(errC), Right: fx.FailCause(errA)}); err != errA {
		t.Fatalf("Squash prefers failures, got %v", err)
	}
	err := fx.Squash(fx.Both{Left: fx.DieCause(errC), Right: fx.InterruptCause(id)})
	var ie *fx.InterruptedError
	if !errors.As(err, &ie) || ie.By != id {
		t.Fatalf("Squash prefers interruptions over defects, got %v", err)
	}
	if !errors.Is(err, fx.ErrInterrupted) {
		t.Fatal("InterruptedError must match ErrInterrupted")
	}
	if fx.Squash(fx.Empty{}) != nil {
		t.Fatal("Squash(Empty) must be nil")
	}
}

func TestCauseError(t *testing.T) {
	c := fx.Then{Left: fx.FailCause(errA), Right: fx.DieCause(errB)}
	err := fx.CauseError(c)
	if errs := multierr.Errors(err); len(errs) != 2 {
		t.Fatalf("CauseError combined %d errors, want 2", len(errs))
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("CauseError must expose every atom: %v", err)
	}
	failure := &fx.FiberFailure{Cause: c}
	if !errors.Is(failure, errA) || !errors.Is(failure, errB) {
		t.Fatalf("FiberFailure must expose every atom: %v", failure)
	}
	if fx.CauseError(fx.Empty{}) != nil {
		t.Fatal("CauseError(Empty) must be nil")
	}
}

func TestExitCombinators(t *testing.T) {
	ok := fx.Succeeded(2)
	bad := fx.Halted[int](fx.FailCause(errA))
	if v, _ := fx.MapExit(ok, func(n int) int { return n * 3 }).Value(); v != 6 {
		t.Fatalf("MapExit = %d, want 6", v)
	}
	sum := func(a, b int) int { return a + b }
	if v, _ := fx.ZipExit(ok, ok, sum, false).Value(); v != 4 {
		t.Fatalf("ZipExit = %d, want 4", v)
	}
	seq := fx.ZipExit(bad, fx.Halted[int](fx.FailCause(errB)), sum, false)
	if _, isThen := seq.Cause().(fx.Then); !isThen {
		t.Fatalf("sequential ZipExit cause = %v, want Then", seq.Cause())
	}
	par := fx.ZipExit(bad, fx.Halted[int](fx.FailCause(errB)), sum, true)
	if _, isBoth := par.Cause().(fx.Both); !isBoth {
		t.Fatalf("parallel ZipExit cause = %v, want Both", par.Cause())
	}
	if ok.Err() != nil || !errors.Is(bad.Err(), errA) {
		t.Fatalf("Err: ok=%v bad=%v", ok.Err(), bad.Err())
	}
	if !fx.IsEmpty(ok.Cause()) {
		t.Fatal("a success has an empty cause")
	}
}
