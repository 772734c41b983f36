// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"code.hybscloud.com/kont"
)

// Op names the primitive instruction a fiber is about to execute.
// Supervisors observe it through [Supervisor.OnEffect].
type Op uint8

const (
	OpSucceedNow Op = iota
	OpSucceed
	OpSuspend
	OpFail
	OpFlatMap
	OpFold
	OpAsync
	OpFork
	OpInterruptStatus
	OpCheckInterrupt
	OpAccess
	OpProvide
	OpDescriptor
	OpFiberRefModify
	OpFiberRefGetAll
	OpFiberRefLocally
	OpFiberRefDelete
	OpFiberRefWith
	OpEnsuring
	OpSupervise
	OpRaceWith
	OpYield
	OpFinish
)

var opNames = [...]string{
	OpSucceedNow:      "SucceedNow",
	OpSucceed:         "Succeed",
	OpSuspend:         "Suspend",
	OpFail:            "Fail",
	OpFlatMap:         "FlatMap",
	OpFold:            "Fold",
	OpAsync:           "Async",
	OpFork:            "Fork",
	OpInterruptStatus: "InterruptStatus",
	OpCheckInterrupt:  "CheckInterrupt",
	OpAccess:          "Access",
	OpProvide:         "Provide",
	OpDescriptor:      "Descriptor",
	OpFiberRefModify:  "FiberRefModify",
	OpFiberRefGetAll:  "FiberRefGetAll",
	OpFiberRefLocally: "FiberRefLocally",
	OpFiberRefDelete:  "FiberRefDelete",
	OpFiberRefWith:    "FiberRefWith",
	OpEnsuring:        "Ensuring",
	OpSupervise:       "Supervise",
	OpRaceWith:        "RaceWith",
	OpYield:           "Yield",
	OpFinish:          "Finish",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "Op(?)"
}

// instruction is the closed set of primitives the run loop interprets.
// Values flowing between instructions are type-erased; the typed
// [Effect] constructors restore them.
type instruction interface {
	op() Op
}

// succeedNow yields an already computed value.
type succeedNow struct {
	value kont.Erased
}

// succeed yields the result of a thunk.
type succeed struct {
	thunk func() kont.Erased
}

// suspend defers construction of the next instruction.
type suspend struct {
	factory func() instruction
}

// fail raises a lazily built cause.
type fail struct {
	cause func() Cause
}

type flatMap struct {
	effect instruction
	k      func(kont.Erased) instruction
}

type fold struct {
	effect    instruction
	onFailure func(Cause) instruction
	onSuccess func(kont.Erased) instruction
}

// async suspends the fiber until resume is called.
// register returns Left(canceler) to wait, or Right(next) to continue
// immediately. internal marks waits issued by the runtime itself, which
// remain legal in synchronous runs.
type async struct {
	register   func(resume func(instruction)) kont.Either[instruction, instruction]
	blockingOn []FiberID
	internal   bool
}

// fork starts effect on a child fiber. A nil scope selects the ambient one.
type fork struct {
	effect instruction
	scope  Scope
}

type interruptStatus struct {
	effect        instruction
	interruptible bool
}

type checkInterrupt struct {
	f func(interruptible bool) instruction
}

type access struct {
	f func(env kont.Erased) instruction
}

type provide struct {
	env    kont.Erased
	effect instruction
}

// descriptor exposes the running fiber to f.
type descriptor struct {
	f func(*fiberContext) instruction
}

type fiberRefModify struct {
	ref *fiberRefCore
	f   func(kont.Erased) (result, value kont.Erased)
}

type fiberRefGetAll struct {
	f func(map[*fiberRefCore]kont.Erased) instruction
}

type fiberRefLocally struct {
	ref    *fiberRefCore
	value  kont.Erased
	effect instruction
}

type fiberRefDelete struct {
	ref *fiberRefCore
}

type fiberRefWith struct {
	ref *fiberRefCore
	f   func(kont.Erased) instruction
}

type ensuring struct {
	effect    instruction
	finalizer instruction
}

type supervise struct {
	effect     instruction
	supervisor Supervisor
}

// raceWith forks left and right and continues with the handler of the
// side that completes first. The loser is passed to the handler untouched.
type raceWith struct {
	left, right     instruction
	onLeft, onRight func(Exit[kont.Erased], *fiberContext) instruction
	scope           Scope
}

type yieldNow struct{}

// finish re-enters fiber completion with exit.
type finish struct {
	exit Exit[kont.Erased]
}

func (*succeedNow) op() Op      { return OpSucceedNow }
func (*succeed) op() Op         { return OpSucceed }
func (*suspend) op() Op         { return OpSuspend }
func (*fail) op() Op            { return OpFail }
func (*flatMap) op() Op         { return OpFlatMap }
func (*fold) op() Op            { return OpFold }
func (*async) op() Op           { return OpAsync }
func (*fork) op() Op            { return OpFork }
func (*interruptStatus) op() Op { return OpInterruptStatus }
func (*checkInterrupt) op() Op  { return OpCheckInterrupt }
func (*access) op() Op          { return OpAccess }
func (*provide) op() Op         { return OpProvide }
func (*descriptor) op() Op      { return OpDescriptor }
func (*fiberRefModify) op() Op  { return OpFiberRefModify }
func (*fiberRefGetAll) op() Op  { return OpFiberRefGetAll }
func (*fiberRefLocally) op() Op { return OpFiberRefLocally }
func (*fiberRefDelete) op() Op  { return OpFiberRefDelete }
func (*fiberRefWith) op() Op    { return OpFiberRefWith }
func (*ensuring) op() Op        { return OpEnsuring }
func (*supervise) op() Op       { return OpSupervise }
func (*raceWith) op() Op        { return OpRaceWith }
func (yieldNow) op() Op         { return OpYield }
func (*finish) op() Op          { return OpFinish }

// unitNow is the shared instruction producing struct{}{}.
var unitNow instruction = &succeedNow{value: struct{}{}}

func haltNow(c Cause) instruction {
	return &fail{cause: func() Cause { return c }}
}

func dieNow(err error) instruction {
	return haltNow(DieCause(err))
}

// thenDo runs first, discards its value and continues with next.
func thenDo(first instruction, next func() instruction) instruction {
	return &flatMap{effect: first, k: func(kont.Erased) instruction { return next() }}
}

// syncUnit wraps a side effect with no result.
func syncUnit(f func()) instruction {
	return &succeed{thunk: func() kont.Erased {
		f()
		return struct{}{}
	}}
}
