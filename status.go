// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"strconv"
	"strings"

	"code.hybscloud.com/kont"
)

// StatusKind is the coarse lifecycle phase of a fiber.
type StatusKind uint8

const (
	// StatusRunning means the fiber is executing or queued to execute.
	StatusRunning StatusKind = iota
	// StatusSuspended means the fiber waits on an asynchronous callback.
	StatusSuspended
	// StatusFinishing means the fiber is interrupting its children before completing.
	StatusFinishing
	// StatusDone means the fiber has completed.
	StatusDone
)

func (k StatusKind) String() string {
	switch k {
	case StatusRunning:
		return "Running"
	case StatusSuspended:
		return "Suspended"
	case StatusFinishing:
		return "Finishing"
	case StatusDone:
		return "Done"
	}
	return "StatusKind(" + strconv.Itoa(int(k)) + ")"
}

// Status is a snapshot of a fiber's lifecycle.
type Status struct {
	Kind StatusKind
	// Interrupting reports that the fiber is unwinding because of an interruption.
	Interrupting bool
	// Interruptible reports, for a suspended fiber, whether the wait can be interrupted.
	Interruptible bool
	// BlockingOn lists fibers a suspended fiber is waiting for, when known.
	BlockingOn []FiberID
	// Epoch is the async epoch of a suspended fiber.
	Epoch uint64

	previous *Status
}

// Previous returns the status a suspended fiber will restore on resumption.
func (s Status) Previous() (Status, bool) {
	if s.previous == nil {
		return Status{}, false
	}
	return *s.previous, true
}

func (s Status) withInterrupting(flag bool) Status {
	s.Interrupting = flag
	if s.previous != nil {
		p := s.previous.withInterrupting(flag)
		s.previous = &p
	}
	return s
}

func (s Status) String() string {
	var b strings.Builder
	b.WriteString(s.Kind.String())
	if s.Interrupting {
		b.WriteString("(interrupting)")
	}
	if s.Kind == StatusSuspended {
		b.WriteString("[epoch=")
		b.WriteString(strconv.FormatUint(s.Epoch, 10))
		if !s.Interruptible {
			b.WriteString(",uninterruptible")
		}
		for _, id := range s.BlockingOn {
			b.WriteString(",on=")
			b.WriteString(id.String())
		}
		b.WriteString("]")
	}
	return b.String()
}

// fiberState is either *executing or *doneState. Transitions replace it.
type fiberState interface {
	state()
}

type cancelerKind uint8

const (
	cancelerEmpty cancelerKind = iota
	cancelerPending
	cancelerRegistered
)

type asyncCanceler struct {
	kind   cancelerKind
	effect instruction
}

type observer struct {
	fn func(Exit[kont.Erased])
}

type executing struct {
	status       Status
	observers    []*observer
	suppressed   Cause
	interruptors []FiberID
	canceler     asyncCanceler
	mailbox      instruction
}

type doneState struct {
	exit Exit[kont.Erased]
}

func (*executing) state() {}
func (*doneState) state() {}

// addInterruptor records id once, in arrival order.
func (s *executing) addInterruptor(id FiberID) bool {
	for _, x := range s.interruptors {
		if x == id {
			return false
		}
	}
	s.interruptors = append(s.interruptors, id)
	return true
}

