// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"slices"
	"sync"

	"code.hybscloud.com/kont"
)

// Supervisor observes fiber lifecycles.
//
// Hooks run on the scheduler goroutine in the middle of the run loop and
// must not block. OnEffect is called for every instruction executed while
// the supervisor is installed.
type Supervisor interface {
	OnStart(id, parent FiberID)
	OnEnd(id FiberID, exit Exit[kont.Erased])
	OnEffect(id FiberID, op Op)
	OnSuspend(id FiberID)
	OnResume(id FiberID)
}

type noSupervisor struct{}

func (noSupervisor) OnStart(FiberID, FiberID)         {}
func (noSupervisor) OnEnd(FiberID, Exit[kont.Erased]) {}
func (noSupervisor) OnEffect(FiberID, Op)             {}
func (noSupervisor) OnSuspend(FiberID)                {}
func (noSupervisor) OnResume(FiberID)                 {}

// NoSupervisor ignores every event.
var NoSupervisor Supervisor = noSupervisor{}

type supervisors []Supervisor

// Supervisors fans every event out to each of ss in order.
func Supervisors(ss ...Supervisor) Supervisor {
	var out supervisors
	for _, s := range ss {
		switch s := s.(type) {
		case nil, noSupervisor:
		case supervisors:
			out = append(out, s...)
		default:
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NoSupervisor
	case 1:
		return out[0]
	}
	return out
}

func (ss supervisors) OnStart(id, parent FiberID) {
	for _, s := range ss {
		s.OnStart(id, parent)
	}
}

func (ss supervisors) OnEnd(id FiberID, exit Exit[kont.Erased]) {
	for _, s := range ss {
		s.OnEnd(id, exit)
	}
}

func (ss supervisors) OnEffect(id FiberID, op Op) {
	for _, s := range ss {
		s.OnEffect(id, op)
	}
}

func (ss supervisors) OnSuspend(id FiberID) {
	for _, s := range ss {
		s.OnSuspend(id)
	}
}

func (ss supervisors) OnResume(id FiberID) {
	for _, s := range ss {
		s.OnResume(id)
	}
}

// Track is a supervisor that records the set of live fibers.
// It is safe for concurrent use.
type Track struct {
	mu   sync.Mutex
	live map[FiberID]FiberID
}

// NewTrack returns an empty tracking supervisor.
func NewTrack() *Track {
	return &Track{live: make(map[FiberID]FiberID)}
}

func (t *Track) OnStart(id, parent FiberID) {
	t.mu.Lock()
	t.live[id] = parent
	t.mu.Unlock()
}

func (t *Track) OnEnd(id FiberID, _ Exit[kont.Erased]) {
	t.mu.Lock()
	delete(t.live, id)
	t.mu.Unlock()
}

func (*Track) OnEffect(FiberID, Op) {}
func (*Track) OnSuspend(FiberID)    {}
func (*Track) OnResume(FiberID)     {}

// Live returns the fibers started and not yet ended, ordered by sequence.
func (t *Track) Live() []FiberID {
	t.mu.Lock()
	ids := make([]FiberID, 0, len(t.live))
	for id := range t.live {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	slices.SortFunc(ids, compareFiberID)
	return ids
}

// Parent returns the fiber that started id, if id is live.
func (t *Track) Parent(id FiberID) (FiberID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.live[id]
	return p, ok
}

func compareFiberID(a, b FiberID) int {
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}
