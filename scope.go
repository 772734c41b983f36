// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"weak"
)

// Scope supervises the fibers registered in it.
//
// The global scope never closes; its fibers are the runtime's roots. A
// fiber's local scope closes once the fiber starts completing: fibers
// forked into it after that point are interrupted before they run.
type Scope interface {
	// Closed reports whether the scope refuses new fibers.
	Closed() bool
	String() string

	unsafeAdd(child *fiberContext) bool
}

type globalScope struct{}

// GlobalScope returns the scope of fibers that outlive their parent.
func GlobalScope() Scope { return globalScope{} }

func (globalScope) Closed() bool   { return false }
func (globalScope) String() string { return "global" }

func (globalScope) unsafeAdd(child *fiberContext) bool {
	child.global = true
	child.rt.roots.add(child)
	return true
}

// localScope refers to its owner weakly: children never keep a parent alive.
type localScope struct {
	id    FiberID
	owner weak.Pointer[fiberContext]
}

func (s *localScope) Closed() bool {
	owner := s.owner.Value()
	if owner == nil || owner.closing {
		return true
	}
	_, ok := owner.executing()
	return !ok
}

func (s *localScope) String() string { return "local(" + s.id.String() + ")" }

func (s *localScope) unsafeAdd(child *fiberContext) bool {
	owner := s.owner.Value()
	if owner == nil {
		return false
	}
	return owner.addChild(child)
}
