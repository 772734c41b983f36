// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"code.hybscloud.com/kont"
)

// frame is a pending continuation on a fiber's stack.
type frame interface {
	frame()
}

// applyFrame continues with k on success and is skipped on failure.
type applyFrame struct {
	k func(kont.Erased) instruction
}

// foldFrame handles both outcomes.
type foldFrame struct {
	onFailure func(Cause) instruction
	onSuccess func(kont.Erased) instruction
}

// interruptExitFrame restores the interrupt status saved on entry to a region.
type interruptExitFrame struct{}

// finalizerFrame runs finalizer on exit, whatever the outcome.
type finalizerFrame struct {
	finalizer instruction
}

func (*applyFrame) frame()        {}
func (*foldFrame) frame()         {}
func (interruptExitFrame) frame() {}
func (*finalizerFrame) frame()    {}

// frameStack is a persistent linked stack of frames.
type frameStack struct {
	top  frame
	next *frameStack
}

// flagStack is the interrupt status stack; an empty stack means interruptible.
type flagStack struct {
	value bool
	next  *flagStack
}

// envStack holds the environments installed by Provide.
type envStack struct {
	value kont.Erased
	next  *envStack
}

// supervisorStack holds the supervisors installed by Supervised.
type supervisorStack struct {
	value Supervisor
	next  *supervisorStack
}

func (f *fiberContext) pushFrame(fr frame) {
	f.stack = &frameStack{top: fr, next: f.stack}
}

func (f *fiberContext) popFrame() frame {
	fr := f.stack.top
	f.stack = f.stack.next
	return fr
}

func (f *fiberContext) isStackEmpty() bool { return f.stack == nil }

func (f *fiberContext) pushInterruptStatus(flag bool) {
	f.interruptStatus = &flagStack{value: flag, next: f.interruptStatus}
}

func (f *fiberContext) popInterruptStatus() {
	if f.interruptStatus != nil {
		f.interruptStatus = f.interruptStatus.next
	}
}

func (f *fiberContext) isInterruptible() bool {
	return f.interruptStatus == nil || f.interruptStatus.value
}

func (f *fiberContext) pushEnv(env kont.Erased) {
	f.env = &envStack{value: env, next: f.env}
}

func (f *fiberContext) popEnv() {
	if f.env != nil {
		f.env = f.env.next
	}
}

func (f *fiberContext) currentEnv() kont.Erased {
	if f.env == nil {
		return nil
	}
	return f.env.value
}

func (f *fiberContext) pushSupervisor(s Supervisor) {
	f.supervisors = &supervisorStack{value: s, next: f.supervisors}
}

func (f *fiberContext) popSupervisor() {
	if f.supervisors != nil {
		f.supervisors = f.supervisors.next
	}
}

func (f *fiberContext) supervisor() Supervisor {
	if f.supervisors == nil {
		return NoSupervisor
	}
	return f.supervisors.value
}
