// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"cmp"
	"slices"
	"weak"

	"code.hybscloud.com/kont"
)

// fiberContext is the mutable state of one fiber.
//
// A fiber is only ever touched by the goroutine currently draining its
// runtime's scheduler. Code running elsewhere reaches it by dispatching a
// task; the only cross-goroutine entry point is the resume callback of an
// async wait, which itself dispatches.
type fiberContext struct {
	id    FiberID
	rt    *Runtime
	state fiberState

	stack           *frameStack
	interruptStatus *flagStack
	env             *envStack
	supervisors     *supervisorStack
	locals          map[*fiberRefCore]kont.Erased

	asyncEpoch uint64
	closing    bool
	children   map[FiberID]*fiberContext
	parent     weak.Pointer[fiberContext]
	global     bool
	scope      *localScope
	started    Supervisor
}

func newFiberContext(rt *Runtime, id FiberID) *fiberContext {
	return &fiberContext{
		id: id,
		rt: rt,
		state: &executing{
			status:     Status{Kind: StatusRunning},
			suppressed: Empty{},
		},
		locals:   make(map[*fiberRefCore]kont.Erased),
		children: make(map[FiberID]*fiberContext),
	}
}

func (f *fiberContext) executing() (*executing, bool) {
	st, ok := f.state.(*executing)
	return st, ok
}

// shouldInterrupt reports whether the fiber must start unwinding now.
func (f *fiberContext) shouldInterrupt() bool {
	st, ok := f.executing()
	return ok && len(st.interruptors) > 0 && f.isInterruptible() && !st.status.Interrupting
}

// interruptPending reports whether an interruption is in force, whether or
// not unwinding has begun. Fold frames are skipped while it holds.
func (f *fiberContext) interruptPending() bool {
	st, ok := f.executing()
	return ok && len(st.interruptors) > 0 && f.isInterruptible()
}

func (f *fiberContext) setInterrupting(flag bool) {
	if st, ok := f.executing(); ok {
		st.status = st.status.withInterrupting(flag)
	}
}

func (f *fiberContext) suppressedCause() Cause {
	if st, ok := f.executing(); ok {
		return st.suppressed
	}
	return Empty{}
}

func (f *fiberContext) enterAsync(epoch uint64, blockingOn []FiberID) {
	st, ok := f.executing()
	if !ok {
		return
	}
	prev := st.status
	st.status = Status{
		Kind:          StatusSuspended,
		Interrupting:  prev.Interrupting,
		Interruptible: f.isInterruptible(),
		BlockingOn:    blockingOn,
		Epoch:         epoch,
		previous:      &prev,
	}
	st.canceler = asyncCanceler{kind: cancelerPending}
	f.supervisor().OnSuspend(f.id)
}

// exitAsync leaves the suspension of epoch. It returns false when the
// suspension was already left, which makes stale resumptions no-ops.
func (f *fiberContext) exitAsync(epoch uint64) bool {
	st, ok := f.executing()
	if !ok || st.status.Kind != StatusSuspended || st.status.Epoch != epoch {
		return false
	}
	st.status = *st.status.previous
	st.canceler = asyncCanceler{}
	f.supervisor().OnResume(f.id)
	return true
}

func (f *fiberContext) setAsyncCanceler(epoch uint64, canceler instruction) {
	st, ok := f.executing()
	if !ok || st.status.Kind != StatusSuspended || st.status.Epoch != epoch {
		return
	}
	switch st.canceler.kind {
	case cancelerPending:
		st.canceler = asyncCanceler{kind: cancelerRegistered, effect: canceler}
	case cancelerRegistered:
		panic("fx: async canceler registered twice")
	}
}

// resumeAsync returns the one-shot callback that resumes the suspension
// of epoch. It is safe to call from any goroutine.
func (f *fiberContext) resumeAsync(epoch uint64) func(instruction) {
	once := kont.Once(func(next instruction) struct{} {
		f.rt.scheduler.Dispatch(func() {
			if f.exitAsync(epoch) {
				f.evaluateNow(next)
			}
		})
		return struct{}{}
	})
	return func(next instruction) { once.TryResume(next) }
}

// interruptAs records an interruption by id. A fiber suspended in an
// interruptible wait is woken at once: its canceler runs and the
// interruption is raised in its place.
func (f *fiberContext) interruptAs(by FiberID) {
	st, ok := f.executing()
	if !ok {
		return
	}
	if st.addInterruptor(by) {
		st.suppressed = CauseBoth(st.suppressed, InterruptCause(by))
	}
	if st.status.Kind != StatusSuspended || !st.status.Interruptible || st.canceler.kind != cancelerRegistered {
		return
	}
	canceler := st.canceler.effect
	st.status = Status{Kind: StatusRunning, Interrupting: true}
	st.canceler = asyncCanceler{}
	f.supervisor().OnResume(f.id)
	next := f.cancelThenHalt(canceler)
	f.rt.scheduler.Dispatch(func() { f.evaluateNow(next) })
}

// cancelThenHalt runs canceler uninterruptibly and raises the accumulated
// interruption, followed by the canceler's own failure if any.
func (f *fiberContext) cancelThenHalt(canceler instruction) instruction {
	return &interruptStatus{interruptible: false, effect: &fold{
		effect:    canceler,
		onFailure: func(c Cause) instruction { return haltNow(CauseThen(f.suppressedCause(), c)) },
		onSuccess: func(kont.Erased) instruction { return haltNow(f.suppressedCause()) },
	}}
}

// observe registers fn for the fiber's exit. A completed fiber is not
// observed; its exit is returned with done set instead.
func (f *fiberContext) observe(fn func(Exit[kont.Erased])) (o *observer, exit Exit[kont.Erased], done bool) {
	switch st := f.state.(type) {
	case *doneState:
		return nil, st.exit, true
	case *executing:
		o = &observer{fn: fn}
		st.observers = append(st.observers, o)
	}
	return o, exit, false
}

func (f *fiberContext) removeObserver(o *observer) {
	if st, ok := f.executing(); ok {
		st.observers = slices.DeleteFunc(st.observers, func(x *observer) bool { return x == o })
	}
}

func (f *fiberContext) poll() (Exit[kont.Erased], bool) {
	if st, ok := f.state.(*doneState); ok {
		return st.exit, true
	}
	return Exit[kont.Erased]{}, false
}

// await suspends the running fiber until f completes and yields its exit.
func (f *fiberContext) await() instruction {
	return internalAsync(func(resume func(instruction)) kont.Either[instruction, instruction] {
		o, exit, done := f.observe(func(exit Exit[kont.Erased]) {
			resume(&succeedNow{value: exit})
		})
		if done {
			return kont.Right[instruction, instruction](&succeedNow{value: exit})
		}
		return kont.Left[instruction, instruction](syncUnit(func() { f.removeObserver(o) }))
	}, f.id)
}

// interruptAsAndAwait interrupts f on behalf of by and waits for it to finish.
func (f *fiberContext) interruptAsAndAwait(by FiberID) instruction {
	return thenDo(syncUnit(func() { f.interruptAs(by) }), f.await)
}

// evalOn queues i to run on f between two of its instructions.
// It reports false when f has already completed.
func (f *fiberContext) evalOn(i instruction) bool {
	st, ok := f.executing()
	if !ok {
		return false
	}
	if st.mailbox == nil {
		st.mailbox = i
	} else {
		prev := st.mailbox
		st.mailbox = thenDo(prev, func() instruction { return i })
	}
	return true
}

// localScope is the scope in which f supervises its children.
func (f *fiberContext) localScope() *localScope {
	if f.scope == nil {
		f.scope = &localScope{id: f.id, owner: weak.Make(f)}
	}
	return f.scope
}

func (f *fiberContext) forkScope() Scope {
	if v, ok := f.locals[forkScopeOverride.core]; ok && v != nil {
		return v.(Scope)
	}
	return f.localScope()
}

func (f *fiberContext) addChild(child *fiberContext) bool {
	if f.closing {
		return false
	}
	if _, ok := f.executing(); !ok {
		return false
	}
	f.children[child.id] = child
	child.parent = weak.Make(f)
	return true
}

// detach removes a completed fiber from its supervising scope.
func (f *fiberContext) detach() {
	if p := f.parent.Value(); p != nil {
		delete(p.children, f.id)
	}
	if f.global {
		f.rt.roots.remove(f.id)
	}
}

// fork creates a child running i and starts it on the current goroutine.
func (f *fiberContext) fork(i instruction, scope Scope) *fiberContext {
	rt := f.rt
	child := newFiberContext(rt, rt.ids.next())
	if !f.isInterruptible() {
		child.pushInterruptStatus(false)
	}
	child.env = f.env
	child.supervisors = f.supervisors
	child.locals = f.forkLocals()

	if scope == nil {
		scope = f.forkScope()
	}
	sup := f.supervisor()
	child.started = sup
	sup.OnStart(child.id, f.id)
	if !scope.unsafeAdd(child) {
		rt.logger.Debug().
			Stringer("fiber", child.id).
			Stringer("parent", f.id).
			Str("scope", scope.String()).
			Msg("fx: scope closed, child interrupted")
		i = haltNow(InterruptCause(f.id))
	}
	child.evaluateNow(i)
	return child
}

// done completes the fiber with exit. Pending mailbox work and children are
// handled first; it returns the instruction that does so, or nil once the
// fiber has reached its terminal state.
func (f *fiberContext) done(exit Exit[kont.Erased]) instruction {
	st, ok := f.executing()
	if !ok {
		return nil
	}
	f.closing = true

	if st.mailbox != nil {
		mb := st.mailbox
		st.mailbox = nil
		return &interruptStatus{interruptible: false, effect: &fold{
			effect: mb,
			onFailure: func(c Cause) instruction {
				f.rt.reportFailure(f.id, c)
				return &finish{exit: exit}
			},
			onSuccess: func(kont.Erased) instruction { return &finish{exit: exit} },
		}}
	}

	if len(f.children) > 0 {
		st.status = Status{Kind: StatusFinishing, Interrupting: st.status.Interrupting}
		children := make([]*fiberContext, 0, len(f.children))
		for _, c := range f.children {
			children = append(children, c)
		}
		slices.SortFunc(children, func(a, b *fiberContext) int { return cmp.Compare(a.id.Seq, b.id.Seq) })
		next := instruction(&finish{exit: exit})
		for _, c := range slices.Backward(children) {
			rest := next
			next = thenDo(c.interruptAsAndAwait(f.id), func() instruction { return rest })
		}
		return &interruptStatus{interruptible: false, effect: next}
	}

	final := exit
	if final.failed && !Contains(final.cause, st.suppressed) {
		final = Halted[kont.Erased](CauseThen(final.cause, st.suppressed))
	}
	f.state = &doneState{exit: final}
	f.detach()
	if f.started != nil {
		f.started.OnEnd(f.id, final)
	}
	if final.failed && len(st.observers) == 0 && !IsInterruptedOnly(final.cause) {
		f.rt.reportFailure(f.id, final.cause)
	}
	for _, o := range st.observers {
		o.fn(final)
	}
	return nil
}

// raceWith forks both sides and suspends until the first one completes.
func (f *fiberContext) raceWith(r *raceWith) instruction {
	var decided raceFlag
	left := f.fork(r.left, r.scope)
	right := f.fork(r.right, r.scope)
	return internalAsync(func(resume func(instruction)) kont.Either[instruction, instruction] {
		var lo, ro *observer
		// The winner detaches from the loser, which may outlive the race.
		win := func(loser *fiberContext, loserObs **observer, cont func(Exit[kont.Erased], *fiberContext) instruction) func(Exit[kont.Erased]) {
			return func(exit Exit[kont.Erased]) {
				if decided.decide() {
					loser.removeObserver(*loserObs)
					resume(&suspend{factory: func() instruction { return cont(exit, loser) }})
				}
			}
		}
		onLeft := win(right, &ro, r.onLeft)
		onRight := win(left, &lo, r.onRight)
		var (
			lexit, rexit Exit[kont.Erased]
			ldone, rdone bool
		)
		lo, lexit, ldone = left.observe(onLeft)
		ro, rexit, rdone = right.observe(onRight)
		switch {
		case ldone:
			onLeft(lexit)
		case rdone:
			onRight(rexit)
		}
		return kont.Left[instruction, instruction](syncUnit(func() {
			decided.decide()
			left.removeObserver(lo)
			right.removeObserver(ro)
			left.interruptAs(f.id)
			right.interruptAs(f.id)
		}))
	}, left.id, right.id)
}

// Descriptor is a snapshot of a running fiber.
type Descriptor struct {
	ID            FiberID
	Status        Status
	Interruptors  []FiberID
	Interruptible bool
	// Scope supervises the fibers this fiber forks by default.
	Scope Scope
}

func (f *fiberContext) descriptor() Descriptor {
	d := Descriptor{ID: f.id, Interruptible: f.isInterruptible(), Scope: f.localScope()}
	switch st := f.state.(type) {
	case *executing:
		d.Status = st.status
		d.Interruptors = slices.Clone(st.interruptors)
	case *doneState:
		d.Status = Status{Kind: StatusDone}
	}
	return d
}

func (f *fiberContext) status() Status {
	if st, ok := f.executing(); ok {
		return st.status
	}
	return Status{Kind: StatusDone}
}
