// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxOps is the number of instructions a fiber executes before it
// yields to other fibers.
const DefaultMaxOps = 2048

// ErrAsyncOperation is the defect raised when [RunSync] meets an
// asynchronous boundary. It matches iox.ErrWouldBlock.
var ErrAsyncOperation = fmt.Errorf("fx: asynchronous operation in synchronous run: %w", iox.ErrWouldBlock)

// Runtime executes effects on fibers.
type Runtime struct {
	id        uuid.UUID
	scheduler Scheduler
	maxOps    int
	logger    zerolog.Logger
	reporting bool
	syncOnly  bool

	supervisor Supervisor
	ids        fiberIDs
	roots      registry
}

// RuntimeOption configures a [Runtime].
type RuntimeOption func(*Runtime)

// WithMaxOps sets the instruction budget of a fiber slice.
func WithMaxOps(n int) RuntimeOption {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxOps = n
		}
	}
}

// WithLogger sets the logger used for runtime diagnostics.
func WithLogger(l zerolog.Logger) RuntimeOption {
	return func(rt *Runtime) { rt.logger = l }
}

// WithSupervisor installs s on every root fiber.
func WithSupervisor(s Supervisor) RuntimeOption {
	return func(rt *Runtime) { rt.supervisor = Supervisors(s) }
}

// WithScheduler replaces the default [EventLoop].
func WithScheduler(s Scheduler) RuntimeOption {
	return func(rt *Runtime) { rt.scheduler = s }
}

// WithReportUnhandled controls whether failures of fibers nobody observes
// are logged.
func WithReportUnhandled(on bool) RuntimeOption {
	return func(rt *Runtime) { rt.reporting = on }
}

// NewRuntime returns a runtime with its own scheduler and fiber identities.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		id:         uuid.New(),
		maxOps:     DefaultMaxOps,
		logger:     defaultLogger(),
		reporting:  true,
		supervisor: NoSupervisor,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.scheduler == nil {
		rt.scheduler = NewEventLoop(DefaultLoopCapacity)
	}
	rt.logger = rt.logger.With().Str("runtime", rt.id.String()).Logger()
	return rt
}

func defaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

// ID returns the unique identity of the runtime.
func (rt *Runtime) ID() uuid.UUID { return rt.id }

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *zerolog.Logger { return &rt.logger }

// Roots returns the live fibers of the global scope, in start order.
func (rt *Runtime) Roots() []FiberID { return rt.roots.ids() }

func (rt *Runtime) reportFailure(id FiberID, cause Cause) {
	if !rt.reporting {
		return
	}
	rt.logger.Error().
		Stringer("fiber", id).
		Err(Squash(cause)).
		Str("cause", cause.String()).
		Msg("fx: unhandled fiber failure")
}

// spawn creates a root fiber without starting it.
func (rt *Runtime) spawn() *fiberContext {
	fc := newFiberContext(rt, rt.ids.next())
	if rt.supervisor != NoSupervisor {
		fc.pushSupervisor(rt.supervisor)
	}
	fc.started = rt.supervisor
	GlobalScope().unsafeAdd(fc)
	rt.supervisor.OnStart(fc.id, NoFiber)
	return fc
}

func (rt *Runtime) start(fc *fiberContext, i instruction) {
	rt.scheduler.Dispatch(func() { fc.evaluateNow(i) })
}

// Run starts e on a new root fiber and calls cb, if not nil, with its exit.
// cb runs on the scheduler and must not block. The returned function
// interrupts the fiber; calling it more than once has no further effect.
func Run[A any](rt *Runtime, e Effect[A], cb func(Exit[A])) (cancel func()) {
	fc := rt.spawn()
	if cb != nil {
		fc.observe(func(exit Exit[kont.Erased]) { cb(typedExit[A](exit)) })
	}
	rt.start(fc, e.instr())
	var once atomix.Uint32
	return func() {
		if once.CompareAndSwap(0, 1) {
			rt.scheduler.Dispatch(func() { fc.interruptAs(NoFiber) })
		}
	}
}

// RunExit runs e and blocks until it completes. Cancelling ctx interrupts
// the fiber; RunExit still waits for it to finish unwinding.
func RunExit[A any](ctx context.Context, rt *Runtime, e Effect[A]) Exit[A] {
	var (
		done atomix.Uint32
		exit Exit[A]
	)
	cancel := Run(rt, e, func(x Exit[A]) {
		exit = x
		done.Store(1)
	})
	var bo iox.Backoff
	for done.Load() == 0 {
		if ctx.Err() != nil {
			cancel()
		}
		bo.Wait()
	}
	return exit
}

// RunValue runs e and returns its value, or an error wrapping its cause.
func RunValue[A any](ctx context.Context, rt *Runtime, e Effect[A]) (A, error) {
	exit := RunExit(ctx, rt, e)
	if v, ok := exit.Value(); ok {
		return v, nil
	}
	var zero A
	return zero, exit.Err()
}

// RunSync runs e to completion on the calling goroutine. Effects that
// need an asynchronous boundary, such as [Async] or [Sleep], die with
// [ErrAsyncOperation].
func RunSync[A any](e Effect[A], opts ...RuntimeOption) Exit[A] {
	s := &inlineScheduler{}
	rt := NewRuntime(append(opts, WithScheduler(s))...)
	rt.syncOnly = true

	var (
		exit     Exit[A]
		finished bool
	)
	fc := rt.spawn()
	fc.observe(func(x Exit[kont.Erased]) {
		exit = typedExit[A](x)
		finished = true
	})
	rt.start(fc, e.instr())
	s.drain()
	if !finished {
		return Halted[A](DieCause(ErrAsyncOperation))
	}
	return exit
}

// Shutdown interrupts every root fiber and waits until all of them have
// completed or ctx is done.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	for _, fc := range rt.roots.snapshot() {
		rt.scheduler.Dispatch(func() { fc.interruptAs(NoFiber) })
	}
	var bo iox.Backoff
	for rt.roots.len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
	return nil
}

// registry holds the fibers of the global scope.
type registry struct {
	mu     sync.Mutex
	fibers map[FiberID]*fiberContext
}

func (r *registry) add(fc *fiberContext) {
	r.mu.Lock()
	if r.fibers == nil {
		r.fibers = make(map[FiberID]*fiberContext)
	}
	r.fibers[fc.id] = fc
	r.mu.Unlock()
}

func (r *registry) remove(id FiberID) {
	r.mu.Lock()
	delete(r.fibers, id)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fibers)
}

func (r *registry) snapshot() []*fiberContext {
	r.mu.Lock()
	out := make([]*fiberContext, 0, len(r.fibers))
	for _, fc := range r.fibers {
		out = append(out, fc)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b *fiberContext) int { return compareFiberID(a.id, b.id) })
	return out
}

func (r *registry) ids() []FiberID {
	fibers := r.snapshot()
	ids := make([]FiberID, len(fibers))
	for i, fc := range fibers {
		ids[i] = fc.id
	}
	return ids
}
