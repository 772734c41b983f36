// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fx provides an effect system with a fiber runtime.
//
// An [Effect] describes a computation that succeeds with a value or fails
// with a [Cause]. Effects are executed on fibers: lightweight threads
// multiplexed by a [Runtime] over a [Scheduler], with structured
// concurrency, asynchronous suspension and interruption.
//
// # Architecture
//
//   - Run loop: effects compile to a closed set of instructions interpreted
//     by a per-fiber loop over a persistent continuation stack. A fiber
//     yields after [DefaultMaxOps] instructions so others make progress.
//   - Scheduling: [EventLoop] drains a lock-free bounded ring via
//     [code.hybscloud.com/lfq] on at most one goroutine at a time.
//   - Failures: a [Cause] composes typed failures ([Fail]), defects ([Die]
//     and panics) and interruptions sequentially ([Then]) and in parallel ([Both]).
//   - Interruption: asynchronous, idempotent and deferred inside
//     [Uninterruptible] regions. Finalizers ([Ensuring], [Bracket]) always run.
//   - Structure: a forked fiber belongs to a [Scope]. By default that is its
//     parent's, and the parent interrupts and awaits its children before it
//     completes. [ForkDaemon] uses the [GlobalScope] instead.
//
// # API Topologies
//
//   - Construction: [Succeed], [Sync], [SyncErr], [Suspend], [Fail], [Die], [Async], [AsyncInterrupt].
//   - Sequencing: [FlatMap], [Map], [Zip], [FoldCause], [Fold], [CatchAll], [Loop], [ForEach].
//   - Concurrency: [Fork], [Fiber], [RaceWith], [Race], [RaceAll], [ForEachPar], [Timeout].
//   - Coordination: [Ref], [FiberRef], [Deferred], [Semaphore], [Queue].
//   - Observation: [Supervisor], [Track], [GetDescriptor].
//   - kont: [Interpret] and [InterpretCont] run [code.hybscloud.com/kont]
//     computations on a fiber, one effect operation at a time.
//
// # Integration
//
//   - Blocking: [RunExit] and [RunValue] wait with adaptive backoff and honor context cancellation.
//   - Callback: [Run] reports the exit to a callback and returns an idempotent cancel function.
//   - Synchronous: [RunSync] drives a fiber on the calling goroutine and
//     reports [ErrAsyncOperation] at the first asynchronous boundary.
//   - Configuration: [Config] loads runtime options from YAML.
//
// # Example
//
//	rt := fx.NewRuntime()
//	eff := fx.FlatMap(fx.Fork(fx.Succeed(21)), func(fb fx.Fiber[int]) fx.Effect[int] {
//		return fx.Map(fb.Join(), func(n int) int { return n * 2 })
//	})
//	v, err := fx.RunValue(context.Background(), rt, eff)
package fx
