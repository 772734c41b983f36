// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fxotel traces fibers with OpenTelemetry. Each fiber becomes one
// span, parented on the span of the fiber that forked it.
package fxotel

import (
	"context"
	"sync"

	"code.hybscloud.com/fx"
	"code.hybscloud.com/kont"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of the default tracer.
const ScopeName = "code.hybscloud.com/fx"

// Supervisor is an [fx.Supervisor] that opens a span when a fiber starts
// and ends it when the fiber completes. Suspensions and resumptions are
// recorded as span events.
//
// Fiber identities are only unique within one runtime; use one
// Supervisor per runtime.
type Supervisor struct {
	tracer trace.Tracer
	root   context.Context

	mu    sync.Mutex
	spans map[fx.FiberID]trace.Span
}

// New returns a supervisor that starts spans with tracer. Root fibers are
// parented on the span in ctx, if any. A nil tracer selects the global
// provider's tracer.
func New(ctx context.Context, tracer trace.Tracer) *Supervisor {
	if tracer == nil {
		tracer = otel.Tracer(ScopeName)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Supervisor{tracer: tracer, root: ctx, spans: make(map[fx.FiberID]trace.Span)}
}

func (s *Supervisor) OnStart(id, parent fx.FiberID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.root
	if p, ok := s.spans[parent]; ok {
		ctx = trace.ContextWithSpan(ctx, p)
	}
	_, span := s.tracer.Start(ctx, "fiber "+id.String(),
		trace.WithAttributes(
			attribute.Int64("fx.fiber.seq", int64(id.Seq)),
			attribute.String("fx.fiber.parent", parent.String()),
		),
	)
	s.spans[id] = span
}

func (s *Supervisor) OnEnd(id fx.FiberID, exit fx.Exit[kont.Erased]) {
	s.mu.Lock()
	span, ok := s.spans[id]
	delete(s.spans, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	if exit.IsFailure() {
		c := exit.Cause()
		span.SetAttributes(attribute.Bool("fx.fiber.interrupted", fx.IsInterrupted(c)))
		if !fx.IsInterruptedOnly(c) {
			span.RecordError(fx.Squash(c))
			span.SetStatus(codes.Error, c.String())
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (*Supervisor) OnEffect(fx.FiberID, fx.Op) {}

func (s *Supervisor) OnSuspend(id fx.FiberID) { s.event(id, "suspend") }

func (s *Supervisor) OnResume(id fx.FiberID) { s.event(id, "resume") }

func (s *Supervisor) event(id fx.FiberID, name string) {
	s.mu.Lock()
	span, ok := s.spans[id]
	s.mu.Unlock()
	if ok {
		span.AddEvent(name)
	}
}

// Active returns the number of fibers with an open span.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spans)
}

var _ fx.Supervisor = (*Supervisor)(nil)
