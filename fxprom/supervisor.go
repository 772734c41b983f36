// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fxprom exports fiber lifecycle metrics to Prometheus through an
// [fx.Supervisor].
package fxprom

import (
	"fmt"

	"code.hybscloud.com/fx"
	"code.hybscloud.com/kont"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of the fibers_ended_total counter.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeDefect      = "defect"
	OutcomeInterrupted = "interrupted"
)

// Options configures the metric names.
type Options struct {
	Namespace string
	Subsystem string
	// CountEffects enables the per-instruction counter. It is off by
	// default because it is updated on every step of every fiber.
	CountEffects bool
}

// Supervisor records fiber lifecycle events as Prometheus metrics.
// It is safe for concurrent use by several runtimes.
type Supervisor struct {
	started     prometheus.Counter
	ended       *prometheus.CounterVec
	live        prometheus.Gauge
	suspended   prometheus.Gauge
	suspensions prometheus.Counter
	effects     *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer, opts Options) (*Supervisor, error) {
	if opts.Namespace == "" {
		opts.Namespace = "fx"
	}
	s := &Supervisor{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "fibers_started_total",
			Help:      "Fibers started.",
		}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "fibers_ended_total",
			Help:      "Fibers completed, by outcome.",
		}, []string{"outcome"}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "fibers_live",
			Help:      "Fibers started and not yet completed.",
		}),
		suspended: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "fibers_suspended",
			Help:      "Fibers waiting on an asynchronous callback.",
		}),
		suspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "fiber_suspensions_total",
			Help:      "Asynchronous suspensions entered.",
		}),
	}
	collectors := []prometheus.Collector{s.started, s.ended, s.live, s.suspended, s.suspensions}
	if opts.CountEffects {
		s.effects = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "effects_total",
			Help:      "Instructions executed, by kind.",
		}, []string{"op"})
		collectors = append(collectors, s.effects)
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("fxprom: register: %w", err)
		}
	}
	return s, nil
}

// Outcome classifies an exit for the outcome label.
func Outcome(exit fx.Exit[kont.Erased]) string {
	if exit.IsSuccess() {
		return OutcomeSuccess
	}
	c := exit.Cause()
	switch {
	case fx.IsInterruptedOnly(c):
		return OutcomeInterrupted
	case len(fx.Defects(c)) > 0:
		return OutcomeDefect
	}
	return OutcomeFailure
}

func (s *Supervisor) OnStart(fx.FiberID, fx.FiberID) {
	s.started.Inc()
	s.live.Inc()
}

func (s *Supervisor) OnEnd(_ fx.FiberID, exit fx.Exit[kont.Erased]) {
	s.ended.WithLabelValues(Outcome(exit)).Inc()
	s.live.Dec()
}

func (s *Supervisor) OnEffect(_ fx.FiberID, op fx.Op) {
	if s.effects != nil {
		s.effects.WithLabelValues(op.String()).Inc()
	}
}

func (s *Supervisor) OnSuspend(fx.FiberID) {
	s.suspensions.Inc()
	s.suspended.Inc()
}

func (s *Supervisor) OnResume(fx.FiberID) {
	s.suspended.Dec()
}

var _ fx.Supervisor = (*Supervisor)(nil)
