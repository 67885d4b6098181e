// Package health answers liveness and readiness probes. A Probe reports
// nil when healthy and an error naming the reason otherwise; probes
// compose with All and Named. ShutdownGate fails readiness during drain.
package health

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason.
func Fixed(ok bool, reason string) Probe {
	if ok {
		return CheckFunc(func(context.Context) error { return nil })
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := xerrors.New(reason)
	return CheckFunc(func(context.Context) error { return err })
}

// All passes when every non-nil probe passes and returns the first failure.
func All(ps ...Probe) Probe {
	return CheckFunc(func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Named prefixes failures from p with name, e.g. "content: no active snapshot".
func Named(name string, p Probe) Probe {
	return CheckFunc(func(ctx context.Context) error {
		return xerrors.Wrap(p.Check(ctx), name)
	})
}

// ShutdownGate is open until Set; the zero value is ready to use.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set closes the gate with reason ("draining" when empty).
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

func (g *ShutdownGate) Probe() Probe {
	return CheckFunc(func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return xerrors.New(*r)
		}
		return nil
	})
}
