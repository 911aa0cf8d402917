package executor

import (
	"context"
	"time"
)

// Request identifies the step a capability executor is asked to perform.
type Request struct {
	StepID  string
	Kind    string
	Context map[string]any
}

// Executor performs the actual work for a step kind. Implementations may
// be local deterministic stubs or calls to an external reasoning service;
// the engine treats them as opaque. A nil error means success.
type Executor interface {
	Execute(ctx context.Context, req Request) (map[string]any, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, req Request) (map[string]any, error)

func (f Func) Execute(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

// Registry maps executor names to implementations with one designated
// default. Resolving an unknown name is not an error; it yields the
// default executor so unmapped step kinds run instead of failing.
type Registry struct {
	defaultName string
	byName      map[string]Executor
}

func NewRegistry(defaultName string, def Executor) *Registry {
	return &Registry{
		defaultName: defaultName,
		byName:      map[string]Executor{defaultName: def},
	}
}

func (r *Registry) Register(name string, ex Executor) {
	r.byName[name] = ex
}

// Resolve returns the executor registered under name, or the default when
// the name is unknown.
func (r *Registry) Resolve(name string) Executor {
	if ex, ok := r.byName[name]; ok {
		return ex
	}
	return r.byName[r.defaultName]
}

// DefaultName returns the name of the designated default executor.
func (r *Registry) DefaultName() string { return r.defaultName }

// Simulated is a local stub executor that reports success after a fixed
// delay. It stands in when no real capability is registered.
type Simulated struct {
	Delay time.Duration
}

func (s Simulated) Execute(ctx context.Context, req Request) (map[string]any, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]any{"mode": "simulated", "kind": req.Kind}, nil
}
