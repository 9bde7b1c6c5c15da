package coroutine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tarmac-project/kvbridge/host"
	"github.com/tarmac-project/kvbridge/logging"
	"github.com/tarmac-project/kvbridge/oneshot"
	"github.com/tarmac-project/kvbridge/runtime"
)

var (
	// ErrAwaitedTwice is the panic value raised when a deferred handle is begun twice.
	ErrAwaitedTwice = errors.New("coroutine awaited twice")

	// ErrConsumed is the panic value raised when a handle is polled after its final step.
	ErrConsumed = errors.New("coroutine polled after completion")

	// ErrNotAwaited is the panic value raised when a deferred handle is polled before it was awaited.
	ErrNotAwaited = errors.New("coroutine polled before it was awaited")

	// ErrTaskTerminated is raised to the host when the background task ended without a result.
	ErrTaskTerminated = errors.New("background task terminated unexpectedly")
)

// State is the lifecycle position of a handle.
type State int32

const (
	// Created is a deferred handle whose work has not been submitted.
	Created State = iota
	// Spawned is a handle whose work is running or queued.
	Spawned
	// Ready is a handle whose result is waiting to be polled.
	Ready
	// Consumed is a handle whose result was polled.
	Consumed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Spawned:
		return "spawned"
	case Ready:
		return "ready"
	case Consumed:
		return "consumed"
	}
	return "unknown"
}

// Env is what a handle needs from its surroundings.
type Env struct {
	// Runtime runs the work. Nil uses runtime.Default.
	Runtime *runtime.Runtime

	// GIL guards result conversion. It must be the lock the host loop uses.
	GIL *host.GIL

	// Logger receives handle lifecycle entries. Nil discards them.
	Logger logging.Client
}

func (e Env) withDefaults() Env {
	if e.Runtime == nil {
		e.Runtime = runtime.Default()
	}
	if e.GIL == nil {
		e.GIL = &host.GIL{}
	}
	if e.Logger == nil {
		e.Logger = logging.Nop()
	}
	return e
}

// outcome is what travels through the channel.
type outcome struct {
	value host.Object
	err   error
}

// Coroutine is a Task Handle: one in-flight or completed operation.
type Coroutine struct {
	id       string
	name     string
	env      Env
	deferred bool
	state    atomic.Int32
	rx       *oneshot.Receiver[outcome]
	job      runtime.Job
}

// Ensure Coroutine satisfies the host protocol at compile time.
var (
	_ host.Awaitable = (*Coroutine)(nil)
	_ host.Iterator  = (*Coroutine)(nil)
	_ host.Waker     = (*Coroutine)(nil)
)

// Spawn creates a handle and submits task to the runtime immediately. The
// task's result is converted with into while holding the GIL.
func Spawn[T any](env Env, name string, task func(context.Context) (T, error), into func(T) (host.Object, error)) *Coroutine {
	c := build(env, name, task, into)
	c.state.Store(int32(Spawned))
	c.submit()
	return c
}

// Defer creates a handle whose task is submitted on the first Await or Iter.
func Defer[T any](env Env, name string, task func(context.Context) (T, error), into func(T) (host.Object, error)) *Coroutine {
	c := build(env, name, task, into)
	c.deferred = true
	c.state.Store(int32(Created))
	return c
}

// Failed creates a handle that is already complete with err. It reports
// failures detected before any work was submitted at the point the host
// retrieves the result.
func Failed(env Env, name string, err error) *Coroutine {
	tx, rx := oneshot.New[outcome]()
	c := &Coroutine{id: uuid.NewString(), name: name, env: env.withDefaults(), rx: rx}
	c.state.Store(int32(Ready))
	tx.Send(outcome{err: err})
	return c
}

func build[T any](env Env, name string, task func(context.Context) (T, error), into func(T) (host.Object, error)) *Coroutine {
	env = env.withDefaults()
	tx, rx := oneshot.New[outcome]()
	c := &Coroutine{id: uuid.NewString(), name: name, env: env, rx: rx}

	c.job = runtime.Job{
		Name: name + "/" + c.id,
		Run: func(ctx context.Context) {
			var out outcome
			v, err := task(ctx)
			if err != nil {
				out.err = err
			} else {
				out.err = env.GIL.With(ctx, func(context.Context) error {
					obj, convErr := into(v)
					out.value = obj
					return convErr
				})
			}
			c.state.CompareAndSwap(int32(Spawned), int32(Ready))
			if !tx.Send(out) {
				env.Logger.Debug("result discarded, handle dropped", "task", name, "id", c.id)
			}
		},
		Discard: tx.Close,
	}
	return c
}

func (c *Coroutine) submit() {
	c.env.Logger.Trace("task submitted", "task", c.name, "id", c.id)
	if err := c.env.Runtime.Spawn(c.job); err != nil {
		c.env.Logger.Warn("task refused by runtime", "task", c.name, "id", c.id, "error", err)
	}
	c.job = runtime.Job{}
}

// begin starts a deferred handle exactly once.
func (c *Coroutine) begin() {
	if !c.deferred {
		return
	}
	if !c.state.CompareAndSwap(int32(Created), int32(Spawned)) {
		panic(ErrAwaitedTwice)
	}
	c.submit()
}

// Await begins awaiting and returns the handle itself as the iterator.
func (c *Coroutine) Await() host.Iterator {
	c.begin()
	return c
}

// Iter begins iteration and returns the handle itself.
func (c *Coroutine) Iter() host.Iterator {
	c.begin()
	return c
}

// Next polls for the result without blocking. The caller must hold the GIL.
func (c *Coroutine) Next() host.Step {
	switch c.State() {
	case Created:
		panic(ErrNotAwaited)
	case Consumed:
		panic(ErrConsumed)
	}

	out, err := c.rx.TryRecv()
	switch {
	case errors.Is(err, oneshot.ErrEmpty):
		return host.Step{Kind: host.Pending}
	case errors.Is(err, oneshot.ErrClosed):
		c.state.Store(int32(Consumed))
		c.env.Logger.Warn("task terminated without a result", "task", c.name, "id", c.id)
		return host.Step{Kind: host.Raise, Err: host.Project(ErrTaskTerminated)}
	}

	c.state.Store(int32(Consumed))
	if out.err != nil {
		return host.Step{Kind: host.Raise, Err: host.Project(out.err)}
	}
	return host.Step{Kind: host.Return, Value: out.value}
}

// Ready returns a channel closed once the result can be polled.
func (c *Coroutine) Ready() <-chan struct{} { return c.rx.Ready() }

// State returns the lifecycle position of the handle.
func (c *Coroutine) State() State { return State(c.state.Load()) }

// ID returns the handle's unique identifier.
func (c *Coroutine) ID() string { return c.id }

// Close drops the handle. Work already submitted keeps running and its result
// is discarded.
func (c *Coroutine) Close() { c.rx.Close() }
