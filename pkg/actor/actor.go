// Package actor implements the cooperative runtime described in spec.md
// §4.8: bounded mailboxes, a minimal actor trait, an actor system that
// dispatches one goroutine per actor, cancellation tokens, and a
// synchronous TestHarness.
//
// The mailbox back-pressure and run-loop shape generalizes the
// teacher's pkg/events Broker: a buffered channel drained by a single
// goroutine that selects against a stop signal, widened here from a
// broadcast-only pub/sub into a full request/reply actor mailbox.
package actor

import (
	"context"
	"fmt"
	"runtime"
)

// Flow is the directive an actor's handle returns, per spec.md §4.8.
type Flow int

const (
	// Continue processes the next queued message immediately.
	Continue Flow = iota
	// Yield processes the next message but gives other runnable
	// actors a chance to run first.
	Yield
	// Park runs Idle before the next message is delivered.
	Park
	// Stop drains no further messages and runs post_stop.
	Stop
)

// Actor is the behavior run by one ActorRef. State is owned exclusively
// by the actor's own goroutine; Init constructs it, Handle mutates it
// per message, Idle runs when the mailbox is empty.
type Actor[S any, M any] interface {
	Init(ctx *Context[M]) S
	Handle(state S, msg M, ctx *Context[M]) Flow
	// Idle runs once whenever the mailbox drains empty; implementations
	// that don't need idle work can return immediately.
	Idle(state S, ctx *Context[M])
	PreStart(ctx *Context[M])
	PostStop(state S, ctx *Context[M])
}

// BaseActor supplies no-op PreStart/PostStop/Idle so implementations
// only need Init and Handle, mirroring how most of the teacher's own
// background loops have no explicit startup/shutdown hook.
type BaseActor[S any, M any] struct{}

func (BaseActor[S, M]) Idle(S, *Context[M])        {}
func (BaseActor[S, M]) PreStart(*Context[M])       {}
func (BaseActor[S, M]) PostStop(S, *Context[M])    {}

// Config bounds the mailbox and is honored where meaningful (native
// target); WASM-style inline dispatch is out of scope for this module,
// so PoolThreads/MaxInFlight are accepted for interface parity with
// spec.md §4.8 but only MailboxCapacity currently affects behavior.
type Config struct {
	MailboxCapacity int
	PoolThreads     int
	MaxInFlight     int
}

func DefaultConfig() Config { return Config{MailboxCapacity: 4096} }

// CancellationToken is a shared, cooperative stop signal. Every actor
// run loop and every long storage iteration checks it at least once per
// batch (spec.md §5 "Cancellation").
type CancellationToken struct {
	ch chan struct{}
}

func NewCancellationToken() *CancellationToken {
	return &CancellationToken{ch: make(chan struct{})}
}

func (c *CancellationToken) Cancel() {
	select {
	case <-c.ch:
	default:
		close(c.ch)
	}
}

func (c *CancellationToken) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

func (c *CancellationToken) Done() <-chan struct{} { return c.ch }

// ActorRef is a typed, bounded, MPSC mailbox with back-pressure.
type ActorRef[M any] struct {
	mailbox chan M
	stopped *CancellationToken
}

// Send blocks until the message is enqueued or ctx/the actor's own
// cancellation token fires.
func (r *ActorRef[M]) Send(ctx context.Context, msg M) error {
	select {
	case r.mailbox <- msg:
		return nil
	case <-r.stopped.Done():
		return fmt.Errorf("actor: send to stopped actor")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues msg without blocking; it reports false if the
// mailbox is full or the actor has stopped.
func (r *ActorRef[M]) TrySend(msg M) bool {
	if r.stopped.Cancelled() {
		return false
	}
	select {
	case r.mailbox <- msg:
		return true
	default:
		return false
	}
}

func (r *ActorRef[M]) MarkStopped() { r.stopped.Cancel() }

// Context is handed to every Actor callback: its own ref, the owning
// system, and the cancellation token governing its lifetime.
type Context[M any] struct {
	ref    *ActorRef[M]
	system *System
	cancel *CancellationToken
}

func (c *Context[M]) ActorRef() *ActorRef[M]        { return c.ref }
func (c *Context[M]) System() *System                { return c.system }
func (c *Context[M]) Cancel() *CancellationToken     { return c.cancel }

// System spawns actors, one goroutine each over a shared cancellation
// scope so System.Shutdown stops every actor it spawned.
type System struct {
	root *CancellationToken
}

func NewSystem() *System {
	return &System{root: NewCancellationToken()}
}

// Shutdown cancels every actor spawned from this system.
func (s *System) Shutdown() { s.root.Cancel() }

// Spawn starts act's run loop on its own goroutine and returns a ref to
// its mailbox. The loop exits, running PostStop, when Handle returns
// Stop or the system/actor cancellation token fires.
func Spawn[S any, M any](sys *System, act Actor[S, M], cfg Config) *ActorRef[M] {
	if cfg.MailboxCapacity <= 0 {
		cfg = DefaultConfig()
	}
	token := NewCancellationToken()
	ref := &ActorRef[M]{mailbox: make(chan M, cfg.MailboxCapacity), stopped: token}
	ctx := &Context[M]{ref: ref, system: sys, cancel: token}

	go func() {
		state := act.Init(ctx)
		act.PreStart(ctx)
		defer act.PostStop(state, ctx)
		for {
			select {
			case msg := <-ref.mailbox:
				switch act.Handle(state, msg, ctx) {
				case Stop:
					ref.MarkStopped()
					return
				case Park:
					act.Idle(state, ctx)
				case Yield:
					runtime.Gosched()
				default:
				}
			case <-token.Done():
				return
			case <-sys.root.Done():
				ref.MarkStopped()
				return
			default:
				act.Idle(state, ctx)
				select {
				case msg := <-ref.mailbox:
					if act.Handle(state, msg, ctx) == Stop {
						ref.MarkStopped()
						return
					}
				case <-token.Done():
					return
				case <-sys.root.Done():
					ref.MarkStopped()
					return
				}
			}
		}
	}()
	return ref
}
