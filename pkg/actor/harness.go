package actor

// TestHarness runs an Actor synchronously on the calling goroutine, with
// no mailbox goroutine and no scheduling nondeterminism, for the
// deterministic actor tests spec.md §4.8 requires ("enqueue messages,
// call process_one/process_all, inspect state").
type TestHarness[S any, M any] struct {
	act     Actor[S, M]
	state   S
	queue   []M
	ctx     *Context[M]
	started bool
}

// NewTestHarness builds a harness around act with its own private
// mailbox and cancellation token; the actor's Init and PreStart run
// immediately.
func NewTestHarness[S any, M any](act Actor[S, M]) *TestHarness[S, M] {
	token := NewCancellationToken()
	ref := &ActorRef[M]{mailbox: make(chan M, 1), stopped: token}
	sys := NewSystem()
	ctx := &Context[M]{ref: ref, system: sys, cancel: token}
	h := &TestHarness[S, M]{act: act, ctx: ctx}
	h.state = act.Init(ctx)
	act.PreStart(ctx)
	h.started = true
	return h
}

// Enqueue appends a message to the harness's FIFO queue without
// processing it.
func (h *TestHarness[S, M]) Enqueue(msg M) { h.queue = append(h.queue, msg) }

// ProcessOne runs Handle on the oldest queued message, if any, and
// reports the Flow it returned. It reports (zero, false) if the queue
// was empty, running Idle instead.
func (h *TestHarness[S, M]) ProcessOne() (Flow, bool) {
	if len(h.queue) == 0 {
		h.act.Idle(h.state, h.ctx)
		return 0, false
	}
	msg := h.queue[0]
	h.queue = h.queue[1:]
	flow := h.act.Handle(h.state, msg, h.ctx)
	if flow == Stop {
		h.act.PostStop(h.state, h.ctx)
	}
	return flow, true
}

// ProcessAll drains the queue, stopping early if Handle returns Stop.
// It returns the number of messages processed.
func (h *TestHarness[S, M]) ProcessAll() int {
	n := 0
	for len(h.queue) > 0 {
		flow, _ := h.ProcessOne()
		n++
		if flow == Stop {
			break
		}
	}
	return n
}

// State exposes the actor's current state for assertions.
func (h *TestHarness[S, M]) State() S { return h.state }

// Pending reports how many messages remain queued.
func (h *TestHarness[S, M]) Pending() int { return len(h.queue) }
