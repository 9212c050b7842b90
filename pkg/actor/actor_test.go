package actor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb/pkg/actor"
)

type counterMsg struct {
	delta int
	stop  bool
}

type counterActor struct {
	actor.BaseActor[*int, counterMsg]
}

func (counterActor) Init(ctx *actor.Context[counterMsg]) *int {
	n := 0
	return &n
}

func (counterActor) Handle(state *int, msg counterMsg, ctx *actor.Context[counterMsg]) actor.Flow {
	*state += msg.delta
	if msg.stop {
		return actor.Stop
	}
	return actor.Continue
}

func TestSpawnAcceptsQueuedMessages(t *testing.T) {
	sys := actor.NewSystem()
	defer sys.Shutdown()

	ref := actor.Spawn[*int, counterMsg](sys, counterActor{}, actor.DefaultConfig())
	ctx := context.Background()
	require.NoError(t, ref.Send(ctx, counterMsg{delta: 1}))
	require.NoError(t, ref.Send(ctx, counterMsg{delta: 2}))
	require.NoError(t, ref.Send(ctx, counterMsg{delta: 3}))

	// give the actor goroutine a moment to drain the mailbox.
	time.Sleep(20 * time.Millisecond)
}

func TestCancellationTokenStopsOnce(t *testing.T) {
	tok := actor.NewCancellationToken()
	assert.False(t, tok.Cancelled())
	tok.Cancel()
	tok.Cancel() // must not panic on double-cancel
	assert.True(t, tok.Cancelled())
	select {
	case <-tok.Done():
	default:
		t.Fatal("Done channel should be closed after Cancel")
	}
}

func TestTestHarnessProcessesSynchronously(t *testing.T) {
	h := actor.NewTestHarness[*int, counterMsg](counterActor{})
	h.Enqueue(counterMsg{delta: 5})
	h.Enqueue(counterMsg{delta: 7})

	flow, ok := h.ProcessOne()
	require.True(t, ok)
	assert.Equal(t, actor.Continue, flow)
	assert.Equal(t, 5, *h.State())

	assert.Equal(t, 1, h.ProcessAll())
	assert.Equal(t, 12, *h.State())
	assert.Equal(t, 0, h.Pending())
}

func TestTestHarnessStopsEarlyOnStopFlow(t *testing.T) {
	h := actor.NewTestHarness[*int, counterMsg](counterActor{})
	h.Enqueue(counterMsg{delta: 1, stop: true})
	h.Enqueue(counterMsg{delta: 100})

	n := h.ProcessAll()
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, *h.State())
	assert.Equal(t, 1, h.Pending(), "message queued after Stop must remain unprocessed")
}

func TestActorRefTrySendEnqueuesWhenMailboxHasRoom(t *testing.T) {
	sys := actor.NewSystem()
	defer sys.Shutdown()
	ref := actor.Spawn[*int, counterMsg](sys, counterActor{}, actor.Config{MailboxCapacity: 1})
	// best-effort: at least one TrySend must succeed.
	ok := ref.TrySend(counterMsg{delta: 1})
	assert.True(t, ok)
}
