package subworker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reifydb/reifydb/pkg/subworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleEveryExecutesRepeatedlyUntilCancelled(t *testing.T) {
	pool := subworker.New(subworker.DefaultConfig())
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Shutdown() })

	var count int32
	task := subworker.TaskFunc{
		TaskName:     "interval_task",
		TaskPriority: subworker.Normal,
		Fn: func(context.Context) error {
			atomic.AddInt32(&count, 1)
			return nil
		},
	}

	handle, err := pool.ScheduleEvery(10*time.Millisecond, task)
	require.NoError(t, err)

	deadline := time.Now().Add(500 * time.Millisecond)
	for atomic.LoadInt32(&count) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))

	require.NoError(t, pool.Cancel(handle))
	before := atomic.LoadInt32(&count)
	time.Sleep(80 * time.Millisecond)
	after := atomic.LoadInt32(&count)
	assert.Equal(t, before, after, "task must not fire after cancellation")
}

func TestScheduleEveryRunsTasksOfEachPriority(t *testing.T) {
	cfg := subworker.DefaultConfig()
	cfg.NumWorkers = 1
	pool := subworker.New(cfg)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Shutdown() })

	var mu sync.Mutex
	var order []string

	high := subworker.TaskFunc{TaskName: "high", TaskPriority: subworker.High, Fn: func(context.Context) error {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
		return nil
	}}
	low := subworker.TaskFunc{TaskName: "low", TaskPriority: subworker.Low, Fn: func(context.Context) error {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		return nil
	}}

	highHandle, err := pool.ScheduleEvery(30*time.Millisecond, high)
	require.NoError(t, err)
	lowHandle, err := pool.ScheduleEvery(30*time.Millisecond, low)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, pool.Cancel(highHandle))
	require.NoError(t, pool.Cancel(lowHandle))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, order, "high")
	assert.Contains(t, order, "low")
}

func TestCancelUnknownHandleReturnsError(t *testing.T) {
	pool := subworker.New(subworker.DefaultConfig())
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Shutdown() })

	err := pool.Cancel(subworker.Handle(999))
	assert.Error(t, err)
}
