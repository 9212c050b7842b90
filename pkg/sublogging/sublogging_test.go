package sublogging_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb/pkg/sublogging"
)

type captureBackend struct {
	mu      sync.Mutex
	records []sublogging.Record
}

func (c *captureBackend) Name() string { return "capture" }
func (c *captureBackend) Write(records []sublogging.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
	return nil
}
func (c *captureBackend) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func TestSubsystemFlushesOnInterval(t *testing.T) {
	cfg := sublogging.DefaultConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	cfg.BufferCapacity = 100
	s := sublogging.New(cfg)
	backend := &captureBackend{}
	s.AddBackend(backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	s.Submit(sublogging.Record{Level: sublogging.LevelInfo, Message: "hello"})

	require.Eventually(t, func() bool { return backend.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubsystemFlushesWhenBufferFills(t *testing.T) {
	cfg := sublogging.Config{BufferCapacity: 4, ChannelSize: 16, FlushInterval: time.Hour, MinLevel: sublogging.LevelDebug}
	s := sublogging.New(cfg)
	backend := &captureBackend{}
	s.AddBackend(backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	for i := 0; i < 4; i++ {
		s.Submit(sublogging.Record{Level: sublogging.LevelInfo, Message: "m"})
	}

	require.Eventually(t, func() bool { return backend.count() == 4 }, time.Second, 5*time.Millisecond)
}

func TestSubsystemFiltersBelowMinLevel(t *testing.T) {
	cfg := sublogging.DefaultConfig()
	cfg.MinLevel = sublogging.LevelError
	cfg.FlushInterval = 10 * time.Millisecond
	s := sublogging.New(cfg)
	backend := &captureBackend{}
	s.AddBackend(backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	s.Submit(sublogging.Record{Level: sublogging.LevelInfo, Message: "ignored"})
	s.Submit(sublogging.Record{Level: sublogging.LevelError, Message: "kept"})

	require.Eventually(t, func() bool { return backend.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "kept", backend.records[0].Message)
}

func TestSubsystemStopPerformsFinalFlush(t *testing.T) {
	cfg := sublogging.DefaultConfig()
	cfg.FlushInterval = time.Hour
	s := sublogging.New(cfg)
	backend := &captureBackend{}
	s.AddBackend(backend)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	s.Submit(sublogging.Record{Level: sublogging.LevelInfo, Message: "final"})
	time.Sleep(10 * time.Millisecond) // let the drain goroutine pick it up before Stop

	require.NoError(t, s.Stop())
	assert.Equal(t, 1, backend.count())
	assert.False(t, s.IsRunning())
}

func TestSubsystemHealthDegradesUnderHighUtilization(t *testing.T) {
	cfg := sublogging.Config{BufferCapacity: 100, ChannelSize: 200, FlushInterval: time.Hour, MinLevel: sublogging.LevelDebug}
	s := sublogging.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	for i := 0; i < 95; i++ {
		s.Submit(sublogging.Record{Level: sublogging.LevelInfo, Message: "m"})
	}

	require.Eventually(t, func() bool { return s.BufferedCount() >= 95 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Health().Degraded)
}
