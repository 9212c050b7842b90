// Package subworker implements a priority-ordered background worker pool:
// fixed-interval recurring tasks (schedule_every/cancel) fan out across a
// small number of goroutines, with higher-priority tasks drained from the
// shared queue ahead of lower-priority ones.
//
// Grounded on crates/sub-api/src/worker.rs for the Priority/Scheduler/
// schedule_every/cancel contract and crates/sub-worker/tests/schedule_every.rs
// for its observable behavior (interval tasks keep firing until cancelled,
// a single worker drains strictly by priority). The teacher's
// pkg/scheduler/scheduler.go supplies the ticker-plus-stopCh loop shape this
// package generalizes from one fixed interval into N independently
// scheduled tasks feeding a shared priority queue.
package subworker

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reifydb/reifydb/pkg/log"
	"github.com/rs/zerolog"
)

// Priority orders ready tasks within the shared queue; High drains before
// Normal, Normal before Low.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "normal"
	}
}

// Task is one unit of recurring work submitted to the pool.
type Task interface {
	Execute(ctx context.Context) error
	Name() string
	Priority() Priority
}

// TaskFunc adapts a plain function into a Task, mirroring ClosureTask.
type TaskFunc struct {
	TaskName     string
	TaskPriority Priority
	Fn           func(ctx context.Context) error
}

func (f TaskFunc) Execute(ctx context.Context) error { return f.Fn(ctx) }
func (f TaskFunc) Name() string                      { return f.TaskName }
func (f TaskFunc) Priority() Priority                { return f.TaskPriority }

// Handle identifies a scheduled recurring task for later cancellation.
type Handle uint64

// Config controls pool sizing and timeout reporting.
type Config struct {
	NumWorkers         int
	MaxQueueSize       int
	SchedulerInterval  time.Duration
	TaskTimeoutWarning time.Duration
}

func DefaultConfig() Config {
	return Config{
		NumWorkers:         4,
		MaxQueueSize:       1024,
		SchedulerInterval:  10 * time.Millisecond,
		TaskTimeoutWarning: time.Second,
	}
}

type job struct {
	task Task
	seq  uint64
}

// jobQueue is a container/heap priority queue ordered by Priority
// descending, then submission order ascending (FIFO within a priority).
type jobQueue []job

func (q jobQueue) Len() int { return len(q) }
func (q jobQueue) Less(i, j int) bool {
	if q[i].task.Priority() != q[j].task.Priority() {
		return q[i].task.Priority() > q[j].task.Priority()
	}
	return q[i].seq < q[j].seq
}
func (q jobQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *jobQueue) Push(x any)        { *q = append(*q, x.(job)) }
func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Pool is a priority-ordered worker pool running recurring tasks.
type Pool struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  jobQueue
	nextSeq uint64
	closed bool

	scheduledMu sync.Mutex
	scheduled   map[Handle]chan struct{}
	nextHandle  uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultConfig().NumWorkers
	}
	p := &Pool{
		cfg:       cfg,
		logger:    log.WithComponent("subworker"),
		scheduled: make(map[Handle]chan struct{}),
		stopCh:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. ctx is passed to every Task.Execute
// call and should outlive the pool's lifetime.
func (p *Pool) Start(ctx context.Context) error {
	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx)
	}
	return nil
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		j, ok := p.dequeue()
		if !ok {
			return
		}
		start := time.Now()
		if err := j.task.Execute(ctx); err != nil {
			p.logger.Error().Err(err).Str("task", j.task.Name()).Msg("task failed")
		}
		if d := time.Since(start); d > p.cfg.TaskTimeoutWarning {
			p.logger.Warn().Str("task", j.task.Name()).Dur("duration", d).Msg("task exceeded timeout warning threshold")
		}
	}
}

func (p *Pool) dequeue() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed && len(p.queue) == 0 {
		return job{}, false
	}
	return heap.Pop(&p.queue).(job), true
}

func (p *Pool) enqueue(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.cfg.MaxQueueSize > 0 && len(p.queue) >= p.cfg.MaxQueueSize {
		p.logger.Warn().Str("task", t.Name()).Msg("queue full, dropping tick")
		return
	}
	heap.Push(&p.queue, job{task: t, seq: p.nextSeq})
	p.nextSeq++
	p.cond.Signal()
}

// ScheduleEvery submits task to run on every tick of interval until
// Cancel(handle) is called. The next tick is timed from when the previous
// one was submitted, not from when it finished executing: a slow task can
// have multiple instances queued.
func (p *Pool) ScheduleEvery(interval time.Duration, task Task) (Handle, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("subworker: interval must be positive")
	}
	p.scheduledMu.Lock()
	p.nextHandle++
	handle := Handle(p.nextHandle)
	cancel := make(chan struct{})
	p.scheduled[handle] = cancel
	p.scheduledMu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.enqueue(task)
			case <-cancel:
				return
			case <-p.stopCh:
				return
			}
		}
	}()
	return handle, nil
}

// Cancel stops a scheduled recurring task. Already-queued instances of it
// still run.
func (p *Pool) Cancel(handle Handle) error {
	p.scheduledMu.Lock()
	defer p.scheduledMu.Unlock()
	cancel, ok := p.scheduled[handle]
	if !ok {
		return fmt.Errorf("subworker: unknown task handle %d", handle)
	}
	close(cancel)
	delete(p.scheduled, handle)
	return nil
}

// Shutdown stops every scheduler goroutine and worker; jobs already
// queued still run before the workers exit.
func (p *Pool) Shutdown() error {
	close(p.stopCh)
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
