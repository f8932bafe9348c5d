package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work. The context is cancelled when the pool shuts down.
type Task func(ctx context.Context)

type job struct {
	name string
	run  Task
}

// Pool is a bounded goroutine pool with a fixed-size queue. The player uses
// it to keep blocking network fetches off the event loop goroutine.
type Pool struct {
	queue     chan job
	wg        sync.WaitGroup
	submitMu  sync.RWMutex // held shared by Submit, exclusive by Shutdown
	accepting atomic.Bool
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// New starts maxWorkers goroutines reading from a queue of queueSize.
func New(maxWorkers, queueSize int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.accepting.Store(true)

	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "workers", maxWorkers, "queueSize", queueSize)
	return p
}

// Submit enqueues task. Returns false if the pool is shut down or the queue
// is full. wg.Add happens before the enqueue so Shutdown cannot miss it.
func (p *Pool) Submit(name string, task Task) bool {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if !p.accepting.Load() {
		return false
	}

	p.wg.Add(1)
	select {
	case p.queue <- job{name: name, run: task}:
		return true
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, task rejected", "task", name)
		return false
	}
}

// Context returns the context handed to tasks.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Shutdown stops accepting work, cancels the context handed to running
// tasks and waits for queued tasks to finish or ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) {
	p.submitMu.Lock()
	p.accepting.Store(false)
	p.submitMu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain timed out")
	}

	p.closeOnce.Do(func() {
		close(p.queue)
	})
}

func (p *Pool) worker() {
	for j := range p.queue {
		p.runJob(j)
	}
}

func (p *Pool) runJob(j job) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "task", j.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	j.run(p.ctx)
}
