package pool

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/queue"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// WorkerPool runs submitted tasks on a fixed number of goroutines, in
// submission order, from an unbounded queue. Submit never blocks.
type WorkerPool struct {
	name  string
	size  int
	tasks *queue.ThreadSafeQueue[func()]
	log   *logrus.Entry

	wg        sync.WaitGroup // Worker goroutines
	done      chan struct{}  // Closed once every worker has exited
	active    atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// New starts a pool of size workers. size must be positive.
func New(name string, size int, log *logrus.Entry) (*WorkerPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s pool size must be > 0, got %d", utils.ErrConfigValidation, name, size)
	}

	poolLog := log.WithFields(logrus.Fields{"component": "worker_pool", "pool": name})
	p := &WorkerPool{
		name:  name,
		size:  size,
		tasks: queue.NewThreadSafeQueue[func()](poolLog),
		log:   poolLog,
		done:  make(chan struct{}),
	}

	for i := 1; i <= size; i++ {
		p.wg.Add(1)
		go p.worker(poolLog.WithField("worker_id", i))
	}
	go func() { p.wg.Wait(); close(p.done) }()

	poolLog.WithField("size", size).Debug("Worker pool started")
	return p, nil
}

// Submit queues a task. It fails with ErrShutdown once Shutdown has been called.
func (p *WorkerPool) Submit(task func()) error {
	if !p.tasks.Add(task) {
		return utils.WrapErrorf(utils.ErrShutdown, "%s pool is not accepting tasks", p.name)
	}
	return nil
}

// Shutdown stops accepting tasks and waits up to timeout for the workers to
// drain the queue. It returns false if the timeout expired first; the workers
// keep draining in the background in that case.
func (p *WorkerPool) Shutdown(timeout time.Duration) bool {
	p.tasks.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		p.log.WithField("completed", p.completed.Load()).Debug("Worker pool drained")
		return true
	case <-timer.C:
		p.log.WithFields(logrus.Fields{
			"queued":  p.tasks.Len(),
			"active":  p.active.Load(),
			"timeout": timeout,
		}).Warn("Worker pool did not drain before timeout")
		return false
	}
}

func (p *WorkerPool) worker(workerLog *logrus.Entry) {
	defer p.wg.Done()

	for {
		task, ok := p.tasks.Pop()
		if !ok { // Closed and drained
			workerLog.Debug("Worker finished")
			return
		}
		p.run(task, workerLog)
	}
}

// run executes one task, keeping the worker alive if the task panics.
func (p *WorkerPool) run(task func(), workerLog *logrus.Entry) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			workerLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in pooled task")
		}
		p.active.Add(-1)
		p.completed.Add(1)
	}()
	task()
}

// Name returns the pool name used in logs
func (p *WorkerPool) Name() string { return p.name }

// Size returns the number of worker goroutines
func (p *WorkerPool) Size() int { return p.size }

// Queued returns the number of tasks waiting for a worker
func (p *WorkerPool) Queued() int { return p.tasks.Len() }

// Active returns the number of tasks currently running
func (p *WorkerPool) Active() int64 { return p.active.Load() }

// Completed returns the number of tasks that have finished, including panicked ones
func (p *WorkerPool) Completed() int64 { return p.completed.Load() }

// Panics returns the number of tasks that panicked
func (p *WorkerPool) Panics() int64 { return p.panics.Load() }
