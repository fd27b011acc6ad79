// Package hostqueue bounds the number of in-flight tasks per host without
// blocking any goroutine: tasks over the limit wait in a per-host FIFO and are
// dispatched when a running task for the same host finishes.
package hostqueue

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// Dispatcher executes a task asynchronously; Submit must not run the task
// on the calling goroutine. *pool.WorkerPool satisfies it.
type Dispatcher interface {
	Submit(task func()) error
}

// Task is one unit of admitted work. Abort is called instead of Run if the
// task can never be dispatched (the dispatcher has been shut down).
type Task struct {
	Run   func()
	Abort func(err error)
}

// hostEntry is the admission state of a single host.
type hostEntry struct {
	host    string
	mu      sync.Mutex
	running int
	pending []Task
}

// Pool owns one admission queue per host. Queues are created on first use and
// kept for the lifetime of the Pool so that later crawls of the same host
// share the same limit.
type Pool struct {
	entries    map[string]*hostEntry
	mu         sync.Mutex
	limit      int
	dispatcher Dispatcher
	log        *logrus.Entry
}

// NewPool creates a pool admitting at most limit concurrent tasks per host.
func NewPool(limit int, dispatcher Dispatcher, log *logrus.Entry) (*Pool, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: per-host limit must be > 0, got %d", utils.ErrConfigValidation, limit)
	}
	return &Pool{
		entries:    make(map[string]*hostEntry),
		limit:      limit,
		dispatcher: dispatcher,
		log:        log.WithField("component", "host_queue"),
	}, nil
}

// entry returns the host's queue, creating it if absent.
func (p *Pool) entry(host string) *hostEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, exists := p.entries[host]
	if !exists {
		e = &hostEntry{host: host}
		p.entries[host] = e
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Created new host queue")
	}
	return e
}

// Submit enqueues task for host and dispatches it immediately if the host is
// below its limit. It never blocks on the limit.
func (p *Pool) Submit(host string, task Task) {
	e := p.entry(host)

	e.mu.Lock()
	e.pending = append(e.pending, task)
	aborted, err := p.dispatchLocked(e)
	e.mu.Unlock()

	abortAll(aborted, err)
}

// finish releases a running slot and dispatches the next queued task, if any.
func (p *Pool) finish(e *hostEntry) {
	e.mu.Lock()
	e.running--
	aborted, err := p.dispatchLocked(e)
	e.mu.Unlock()

	abortAll(aborted, err)
}

// dispatchLocked starts queued tasks while the host has free slots. If the
// dispatcher rejects a task, that task and everything still queued for the
// host are returned for aborting, since nothing will ever run them.
// Must be called with e.mu held.
func (p *Pool) dispatchLocked(e *hostEntry) ([]Task, error) {
	for e.running < p.limit && len(e.pending) > 0 {
		task := e.pending[0]
		e.pending[0] = Task{}
		e.pending = e.pending[1:]

		e.running++
		err := p.dispatcher.Submit(func() {
			defer p.finish(e)
			task.Run()
		})
		if err != nil {
			e.running--
			aborted := append([]Task{task}, e.pending...)
			e.pending = nil
			p.log.WithFields(logrus.Fields{"host": e.host, "aborted": len(aborted)}).Debugf("Dispatch rejected: %v", err)
			return aborted, err
		}
	}
	return nil, nil
}

func abortAll(tasks []Task, err error) {
	for _, t := range tasks {
		if t.Abort != nil {
			t.Abort(err)
		}
	}
}

// Len returns the current number of tracked hosts.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Stats reports the running and queued task counts for host.
func (p *Pool) Stats(host string) (running, queued int) {
	p.mu.Lock()
	e, exists := p.entries[host]
	p.mu.Unlock()
	if !exists {
		return 0, 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running, len(e.pending)
}

// Limit returns the per-host concurrency limit
func (p *Pool) Limit() int { return p.limit }
