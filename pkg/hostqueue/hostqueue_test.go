package hostqueue

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// goDispatcher runs every task on its own goroutine until closed.
type goDispatcher struct {
	closed atomic.Bool
}

func (d *goDispatcher) Submit(task func()) error {
	if d.closed.Load() {
		return utils.ErrShutdown
	}
	go task()
	return nil
}

func newTestPool(t *testing.T, limit int, d Dispatcher) *Pool {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	p, err := NewPool(limit, d, logrus.NewEntry(log))
	require.NoError(t, err)
	return p
}

func TestNewPool_InvalidLimit(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	for _, limit := range []int{0, -3} {
		p, err := NewPool(limit, &goDispatcher{}, log)
		assert.Nil(t, p)
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	}
}

func TestPool_RespectsPerHostLimit(t *testing.T) {
	const limit = 2
	p := newTestPool(t, limit, &goDispatcher{})

	var current, maxSeen atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit("host-a", Task{Run: func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := maxSeen.Load()
				if n <= old || maxSeen.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(3 * time.Millisecond)
			current.Add(-1)
		}})
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(limit))
	assert.Equal(t, 1, p.Len())
	assert.Eventually(t, func() bool {
		running, queued := p.Stats("host-a")
		return running == 0 && queued == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPool_HostsAreIndependent(t *testing.T) {
	p := newTestPool(t, 1, &goDispatcher{})

	blockA := make(chan struct{})
	startedA := make(chan struct{})
	p.Submit("host-a", Task{Run: func() {
		close(startedA)
		<-blockA
	}})
	<-startedA

	// host-a is at its limit; host-b must still run
	ranB := make(chan struct{})
	p.Submit("host-b", Task{Run: func() { close(ranB) }})

	select {
	case <-ranB:
	case <-time.After(time.Second):
		t.Fatal("host-b task blocked by host-a's limit")
	}

	running, _ := p.Stats("host-a")
	assert.Equal(t, 1, running)
	close(blockA)
	assert.Equal(t, 2, p.Len())
}

func TestPool_FIFOWithinHost(t *testing.T) {
	p := newTestPool(t, 1, &goDispatcher{})

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	gate := make(chan struct{})
	wg.Add(1)
	p.Submit("h", Task{Run: func() {
		defer wg.Done()
		<-gate
	}})

	for i := 0; i < 5; i++ {
		wg.Add(1)
		p.Submit("h", Task{Run: func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}})
	}

	_, queued := p.Stats("h")
	assert.Equal(t, 5, queued, "tasks over the limit wait in the queue")

	close(gate)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_SubmitDoesNotBlockOverLimit(t *testing.T) {
	p := newTestPool(t, 1, &goDispatcher{})

	block := make(chan struct{})
	defer close(block)
	p.Submit("h", Task{Run: func() { <-block }})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Submit("h", Task{Run: func() {}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked while the host was at its limit")
	}
}

func TestPool_AbortOnDispatchFailure(t *testing.T) {
	d := &goDispatcher{}
	p := newTestPool(t, 1, d)

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit("h", Task{Run: func() {
		close(started)
		<-release
	}})
	<-started

	var aborted atomic.Int32
	var abortErr atomic.Value
	for i := 0; i < 3; i++ {
		p.Submit("h", Task{
			Run: func() { t.Error("task should not run after dispatcher shutdown") },
			Abort: func(err error) {
				aborted.Add(1)
				abortErr.Store(err)
			},
		})
	}

	d.closed.Store(true)
	close(release)

	assert.Eventually(t, func() bool { return aborted.Load() == 3 }, time.Second, 5*time.Millisecond)
	err, _ := abortErr.Load().(error)
	assert.True(t, errors.Is(err, utils.ErrShutdown))

	running, queued := p.Stats("h")
	assert.Equal(t, 0, running)
	assert.Equal(t, 0, queued)
}

func TestPool_ConcurrentFirstAccessCreatesOneQueue(t *testing.T) {
	p := newTestPool(t, 1, &goDispatcher{})

	var wg sync.WaitGroup
	var ran atomic.Int32
	var tasks sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		tasks.Add(1)
		go func() {
			defer wg.Done()
			p.Submit("same-host", Task{Run: func() {
				defer tasks.Done()
				ran.Add(1)
			}})
		}()
	}
	wg.Wait()
	tasks.Wait()

	assert.Equal(t, 1, p.Len())
	assert.Equal(t, int32(50), ran.Load())
}

func TestPool_StatsUnknownHost(t *testing.T) {
	p := newTestPool(t, 3, &goDispatcher{})
	running, queued := p.Stats("nobody")
	assert.Zero(t, running)
	assert.Zero(t, queued)
	assert.Equal(t, 3, p.Limit())
}
