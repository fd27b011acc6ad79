package queue

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// testLogger returns a logger entry that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestNewThreadSafeQueue(t *testing.T) {
	q := NewThreadSafeQueue[string](testLogger())
	if q == nil {
		t.Fatal("NewThreadSafeQueue() returned nil")
	}
	if q.Len() != 0 {
		t.Errorf("New queue Len() = %d, want 0", q.Len())
	}
}

func TestThreadSafeQueue_FIFOOrder(t *testing.T) {
	q := NewThreadSafeQueue[int](testLogger())
	for i := 0; i < 5; i++ {
		if !q.Add(i) {
			t.Fatalf("Add(%d) = false on open queue", i)
		}
	}

	for want := 0; want < 5; want++ {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned ok=false, want true")
		}
		if got != want {
			t.Errorf("Pop() = %d, want %d", got, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("After draining, Len() = %d, want 0", q.Len())
	}
}

func TestThreadSafeQueue_AddAfterClose(t *testing.T) {
	q := NewThreadSafeQueue[string](testLogger())
	q.Add("kept")
	q.Close()

	if q.Add("dropped") {
		t.Error("Add() after Close returned true")
	}
	if q.Len() != 1 {
		t.Errorf("Len() after Close = %d, want 1", q.Len())
	}

	// Items queued before Close are still delivered
	got, ok := q.Pop()
	if !ok || got != "kept" {
		t.Errorf("Pop() = (%q, %v), want (\"kept\", true)", got, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on closed empty queue returned ok=true")
	}
}

func TestThreadSafeQueue_PopBlocksUntilAdd(t *testing.T) {
	q := NewThreadSafeQueue[int](testLogger())
	result := make(chan int, 1)

	go func() {
		v, _ := q.Pop()
		result <- v
	}()

	select {
	case <-result:
		t.Fatal("Pop() returned before any item was added")
	case <-time.After(50 * time.Millisecond):
	}

	q.Add(42)

	select {
	case v := <-result:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not wake up after Add")
	}
}

func TestThreadSafeQueue_CloseWakesAllWaiters(t *testing.T) {
	q := NewThreadSafeQueue[int](testLogger())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.Pop(); ok {
				t.Error("Pop() returned ok=true on closed empty queue")
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not wake all waiting consumers")
	}
}

func TestThreadSafeQueue_ConcurrentProducers(t *testing.T) {
	q := NewThreadSafeQueue[int](testLogger())
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Add(i)
			}
		}()
	}
	wg.Wait()

	if q.Len() != producers*perProducer {
		t.Errorf("Len() = %d, want %d", q.Len(), producers*perProducer)
	}
}
