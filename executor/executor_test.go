package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsWork(t *testing.T) {
	e := New(Options{Size: 4})
	defer e.Close()

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		if err := e.Submit(context.Background(), func() { n.Add(1) }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if err := e.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := n.Load(); got != 10 {
		t.Errorf("ran %d tasks, want 10", got)
	}
}

func TestSubmitBackpressure(t *testing.T) {
	e := New(Options{Size: 1})
	defer e.Close()

	block := make(chan struct{})
	if err := e.Submit(context.Background(), func() { <-block }); err != nil {
		t.Fatalf("Submit (blocker): %v", err)
	}
	if err := e.Submit(context.Background(), func() {}); err != nil {
		t.Fatalf("Submit (fills queue): %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := e.Submit(ctx, func() {})
	if err == nil {
		t.Fatal("expected Submit to block and time out under backpressure")
	}

	close(block)
}

func TestSubmitAfterCloseFails(t *testing.T) {
	e := New(Options{})
	e.Close()

	if err := e.Submit(context.Background(), func() {}); err == nil {
		t.Fatal("expected Submit on a closed executor to fail")
	}
}

func TestDrainRespectsContext(t *testing.T) {
	e := New(Options{Size: 1})
	defer func() {
		// nothing to do: block is closed and e is closed at the end of the test
	}()

	block := make(chan struct{})
	if err := e.Submit(context.Background(), func() { <-block }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Drain(ctx); err == nil {
		t.Fatal("expected Drain to time out while a task is still blocked")
	}

	close(block)
	e.Close()
}

func TestCloseDuringConcurrentSubmitDoesNotPanic(t *testing.T) {
	e := New(Options{Size: 4})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					e.Submit(context.Background(), func() {})
				}
			}
		}()
	}

	time.Sleep(time.Millisecond)
	e.Close() // must never panic on a send racing a close, regardless of timing
	close(stop)
	wg.Wait()
}

func TestStats(t *testing.T) {
	e := New(Options{Size: 4})
	defer e.Close()

	for i := 0; i < 5; i++ {
		e.Submit(context.Background(), func() {})
	}
	e.Drain(context.Background())

	submitted, completed := e.Stats()
	if submitted != 5 || completed != 5 {
		t.Errorf("Stats() = (%d, %d), want (5, 5)", submitted, completed)
	}
}
