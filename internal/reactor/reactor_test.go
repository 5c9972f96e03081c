// ABOUTME: Tests for the reactor task queue
package reactor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestReactorRunsPostedTasksInOrder(t *testing.T) {
	r := NewReactor()
	go r.Run()
	defer r.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		r.Post(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete in time")
	}

	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestReactorCallReturnsResult(t *testing.T) {
	r := NewReactor()
	go r.Run()
	defer r.Stop()

	var counter int32
	ok := r.Call(func() {
		atomic.AddInt32(&counter, 1)
	})
	if !ok {
		t.Fatal("Call returned false on a running reactor")
	}
	if atomic.LoadInt32(&counter) != 1 {
		t.Errorf("counter = %d, want 1", counter)
	}
}

func TestReactorPostAfterStopIsDropped(t *testing.T) {
	r := NewReactor()
	go r.Run()
	r.Stop()

	ran := false
	r.Post(func() { ran = true })

	time.Sleep(10 * time.Millisecond)
	if ran {
		t.Error("posted task ran after Stop")
	}
}

func TestReactorCallAfterStopReturnsFalse(t *testing.T) {
	r := NewReactor()
	go r.Run()
	r.Stop()

	if ok := r.Call(func() {}); ok {
		t.Error("Call returned true after Stop")
	}
}
