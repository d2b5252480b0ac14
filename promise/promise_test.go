package promise

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSetResultThenGet(t *testing.T) {
	p := New[int](nil)
	p.SetResult(42)
	v, err := p.Get(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	if !p.Done() {
		t.Fatal("expected promise to be done")
	}
}

func TestSetErrorThenGet(t *testing.T) {
	p := New[int](nil)
	boom := errors.New("boom")
	p.SetError(boom)
	_, err := p.Get(nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestGetBlocksUntilResolved(t *testing.T) {
	p := New[string](nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.SetResult("hi")
	}()
	v, err := p.Get(nil)
	if err != nil || v != "hi" {
		t.Fatalf("unexpected result: %q, %v", v, err)
	}
}

func TestGetTimesOutWithoutMutatingState(t *testing.T) {
	p := New[int](nil)
	timeout := 5 * time.Millisecond
	_, err := p.Get(&timeout)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if p.Done() {
		t.Fatal("timed-out Get must not resolve the promise")
	}
	// Still resolvable afterward.
	p.SetResult(7)
	v, err := p.Get(nil)
	if err != nil || v != 7 {
		t.Fatalf("unexpected result after late resolution: %v, %v", v, err)
	}
}

func TestCancel(t *testing.T) {
	p := New[int](nil)
	p.Cancel()
	if !p.Cancelled() {
		t.Fatal("expected cancelled")
	}
	_, err := p.Get(nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestCancelIsNoOpAfterResolution(t *testing.T) {
	p := New[int](nil)
	p.SetResult(1)
	p.Cancel()
	if p.Cancelled() {
		t.Fatal("Cancel after resolution must not override the result")
	}
	v, _ := p.Get(nil)
	if v != 1 {
		t.Fatalf("expected original result preserved, got %d", v)
	}
}

func TestExternalLockSharing(t *testing.T) {
	var mu sync.Mutex
	p := New[int](&mu)

	done := make(chan struct{})
	go func() {
		mu.Lock()
		defer mu.Unlock()
		v, err := p.Get(nil)
		if err != nil || v != 9 {
			t.Errorf("unexpected result: %v, %v", v, err)
		}
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	mu.Lock()
	p.SetResult(9)
	mu.Unlock()

	<-done
}

func TestSetResultTwicePanics(t *testing.T) {
	p := New[int](nil)
	p.SetResult(1)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on second SetResult")
		}
	}()
	p.SetResult(2)
}
