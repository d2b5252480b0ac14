package timer

import (
	"testing"
	"time"
)

func TestUnboundedTimer(t *testing.T) {
	tm := New(nil)
	if _, ok := tm.Left(); ok {
		t.Fatal("expected no limit to report ok=false")
	}
	if tm.TimedOut() {
		t.Fatal("unbounded timer must never time out")
	}
}

func TestBoundedTimerNotExpired(t *testing.T) {
	limit := 50 * time.Millisecond
	tm := New(&limit)
	left, ok := tm.Left()
	if !ok {
		t.Fatal("expected limit to report ok=true")
	}
	if left <= 0 {
		t.Fatalf("expected positive time left, got %v", left)
	}
	if tm.TimedOut() {
		t.Fatal("fresh timer must not be timed out")
	}
}

func TestBoundedTimerExpires(t *testing.T) {
	limit := 5 * time.Millisecond
	tm := New(&limit)
	time.Sleep(10 * time.Millisecond)
	if !tm.TimedOut() {
		t.Fatal("expected timer to have timed out")
	}
	left, _ := tm.Left()
	if left >= 0 {
		t.Fatalf("expected negative time left, got %v", left)
	}
}

func TestReset(t *testing.T) {
	limit := 20 * time.Millisecond
	tm := New(&limit)
	time.Sleep(10 * time.Millisecond)
	tm.Reset()
	if tm.TimedOut() {
		t.Fatal("timer must not be timed out right after reset")
	}
}
