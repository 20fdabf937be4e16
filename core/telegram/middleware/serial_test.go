package middleware

import (
	"sync"
	"testing"
	"time"
)

func TestLanesKeepOrderPerKey(t *testing.T) {
	l := NewLanes(LaneOptions{Depth: 4})
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		i := i
		if !l.Submit(7, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	l.Close()
	if len(got) != 50 {
		t.Fatalf("ran %d jobs, want 50", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran at position %d", v, i)
		}
	}
}

func TestLanesRunKeysConcurrently(t *testing.T) {
	l := NewLanes(LaneOptions{})
	defer l.Close()

	release := make(chan struct{})
	blocked := make(chan struct{})
	l.Submit(1, func() {
		close(blocked)
		<-release
	})
	<-blocked

	done := make(chan struct{})
	l.Submit(2, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a busy lane must not block other keys")
	}
	close(release)
}

func TestLanesRetireWhenIdle(t *testing.T) {
	l := NewLanes(LaneOptions{Idle: 10 * time.Millisecond})
	defer l.Close()
	ran := make(chan struct{})
	l.Submit(3, func() { close(ran) })
	<-ran
	deadline := time.Now().Add(2 * time.Second)
	for l.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("lane still active after idle timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLanesRejectAfterClose(t *testing.T) {
	l := NewLanes(LaneOptions{})
	l.Close()
	if l.Submit(1, func() {}) {
		t.Fatal("submit after close must be rejected")
	}
	l.Close()
}

func TestLanesSurvivePanics(t *testing.T) {
	l := NewLanes(LaneOptions{})
	l.Submit(9, func() { panic("boom") })
	done := make(chan struct{})
	l.Submit(9, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lane died after a panic")
	}
	l.Close()
}

func TestMaskText(t *testing.T) {
	if got := maskText("123456", 1, nil); got != maskedText {
		t.Fatalf("otp-like text leaked: %q", got)
	}
	sensitive := func(int64) bool { return true }
	if got := maskText("my secret", 1, sensitive); got != maskedText {
		t.Fatalf("sensitive text leaked: %q", got)
	}
	if got := maskText("/start", 1, sensitive); got != "/start" {
		t.Fatalf("commands must stay visible, got %q", got)
	}
	if got := maskText("hello", 1, nil); got != "hello" {
		t.Fatalf("plain text = %q", got)
	}
}
