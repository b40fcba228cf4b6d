package netsync

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestResyncImmediateRequestOnStart(t *testing.T) {
	var calls atomic.Int64
	c := NewResyncCoordinator(func() { calls.Add(1) }, time.Hour)
	c.Start()
	defer c.Stop()
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want immediate request on start", calls.Load())
	}
}

func TestResyncPeriodicRequests(t *testing.T) {
	var calls atomic.Int64
	c := NewResyncCoordinator(func() { calls.Add(1) }, 20*time.Millisecond)
	c.Start()
	defer c.Stop()
	time.Sleep(110 * time.Millisecond)
	if n := calls.Load(); n < 3 {
		t.Fatalf("calls = %d, want several periodic requests", n)
	}
}

func TestResyncNudgeCoalesces(t *testing.T) {
	var calls atomic.Int64
	entered := make(chan struct{})
	block := make(chan struct{})
	c := NewResyncCoordinator(func() {
		// 第 2 次请求（首个 Nudge）占住循环，期间的 Nudge 应并成一次
		if calls.Add(1) == 2 {
			close(entered)
			<-block
		}
	}, time.Hour)
	c.Start()
	defer c.Stop()

	c.Nudge()
	<-entered
	for i := 0; i < 10; i++ {
		c.Nudge()
	}
	close(block)
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls = %d, want start + nudge + one coalesced nudge", n)
	}
}

func TestResyncStopIsIdempotent(t *testing.T) {
	c := NewResyncCoordinator(func() {}, time.Hour)
	c.Start()
	c.Stop()
	c.Stop()
	c.Nudge() // 停止后 Nudge 是无操作，不能 panic
}
