package netsync

import (
	"testing"
	"time"
)

func TestThrottleWindow(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)
	base := time.Now()

	if !th.Allow("p1", base) {
		t.Fatal("first call must pass")
	}
	// 窗口内全部丢弃，不排队
	for _, off := range []time.Duration{0, 10 * time.Millisecond, 49 * time.Millisecond} {
		if th.Allow("p1", base.Add(off)) {
			t.Fatalf("call at +%v inside window passed", off)
		}
	}
	if !th.Allow("p1", base.Add(50*time.Millisecond)) {
		t.Fatal("call at window boundary must pass")
	}
}

func TestThrottleRollingWindowProperty(t *testing.T) {
	// 任意调用模式下，任何 50ms 滚动窗口内至多放行一次
	th := NewThrottle(50 * time.Millisecond)
	base := time.Now()
	var granted []time.Duration
	for ms := 0; ms < 500; ms += 3 {
		off := time.Duration(ms) * time.Millisecond
		if th.Allow("p1", base.Add(off)) {
			granted = append(granted, off)
		}
	}
	for i := 1; i < len(granted); i++ {
		if granted[i]-granted[i-1] < 50*time.Millisecond {
			t.Fatalf("two grants %v apart", granted[i]-granted[i-1])
		}
	}
	if len(granted) == 0 {
		t.Fatal("no grants at all")
	}
}

func TestThrottlePerIDIndependence(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)
	now := time.Now()
	if !th.Allow("p1", now) {
		t.Fatal("p1 first call must pass")
	}
	if !th.Allow("p2", now) {
		t.Fatal("p2 window independent of p1")
	}
}

func TestThrottleResetClearsWindows(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)
	now := time.Now()
	th.Allow("p1", now)
	th.Reset()
	if !th.Allow("p1", now) {
		t.Fatal("reset must clear the active window")
	}
}
