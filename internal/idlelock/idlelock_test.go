package idlelock

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitLocked(t *testing.T, l *Locker, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for !l.Locked() {
		if time.Now().After(deadline) {
			t.Fatalf("expected lock within %s", within)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLockerLocksAfterIdleTimeout(t *testing.T) {
	var fired, manual atomic.Int32
	l := New(40*time.Millisecond, func(idle bool) {
		fired.Add(1)
		if !idle {
			manual.Add(1)
		}
	})
	defer l.Stop()

	waitLocked(t, l, time.Second)
	if fired.Load() != 1 || manual.Load() != 0 {
		t.Fatalf("expected one idle lock callback, got %d (manual %d)", fired.Load(), manual.Load())
	}
	status := l.Status()
	if !status.Locked || status.LockedAt == nil {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestManualLockReportsNonIdleOnce(t *testing.T) {
	var calls []bool
	l := New(time.Hour, func(idle bool) { calls = append(calls, idle) })
	defer l.Stop()

	l.Lock()
	l.Lock()
	if len(calls) != 1 || calls[0] {
		t.Fatalf("expected a single manual lock callback, got %v", calls)
	}
}

func TestTouchDoesNotResetWhileLocked(t *testing.T) {
	l := New(time.Hour, nil)
	defer l.Stop()

	if !l.Touch() {
		t.Fatalf("expected touch to succeed while unlocked")
	}
	l.Lock()
	if l.Touch() {
		t.Fatalf("expected touch to be refused while locked")
	}
	l.Unlock()
	if l.Locked() || !l.Touch() {
		t.Fatalf("expected unlocked session to accept activity")
	}
}

func TestActivityPostponesLock(t *testing.T) {
	l := New(80*time.Millisecond, nil)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		if !l.Touch() {
			t.Fatalf("locked despite activity at step %d", i)
		}
	}
	waitLocked(t, l, time.Second)
}

func TestZeroTimeoutDisablesTimer(t *testing.T) {
	l := New(0, nil)
	defer l.Stop()

	time.Sleep(20 * time.Millisecond)
	if l.Locked() {
		t.Fatalf("expected disabled timer to never lock")
	}
	if l.Status().IdleTimeoutSeconds != 0 {
		t.Fatalf("expected zero timeout in status")
	}
}
