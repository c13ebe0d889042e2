package idlelock

import (
	"sync"
	"time"

	"geyim/backend/internal/domain"
)

const DefaultTimeout = 3 * time.Minute

// Locker locks a session after a period without activity. A zero timeout
// disables the timer; manual Lock still works.
type Locker struct {
	mu       sync.Mutex
	timeout  time.Duration
	timer    *time.Timer
	gen      uint64
	locked   bool
	lockedAt time.Time
	onLock   func(idle bool)
}

// New starts the idle timer immediately. onLock may be nil; idle reports
// whether the lock came from the timer rather than a Lock call.
func New(timeout time.Duration, onLock func(idle bool)) *Locker {
	if timeout < 0 {
		timeout = 0
	}
	l := &Locker{timeout: timeout, onLock: onLock}
	l.mu.Lock()
	l.arm()
	l.mu.Unlock()
	return l
}

// Touch records activity. It returns false, without resetting anything, while locked.
func (l *Locker) Touch() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return false
	}
	l.arm()
	return true
}

func (l *Locker) Lock() {
	l.mu.Lock()
	fire := l.lockLocked()
	l.mu.Unlock()
	if fire && l.onLock != nil {
		l.onLock(false)
	}
}

// Unlock clears the lock and restarts the idle timer.
func (l *Locker) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = false
	l.lockedAt = time.Time{}
	l.arm()
}

func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

func (l *Locker) Status() domain.LockStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	status := domain.LockStatus{Locked: l.locked, IdleTimeoutSeconds: int(l.timeout / time.Second)}
	if l.locked {
		at := l.lockedAt
		status.LockedAt = &at
	}
	return status
}

// Stop cancels the pending timer.
func (l *Locker) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// arm replaces the pending timer. Callers hold mu.
func (l *Locker) arm() {
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.timeout == 0 {
		return
	}
	gen := l.gen
	l.timer = time.AfterFunc(l.timeout, func() { l.expire(gen) })
}

func (l *Locker) expire(gen uint64) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	fire := l.lockLocked()
	l.mu.Unlock()
	if fire && l.onLock != nil {
		l.onLock(true)
	}
}

func (l *Locker) lockLocked() bool {
	if l.locked {
		return false
	}
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.locked = true
	l.lockedAt = time.Now().UTC()
	return true
}
