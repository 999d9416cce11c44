// Package power integrates the scheduler with OS power management: resume
// timers that wake the machine ahead of a due time, suspend requests after
// completed runs, keep-awake holds while runs are in flight, and user idle
// detection. All operations are best-effort; callers treat a false return
// as a logged notice, never a fatal error.
package power

import (
	"log/slog"
	"sync"
	"time"
)

// Seconds between 1601-01-01 and 1970-01-01.
const filetimeEpochDelta = 11644473600

// FileTime converts t to Windows FILETIME units: 100-nanosecond intervals
// since January 1, 1601 UTC.
func FileTime(t time.Time) int64 {
	return (t.Unix()+filetimeEpochDelta)*10_000_000 + int64(t.Nanosecond()/100)
}

// sleepLatch makes suspend requests idempotent: a request arriving while a
// previous transition may still be pending is absorbed as a no-op.
type sleepLatch struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

func newSleepLatch(window time.Duration) *sleepLatch {
	return &sleepLatch{window: window, now: time.Now}
}

// acquire reports whether this request should reach the OS.
func (l *sleepLatch) acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.window {
		return false
	}
	l.last = now
	return true
}

// Noop is an inert controller for platforms without power management
// support. Wake and sleep report unsupported; the system counts as idle so
// non-aggressive tasks still fire.
type Noop struct {
	Logger *slog.Logger
}

func (n *Noop) EnsureAwakeBy(deadline time.Time, lead time.Duration) bool {
	if n.Logger != nil {
		n.Logger.Debug("wake timers unsupported on this platform", "deadline", deadline)
	}
	return false
}

func (n *Noop) RequestSleep() bool {
	if n.Logger != nil {
		n.Logger.Debug("suspend unsupported on this platform")
	}
	return false
}

func (n *Noop) IsIdle(threshold time.Duration) bool { return true }

func (n *Noop) KeepAwake() (release func()) { return func() {} }
