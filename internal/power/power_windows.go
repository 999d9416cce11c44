//go:build windows

package power

import (
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

var (
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	powrprof = windows.NewLazySystemDLL("powrprof.dll")
	user32   = windows.NewLazySystemDLL("user32.dll")

	procCreateWaitableTimer     = kernel32.NewProc("CreateWaitableTimerW")
	procSetWaitableTimer        = kernel32.NewProc("SetWaitableTimer")
	procCancelWaitableTimer     = kernel32.NewProc("CancelWaitableTimer")
	procSetThreadExecutionState = kernel32.NewProc("SetThreadExecutionState")
	procSetSuspendState         = powrprof.NewProc("SetSuspendState")
	procGetLastInputInfo        = user32.NewProc("GetLastInputInfo")
)

const (
	esContinuous     = 0x80000000
	esSystemRequired = 0x00000001
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

// Controller is the Windows power controller built on kernel32, powrprof
// and user32.
type Controller struct {
	logger *slog.Logger
	latch  *sleepLatch

	mu    sync.Mutex
	timer windows.Handle
}

// New returns the platform power controller.
func New(logger *slog.Logger) core.PowerController {
	return &Controller{
		logger: logger,
		latch:  newSleepLatch(30 * time.Second),
	}
}

// EnsureAwakeBy sets a resumable waitable timer at deadline minus lead. If
// the wake moment has already passed the machine is necessarily awake and
// the request is a no-op.
func (c *Controller) EnsureAwakeBy(deadline time.Time, lead time.Duration) bool {
	wakeAt := deadline.Add(-lead)
	if !time.Now().Before(wakeAt) {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked()

	handle, _, err := procCreateWaitableTimer.Call(0, 1, 0)
	if handle == 0 {
		c.logger.Error("create waitable timer", "err", err)
		return false
	}
	due := FileTime(wakeAt)
	// Last argument (fResume=1) is what makes the timer wake the system.
	ok, _, err := procSetWaitableTimer.Call(handle, uintptr(unsafe.Pointer(&due)), 0, 0, 0, 1)
	if ok == 0 {
		c.logger.Error("set wake timer", "wake_at", wakeAt, "err", err)
		windows.CloseHandle(windows.Handle(handle))
		return false
	}
	c.timer = windows.Handle(handle)
	c.logger.Info("wake timer set", "wake_at", wakeAt, "deadline", deadline)
	return true
}

func (c *Controller) cancelTimerLocked() {
	if c.timer == 0 {
		return
	}
	procCancelWaitableTimer.Call(uintptr(c.timer))
	windows.CloseHandle(c.timer)
	c.timer = 0
}

// RequestSleep suspends the system. Requests while a transition is pending
// are absorbed as successful no-ops.
func (c *Controller) RequestSleep() bool {
	if !c.latch.acquire() {
		return true
	}
	c.logger.Info("initiating system sleep")
	// SetSuspendState(Hibernate=0, Force=0, WakeupEventsDisabled=0)
	ok, _, err := procSetSuspendState.Call(0, 0, 0)
	if ok == 0 {
		c.logger.Error("enter sleep", "err", err)
		return false
	}
	return true
}

// IsIdle reports whether the last user input is at least threshold old.
func (c *Controller) IsIdle(threshold time.Duration) bool {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	ok, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if ok == 0 {
		c.logger.Warn("query last input", "err", err)
		return true
	}
	// Tick arithmetic in uint32 so the 49-day wraparound cancels out.
	idleTicks := uint32(windows.GetTickCount64()) - info.dwTime
	return time.Duration(idleTicks)*time.Millisecond >= threshold
}

// KeepAwake blocks system sleep until the returned release is called.
func (c *Controller) KeepAwake() (release func()) {
	prev, _, err := procSetThreadExecutionState.Call(esContinuous | esSystemRequired)
	if prev == 0 {
		c.logger.Warn("keep-awake request rejected", "err", err)
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			procSetThreadExecutionState.Call(esContinuous)
		})
	}
}
