//go:build !windows && !linux

package proc

import (
	"errors"
	"os"
	"syscall"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

type systemList struct{}

// Snapshot is unsupported here; the tracker degrades to monitoring the
// launcher process it spawned.
func (systemList) Snapshot() ([]core.ProcessInfo, error) {
	return nil, errors.New("process snapshots not supported on this platform")
}

func (systemList) Alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
