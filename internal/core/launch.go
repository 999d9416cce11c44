package core

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// StartDetached spawns the target without waiting for it and returns the
// PID of the immediately created process. On Windows the target goes
// through the shell so shortcut artifacts keep their stored arguments and
// working directory; the returned PID is then a transient shell shim, which
// is exactly the launcher-candidate the tracker expects to out-resolve.
func StartDetached(target string) (int, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", "start", "", target) // #nosec G204
	} else {
		cmd = exec.Command(target) // #nosec G204
	}
	cmd.Dir = filepath.Dir(target)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Reap the child so a fast-exiting launcher never lingers as a zombie.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// NormalizeTarget resolves a launch target to an absolute path.
func NormalizeTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	return filepath.Abs(target)
}
