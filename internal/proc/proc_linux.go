//go:build linux

package proc

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

// Kernel USER_HZ; fixed at 100 on every supported architecture.
const userHZ = 100

type systemList struct{}

var bootTime = sync.OnceValue(readBootTime)

// Snapshot scans /proc. Unreadable entries are skipped; a process exiting
// mid-scan is not an error.
func (systemList) Snapshot() ([]core.ProcessInfo, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	var infos []core.ProcessInfo
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		info, err := readStat(pid)
		if err != nil {
			continue
		}
		if path, err := os.Readlink(filepath.Join("/proc", entry.Name(), "exe")); err == nil {
			info.Path = path
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (systemList) Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// readStat parses /proc/<pid>/stat. The comm field may contain spaces, so
// fields are split after the final ')'.
func readStat(pid int) (core.ProcessInfo, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return core.ProcessInfo{}, err
	}
	text := string(data)
	open := strings.IndexByte(text, '(')
	end := strings.LastIndexByte(text, ')')
	if open < 0 || end < open {
		return core.ProcessInfo{}, errors.New("malformed stat line")
	}
	info := core.ProcessInfo{PID: pid, Name: text[open+1 : end]}
	fields := strings.Fields(text[end+1:])
	// fields[0] is state; ppid and starttime are stat fields 4 and 22.
	if len(fields) < 20 {
		return core.ProcessInfo{}, errors.New("short stat line")
	}
	if ppid, err := strconv.Atoi(fields[1]); err == nil {
		info.ParentPID = ppid
	}
	if ticks, err := strconv.ParseUint(fields[19], 10, 64); err == nil {
		if boot := bootTime(); !boot.IsZero() {
			info.StartedAt = boot.Add(time.Duration(ticks) * time.Second / userHZ)
		}
	}
	return info, nil
}

func readBootTime() time.Time {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return time.Time{}
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "btime "); ok {
			if sec, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64); err == nil {
				return time.Unix(sec, 0)
			}
		}
	}
	return time.Time{}
}
