//go:build windows

package proc

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

const stillActive = 259

type systemList struct{}

// Snapshot walks the Toolhelp32 process list. Per-process detail lookups
// (start time, image path) are best-effort; access-denied processes are
// returned with zero values rather than dropped.
func (systemList) Snapshot() ([]core.ProcessInfo, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, err
	}
	var infos []core.ProcessInfo
	for {
		info := core.ProcessInfo{
			PID:       int(entry.ProcessID),
			ParentPID: int(entry.ParentProcessID),
			Name:      windows.UTF16ToString(entry.ExeFile[:]),
		}
		fillDetails(&info)
		infos = append(infos, info)
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			break
		}
	}
	return infos, nil
}

func fillDetails(info *core.ProcessInfo) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(info.PID))
	if err != nil {
		return
	}
	defer windows.CloseHandle(handle)

	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(handle, &creation, &exit, &kernel, &user); err == nil {
		info.StartedAt = time.Unix(0, creation.Nanoseconds())
	}
	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err == nil {
		info.Path = windows.UTF16ToString(buf[:size])
	}
}

func (systemList) Alive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)
	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == stillActive
}
