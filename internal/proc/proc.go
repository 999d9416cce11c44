// Package proc provides process-table snapshots and liveness checks for the
// tracker. Each platform file implements the same surface; the tracker only
// sees the core.ProcessList interface.
package proc

import (
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

// System returns the process table of the running machine.
func System() core.ProcessList {
	return systemList{}
}
