package core

import (
	"path/filepath"
	"strings"
	"time"
)

// LaunchContext carries what the tracker knows about a launch when scoring
// process-table candidates.
type LaunchContext struct {
	LauncherPID  int
	ExpectedName string
	StartedAfter time.Time
}

// Matcher scores a process-table candidate as the real application behind a
// launch. Higher is more plausible; scores below zero are discarded.
// Implementations are pure so they can be swapped and tested independently
// of OS process APIs.
type Matcher interface {
	Score(launch LaunchContext, candidate ProcessInfo) int
}

// Candidates scoring at or above ResolveScore are accepted as the resolved
// process without waiting out the resolution timeout.
const ResolveScore = 100

// Transient OS processes that show up around any launch and must never be
// mistaken for the tracked application.
var systemNoise = map[string]struct{}{
	"audiodg.exe":                   {},
	"taskhostw.exe":                 {},
	"dllhost.exe":                   {},
	"conhost.exe":                   {},
	"svchost.exe":                   {},
	"explorer.exe":                  {},
	"searchapp.exe":                 {},
	"startmenuexperiencehost.exe":   {},
	"runtimebroker.exe":             {},
	"backgroundtaskhost.exe":        {},
	"smartscreen.exe":               {},
	"ctfmon.exe":                    {},
	"wermgr.exe":                    {},
	"csrss.exe":                     {},
	"winlogon.exe":                  {},
	"cmd.exe":                       {},
}

// NameMatcher is the default resolution strategy: executable-name fragment
// match first, then process-tree parentage and spawn recency.
type NameMatcher struct{}

func (NameMatcher) Score(launch LaunchContext, candidate ProcessInfo) int {
	name := strings.ToLower(candidate.Name)
	if _, noisy := systemNoise[name]; noisy {
		return -1
	}
	if candidate.PID == launch.LauncherPID {
		return -1
	}
	score := 0
	expected := strings.ToLower(launch.ExpectedName)
	if expected != "" && (strings.Contains(name, expected) || strings.Contains(expected, name)) {
		// Only treat a name match as fresh if the process started recently,
		// so an old instance of the same program is not adopted.
		if candidate.StartedAt.IsZero() || time.Since(candidate.StartedAt) < 30*time.Second {
			score += ResolveScore
		}
	}
	if candidate.ParentPID == launch.LauncherPID {
		score += 40
	}
	if !candidate.StartedAt.IsZero() && candidate.StartedAt.After(launch.StartedAfter) {
		score += 20
	}
	return score
}

// ExpectedProcessName derives the executable name a launch should settle on.
// Shortcut artifacts cannot be inspected portably, so the stem plus ".exe"
// is assumed, matching how launchers typically name their main binary.
func ExpectedProcessName(target string) string {
	base := filepath.Base(target)
	ext := strings.ToLower(filepath.Ext(base))
	switch ext {
	case ".lnk", ".url":
		return strings.TrimSuffix(base, filepath.Ext(base)) + ".exe"
	}
	return base
}
