package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunPhase labels a tracker progress update.
type RunPhase string

const (
	PhaseStarted  RunPhase = "started"
	PhaseResolved RunPhase = "resolved"
	PhaseExited   RunPhase = "exited"
	PhaseFailed   RunPhase = "failed"
)

// RunUpdate is one tracker progress report. The Run pointer is the same
// instance across updates; the tracker stops touching it after the terminal
// update (exited or failed).
type RunUpdate struct {
	Run   *Run
	Phase RunPhase
}

// Launcher launches a task target and tracks the resulting process.
type Launcher interface {
	// Launch spawns the target and reports progress on the returned
	// channel. The channel is closed after the terminal update.
	Launch(ctx context.Context, task *Task, run *Run) <-chan RunUpdate
}

// Starter spawns a target and returns the PID of the immediately created
// process. Injectable so tracker tests never create real processes.
type Starter func(target string) (int, error)

// IconRecorder receives best-effort icon-cache writes for resolved
// executables. Failures are ignored; recording never blocks tracking.
type IconRecorder interface {
	RecordIcon(ctx context.Context, exePath, processName string) error
}

// Tracker launches targets and resolves the real long-running process
// behind launcher shims by polling the process table.
type Tracker struct {
	procs   ProcessList
	matcher Matcher
	start   Starter
	icons   IconRecorder
	logger  *slog.Logger

	resolveTimeout time.Duration
	pollInterval   time.Duration
	now            func() time.Time
}

// TrackerOption mutates tracker construction.
type TrackerOption func(*Tracker)

// WithStarter overrides how targets are spawned.
func WithStarter(start Starter) TrackerOption {
	return func(t *Tracker) { t.start = start }
}

// WithMatcher overrides the candidate scoring strategy.
func WithMatcher(m Matcher) TrackerOption {
	return func(t *Tracker) { t.matcher = m }
}

// WithIconRecorder enables icon-cache writes for resolved executables.
func WithIconRecorder(icons IconRecorder) TrackerOption {
	return func(t *Tracker) { t.icons = icons }
}

// WithResolvePolling overrides resolution timeout and poll interval.
func WithResolvePolling(timeout, interval time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.resolveTimeout = timeout
		t.pollInterval = interval
	}
}

// NewTracker constructs a tracker over the given process table.
func NewTracker(procs ProcessList, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		procs:          procs,
		matcher:        NameMatcher{},
		start:          StartDetached,
		logger:         logger,
		resolveTimeout: 60 * time.Second,
		pollInterval:   500 * time.Millisecond,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Launch spawns the task target and tracks it until the resolved process
// exits. Progress is reported on the returned channel, closed after the
// terminal update.
func (t *Tracker) Launch(ctx context.Context, task *Task, run *Run) <-chan RunUpdate {
	updates := make(chan RunUpdate, 4)
	go func() {
		defer close(updates)
		t.track(ctx, task, run, updates)
	}()
	return updates
}

func (t *Tracker) track(ctx context.Context, task *Task, run *Run, updates chan<- RunUpdate) {
	run.AttemptStartedAt = t.now()
	launch := LaunchContext{
		ExpectedName: ExpectedProcessName(task.Target),
		// Catch fast-spawning successors created just before our first
		// snapshot lands.
		StartedAfter: run.AttemptStartedAt.Add(-2 * time.Second),
	}

	pid, err := t.start(task.Target)
	if err != nil {
		run.Outcome = OutcomeFailed
		run.Detail = fmt.Sprintf("spawn failed: %v", err)
		t.logger.Error("launch failed", "task_id", task.ID, "target", task.Target, "err", err)
		updates <- RunUpdate{Run: run, Phase: PhaseFailed}
		return
	}
	run.LauncherPID = pid
	run.Outcome = OutcomeStarted
	launch.LauncherPID = pid
	t.logger.Info("launched", "task_id", task.ID, "target", task.Target, "launcher_pid", pid)
	updates <- RunUpdate{Run: run, Phase: PhaseStarted}

	resolved, detail := t.resolve(ctx, launch)
	if resolved == 0 {
		// Degraded but safe: monitor the launcher shim itself.
		resolved = pid
	}
	resolvedAt := t.now()
	run.ResolvedPID = resolved
	run.ResolvedAt = &resolvedAt
	run.Detail = detail
	t.logger.Info("resolved process", "task_id", task.ID, "launcher_pid", pid, "resolved_pid", resolved, "detail", detail)
	updates <- RunUpdate{Run: run, Phase: PhaseResolved}

	t.recordIcon(ctx, launch, resolved)
	t.monitor(ctx, run)
	updates <- RunUpdate{Run: run, Phase: PhaseExited}
}

// resolve polls the process table for a plausible successor of the launcher
// until a confident candidate appears or the timeout elapses. A zero return
// means no successor was identified.
func (t *Tracker) resolve(ctx context.Context, launch LaunchContext) (int, string) {
	deadline := t.now().Add(t.resolveTimeout)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	bestPID := 0
	bestScore := 0
	for {
		snapshot, err := t.procs.Snapshot()
		if err != nil {
			t.logger.Warn("process snapshot failed", "err", err)
		}
		for _, candidate := range snapshot {
			score := t.matcher.Score(launch, candidate)
			if score > bestScore {
				bestScore = score
				bestPID = candidate.PID
			}
			if score >= ResolveScore {
				return candidate.PID, fmt.Sprintf("matched %s (pid %d)", candidate.Name, candidate.PID)
			}
		}
		// A dead launcher with a surviving child is the classic bootstrap
		// pattern; adopt the best candidate seen so far.
		if bestPID != 0 && !t.procs.Alive(launch.LauncherPID) {
			return bestPID, fmt.Sprintf("launcher exited, adopted pid %d", bestPID)
		}
		if !t.now().Before(deadline) {
			if bestPID != 0 {
				return bestPID, fmt.Sprintf("resolution timeout, adopted pid %d", bestPID)
			}
			return 0, "resolution timeout, tracking launcher"
		}
		select {
		case <-ctx.Done():
			return bestPID, "tracking canceled"
		case <-ticker.C:
		}
	}
}

// monitor polls liveness of the resolved process until it exits or the
// context is canceled at daemon shutdown.
func (t *Tracker) monitor(ctx context.Context, run *Run) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for t.procs.Alive(run.ResolvedPID) {
		select {
		case <-ctx.Done():
			exitedAt := t.now()
			run.ExitedAt = &exitedAt
			run.Outcome = OutcomeFailed
			run.Detail = "tracking aborted by shutdown"
			return
		case <-ticker.C:
		}
	}
	exitedAt := t.now()
	run.ExitedAt = &exitedAt
	run.Outcome = OutcomeFinished
}

func (t *Tracker) recordIcon(ctx context.Context, launch LaunchContext, pid int) {
	if t.icons == nil {
		return
	}
	snapshot, err := t.procs.Snapshot()
	if err != nil {
		return
	}
	for _, info := range snapshot {
		if info.PID == pid && info.Path != "" {
			if err := t.icons.RecordIcon(ctx, info.Path, info.Name); err != nil {
				t.logger.Debug("icon cache write failed", "path", info.Path, "err", err)
			}
			return
		}
	}
}
