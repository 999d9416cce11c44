package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ErrInvalidTask wraps task validation failures so callers can map them to
// user-visible errors.
var ErrInvalidTask = errors.New("invalid task")

// Policy holds the configurable scheduling knobs.
type Policy struct {
	// ScanInterval is the cadence of the due-task scan loop.
	ScanInterval time.Duration
	// GraceWindow bounds how late an occurrence may fire before it is
	// dropped (or, for an in-flight conflict, reported postponed).
	GraceWindow time.Duration
	// IdleThreshold is the no-input window required before dispatching
	// non-aggressive tasks.
	IdleThreshold time.Duration
}

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		ScanInterval:  2 * time.Second,
		GraceWindow:   5 * time.Minute,
		IdleThreshold: 3 * time.Minute,
	}
}

// Engine owns the task set and drives scheduling: the scan loop, dispatch
// to the launcher, pause/resume, postpone/skip policy, and power
// orchestration. All task mutation funnels through the engine; the scan
// loop and tracker completions share a single coordination point.
type Engine struct {
	store     Store
	launcher  Launcher
	power     PowerController
	publisher Publisher
	logger    *slog.Logger
	policy    Policy
	now       func() time.Time

	mu           sync.Mutex
	tasks        map[string]*Task
	inflight     map[string]*Run
	postponed    map[string]time.Time
	woken        map[string]time.Time
	releaseAwake func()

	done   chan *runResult
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type runResult struct {
	taskID   string
	taskName string
	run      *Run
}

// EngineOption mutates engine construction.
type EngineOption func(*Engine)

// WithClock overrides the engine's wall-clock source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithPublisher attaches a task-change publisher.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// NewEngine constructs a stopped engine.
func NewEngine(store Store, launcher Launcher, power PowerController, logger *slog.Logger, policy Policy, opts ...EngineOption) *Engine {
	if policy.ScanInterval <= 0 {
		policy = DefaultPolicy()
	}
	e := &Engine{
		store:     store,
		launcher:  launcher,
		power:     power,
		logger:    logger,
		policy:    policy,
		now:       time.Now,
		tasks:     make(map[string]*Task),
		inflight:  make(map[string]*Run),
		postponed: make(map[string]time.Time),
		woken:     make(map[string]time.Time),
		done:      make(chan *runResult, 16),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start loads tasks from the store and begins the scan loop.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	e.mu.Lock()
	for _, task := range tasks {
		if task.Enabled && !task.Paused && task.NextRunAt == nil {
			if next, err := NextOccurrence(task.Trigger, e.now()); err == nil {
				task.NextRunAt = &next
				if err := e.store.UpdateTaskRunInfo(ctx, task.ID, task.LastRunAt, task.NextRunAt, task.Enabled); err != nil {
					e.logger.Warn("restore next_run_at", "task_id", task.ID, "err", err)
				}
			} else if errors.Is(err, ErrTriggerExhausted) {
				task.Enabled = false
				if err := e.store.UpdateTaskRunInfo(ctx, task.ID, task.LastRunAt, nil, false); err != nil {
					e.logger.Warn("disable exhausted task", "task_id", task.ID, "err", err)
				}
			}
		}
		e.tasks[task.ID] = task
	}
	count := len(e.tasks)
	e.mu.Unlock()
	e.logger.Info("engine started", "tasks", count, "scan_interval", e.policy.ScanInterval)

	e.wg.Add(1)
	go e.loop()
	return nil
}

// Stop cancels the scan loop and waits for in-flight bookkeeping. Launched
// external processes are never killed; their runs are abandoned.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) loop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.policy.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.scan()
		case res := <-e.done:
			e.finalize(res)
		}
	}
}

// scan walks all tasks once, applying due detection, pre-wake, idle
// deferral, and the postpone/skip policy. A malfunctioning task only
// affects itself.
func (e *Engine) scan() {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, task := range e.tasks {
		if !task.Enabled || task.Paused || task.NextRunAt == nil {
			continue
		}
		next := *task.NextRunAt
		e.maybePrewake(task, next, now)
		if now.Before(next) {
			continue
		}
		lateness := now.Sub(next)

		if run := e.inflight[task.ID]; run != nil {
			if lateness <= e.policy.GraceWindow {
				e.markPostponed(task, next, fmt.Sprintf("previous run still in flight (pid %d)", run.ResolvedPID))
			} else {
				e.skipOccurrence(task, now, "occurrence expired while previous run in flight")
			}
			continue
		}

		if lateness > e.policy.GraceWindow {
			if task.Aggressive {
				e.emitEvent(task.ID, task.Name, EventPostponed, fmt.Sprintf("firing %s late", lateness.Round(time.Second)))
				e.dispatchLocked(task)
			} else {
				e.skipOccurrence(task, now, fmt.Sprintf("missed by %s", lateness.Round(time.Second)))
			}
			continue
		}

		if !task.Aggressive && e.power != nil && !e.power.IsIdle(e.policy.IdleThreshold) {
			e.markPostponed(task, next, "deferred until user idle")
			continue
		}

		e.dispatchLocked(task)
	}
}

// maybePrewake issues at most one wake request per occurrence once the
// lead window opens. Failure is logged and scheduling proceeds.
func (e *Engine) maybePrewake(task *Task, next, now time.Time) {
	if task.Wake.LeadMinutes <= 0 || e.power == nil {
		return
	}
	lead := time.Duration(task.Wake.LeadMinutes) * time.Minute
	if now.Before(next.Add(-lead)) || !now.Before(next) {
		return
	}
	if e.woken[task.ID].Equal(next) {
		return
	}
	e.woken[task.ID] = next
	if !e.power.EnsureAwakeBy(next, lead) {
		e.logger.Warn("wake request rejected", "task_id", task.ID, "deadline", next)
	}
}

// markPostponed records at most one postponed event per occurrence.
func (e *Engine) markPostponed(task *Task, due time.Time, detail string) {
	if e.postponed[task.ID].Equal(due) {
		return
	}
	e.postponed[task.ID] = due
	e.emitEvent(task.ID, task.Name, EventPostponed, detail)
	e.publish(task, "postponed")
}

// skipOccurrence drops the current occurrence and advances the schedule
// from the present, never from the missed time.
func (e *Engine) skipOccurrence(task *Task, now time.Time, detail string) {
	delete(e.postponed, task.ID)
	next, err := NextOccurrence(task.Trigger, now)
	if err != nil {
		if !errors.Is(err, ErrTriggerExhausted) {
			e.logger.Error("recompute after skip", "task_id", task.ID, "err", err)
		}
		task.Enabled = false
		task.NextRunAt = nil
	} else {
		task.NextRunAt = &next
	}
	if err := e.store.UpdateTaskRunInfo(e.ctx, task.ID, task.LastRunAt, task.NextRunAt, task.Enabled); err != nil {
		e.logger.Error("persist skip", "task_id", task.ID, "err", err)
	}
	e.emitEvent(task.ID, task.Name, EventSkipped, detail)
	e.publish(task, "skipped")
}

// dispatchLocked hands the task to the launcher. Caller holds e.mu and has
// verified there is no in-flight run for the task.
func (e *Engine) dispatchLocked(task *Task) *Run {
	delete(e.postponed, task.ID)
	run := &Run{ID: NewID(), TaskID: task.ID}
	e.inflight[task.ID] = run
	if e.releaseAwake == nil && e.power != nil {
		e.releaseAwake = e.power.KeepAwake()
	}
	snapshot := *task
	e.wg.Add(1)
	go e.watch(snapshot, run)
	return run
}

// watch consumes tracker updates for one run and forwards the terminal
// result to the loop. It runs off the scan goroutine so a slow-resolving
// launcher never blocks scheduling.
func (e *Engine) watch(task Task, run *Run) {
	defer e.wg.Done()
	for update := range e.launcher.Launch(e.ctx, &task, run) {
		switch update.Phase {
		case PhaseStarted:
			e.emitEvent(task.ID, task.Name, EventStarted, fmt.Sprintf("launched %s (pid %d)", task.Target, run.LauncherPID))
			e.publish(&task, "running")
		case PhaseResolved:
			e.logger.Debug("run resolved", "task_id", task.ID, "resolved_pid", run.ResolvedPID)
		}
	}
	select {
	case e.done <- &runResult{taskID: task.ID, taskName: task.Name, run: run}:
	case <-e.ctx.Done():
	}
}

// finalize takes ownership of a completed run: releases the in-flight flag
// exactly once, recomputes the schedule forward, and emits the terminal
// event. Sleep-after-completion fires only when nothing else is running.
func (e *Engine) finalize(res *runResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inflight[res.taskID]; !ok {
		return
	}
	delete(e.inflight, res.taskID)
	delete(e.postponed, res.taskID)
	if len(e.inflight) == 0 && e.releaseAwake != nil {
		e.releaseAwake()
		e.releaseAwake = nil
	}

	run := res.run
	eventType := EventFinished
	if run.Outcome != OutcomeFinished {
		eventType = EventFailed
	}

	task, ok := e.tasks[res.taskID]
	if !ok {
		// Task was deleted mid-run; the run was still tracked to
		// completion for the log.
		e.emitEvent(res.taskID, res.taskName, eventType, run.Detail)
		return
	}

	now := e.now()
	started := run.AttemptStartedAt
	task.LastRunAt = &started
	next, err := NextOccurrence(task.Trigger, now)
	if err != nil {
		if !errors.Is(err, ErrTriggerExhausted) {
			e.logger.Error("recompute next occurrence", "task_id", task.ID, "err", err)
		}
		task.Enabled = false
		task.NextRunAt = nil
	} else {
		task.NextRunAt = &next
	}
	if err := e.store.UpdateTaskRunInfo(e.ctx, task.ID, task.LastRunAt, task.NextRunAt, task.Enabled); err != nil {
		e.logger.Error("persist run info", "task_id", task.ID, "err", err)
	}

	e.emitEvent(task.ID, task.Name, eventType, runDetail(run))
	e.publish(task, string(run.Outcome))

	if task.SleepAfter && run.Outcome == OutcomeFinished && len(e.inflight) == 0 && e.power != nil {
		if !e.power.RequestSleep() {
			e.logger.Warn("sleep request rejected", "task_id", task.ID)
		}
	}
}

func runDetail(run *Run) string {
	detail := run.Detail
	if run.ExitedAt != nil && !run.AttemptStartedAt.IsZero() {
		elapsed := run.ExitedAt.Sub(run.AttemptStartedAt).Round(time.Second)
		if detail != "" {
			return fmt.Sprintf("%s; ran %s (launcher pid %d, resolved pid %d)", detail, elapsed, run.LauncherPID, run.ResolvedPID)
		}
		return fmt.Sprintf("ran %s (launcher pid %d, resolved pid %d)", elapsed, run.LauncherPID, run.ResolvedPID)
	}
	return detail
}

// emitEvent appends to the execution log. It is fire-and-forget: failures
// are logged and never reach the scheduling path.
func (e *Engine) emitEvent(taskID, taskName string, eventType EventType, detail string) {
	event := &Event{
		ID:        NewID(),
		TaskID:    taskID,
		TaskName:  taskName,
		Type:      eventType,
		Detail:    detail,
		CreatedAt: e.now(),
	}
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		e.logger.Warn("append event", "task_id", taskID, "type", eventType, "err", err)
		return
	}
	if eventType == EventFinished || eventType == EventFailed {
		if err := e.store.PruneEvents(ctx); err != nil {
			e.logger.Warn("prune events", "err", err)
		}
	}
}

func (e *Engine) publish(task *Task, state string) {
	if e.publisher == nil {
		return
	}
	snapshot := *task
	e.publisher.Publish(TaskChange{Task: &snapshot, State: state, At: e.now()})
}

// AddTask validates and registers a new task. Configuration errors are
// rejected here and never enter the schedule.
func (e *Engine) AddTask(ctx context.Context, task *Task) error {
	if err := e.validate(task); err != nil {
		return err
	}
	now := e.now()
	if task.ID == "" {
		task.ID = NewID()
	}
	if task.Enabled && !task.Paused {
		next, err := NextOccurrence(task.Trigger, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTask, err)
		}
		task.NextRunAt = &next
	}
	if err := e.store.InsertTask(ctx, task); err != nil {
		return err
	}
	e.mu.Lock()
	e.tasks[task.ID] = task
	e.mu.Unlock()
	e.publish(task, "created")
	e.logger.Info("task added", "task_id", task.ID, "name", task.Name, "trigger", task.Trigger.Describe())
	return nil
}

// UpdateTask applies user-editable fields and reconciles the live
// registration. Scheduling-derived fields stay engine-owned.
func (e *Engine) UpdateTask(ctx context.Context, task *Task) error {
	if err := e.validate(task); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	current, ok := e.tasks[task.ID]
	if !ok {
		return ErrTaskNotFound
	}
	task.CreatedAt = current.CreatedAt
	task.LastRunAt = current.LastRunAt
	switch {
	case !task.Enabled:
		task.NextRunAt = nil
	case task.Paused:
		// Frozen while paused.
		task.NextRunAt = current.NextRunAt
	default:
		next, err := NextOccurrence(task.Trigger, e.now())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTask, err)
		}
		task.NextRunAt = &next
	}
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	e.tasks[task.ID] = task
	delete(e.postponed, task.ID)
	delete(e.woken, task.ID)
	e.publish(task, "updated")
	return nil
}

// DeleteTask removes future scheduling. An in-flight run is not killed; it
// is tracked to completion and logged as an orphan.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	if err := e.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	e.mu.Lock()
	task, ok := e.tasks[id]
	delete(e.tasks, id)
	delete(e.postponed, id)
	delete(e.woken, id)
	e.mu.Unlock()
	if ok {
		e.publish(task, "deleted")
	}
	return nil
}

// PauseTask suspends dispatch without touching the frozen schedule.
func (e *Engine) PauseTask(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if task.Paused {
		return nil
	}
	task.Paused = true
	if err := e.store.UpdateTask(ctx, task); err != nil {
		task.Paused = false
		return err
	}
	e.publish(task, "paused")
	return nil
}

// ResumeTask lifts a pause. If the frozen due time elapsed while paused the
// task fires exactly once as a catch-up rather than being silently skipped.
func (e *Engine) ResumeTask(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if !task.Paused {
		return nil
	}
	prevNext, prevEnabled := task.NextRunAt, task.Enabled
	task.Paused = false
	if task.Enabled && task.NextRunAt == nil {
		// A task created paused never had a schedule computed.
		next, err := NextOccurrence(task.Trigger, e.now())
		if err != nil {
			if !errors.Is(err, ErrTriggerExhausted) {
				e.logger.Error("schedule on resume", "task_id", task.ID, "err", err)
			}
			task.Enabled = false
		} else {
			task.NextRunAt = &next
		}
	}
	if err := e.store.UpdateTask(ctx, task); err != nil {
		task.Paused = true
		task.NextRunAt = prevNext
		task.Enabled = prevEnabled
		return err
	}
	e.publish(task, "resumed")
	if task.Enabled && task.NextRunAt != nil && !e.now().Before(*task.NextRunAt) && e.inflight[id] == nil {
		e.emitEvent(task.ID, task.Name, EventPostponed, "missed while paused; firing once on resume")
		e.dispatchLocked(task)
	}
	return nil
}

// RunNow dispatches immediately, bypassing trigger timing but not the
// in-flight exclusivity.
func (e *Engine) RunNow(ctx context.Context, id string) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if e.inflight[id] != nil {
		return nil, ErrTaskRunning
	}
	return e.dispatchLocked(task), nil
}

// ListTasks returns copies of all registered tasks.
func (e *Engine) ListTasks() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	tasks := make([]*Task, 0, len(e.tasks))
	for _, task := range e.tasks {
		snapshot := *task
		tasks = append(tasks, &snapshot)
	}
	return tasks
}

// GetTask returns a copy of one task.
func (e *Engine) GetTask(id string) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	snapshot := *task
	return &snapshot, nil
}

// Running reports whether the task has an in-flight run.
func (e *Engine) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[id] != nil
}

func (e *Engine) validate(task *Task) error {
	if task.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if task.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidTask)
	}
	abs, err := NormalizeTarget(task.Target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("%w: target %s: %v", ErrInvalidTask, abs, err)
	}
	task.Target = abs
	if err := task.Trigger.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if task.Trigger.Kind == TriggerOnce && !task.Trigger.At.After(e.now()) {
		return fmt.Errorf("%w: one-time schedule must be in the future", ErrInvalidTask)
	}
	if lead := task.Wake.LeadMinutes; lead != 0 && (lead < 1 || lead > 15) {
		return fmt.Errorf("%w: wake lead must be between 1 and 15 minutes", ErrInvalidTask)
	}
	return nil
}
