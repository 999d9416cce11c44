package core

import (
	"context"
	"errors"
	"time"
)

// TriggerKind selects the recurrence rule of a task.
type TriggerKind string

const (
	TriggerOnce   TriggerKind = "once"
	TriggerHourly TriggerKind = "hourly"
	TriggerDaily  TriggerKind = "daily"
	TriggerWeekly TriggerKind = "weekly"
)

// Trigger describes when a task becomes due.
// At is only meaningful for one-time triggers; Minute/Hour/Weekday are the
// wall-clock slot for the recurring kinds (Hour unused for hourly, Weekday
// unused for hourly and daily).
type Trigger struct {
	Kind    TriggerKind
	At      *time.Time
	Minute  int
	Hour    int
	Weekday time.Weekday
}

// WakePolicy controls pre-waking the machine ahead of a due time.
// LeadMinutes == 0 means no wake request is issued.
type WakePolicy struct {
	LeadMinutes int
}

// Task is a scheduled unit of work.
type Task struct {
	ID         string
	Name       string
	Target     string
	Trigger    Trigger
	Enabled    bool
	Paused     bool
	Aggressive bool
	Wake       WakePolicy
	SleepAfter bool
	LastRunAt  *time.Time
	NextRunAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RunOutcome is the terminal (or policy) result of one firing attempt.
type RunOutcome string

const (
	OutcomeStarted   RunOutcome = "started"
	OutcomeFinished  RunOutcome = "finished"
	OutcomeFailed    RunOutcome = "failed"
	OutcomePostponed RunOutcome = "postponed"
	OutcomeSkipped   RunOutcome = "skipped"
)

// Run captures a single firing attempt. It is owned by the tracker from
// spawn until exit, then handed back to the engine for finalization. Runs
// are not persisted; only their lifecycle events reach the store.
type Run struct {
	ID               string
	TaskID           string
	AttemptStartedAt time.Time
	LauncherPID      int
	ResolvedPID      int
	ResolvedAt       *time.Time
	ExitedAt         *time.Time
	Outcome          RunOutcome
	Detail           string
}

// EventType tags an execution-log entry.
type EventType string

const (
	EventStarted   EventType = "STARTED"
	EventFinished  EventType = "FINISHED"
	EventFailed    EventType = "FAILED"
	EventPostponed EventType = "POSTPONED"
	EventSkipped   EventType = "SKIPPED"
)

// Event is one append-only execution-log entry.
type Event struct {
	ID        string
	TaskID    string
	TaskName  string
	Type      EventType
	Detail    string
	CreatedAt time.Time
}

// ProcessInfo is a snapshot row from the system process table.
type ProcessInfo struct {
	PID       int
	ParentPID int
	Name      string
	Path      string
	StartedAt time.Time
}

// ProcessList abstracts access to the system process table so the tracker
// can be tested without spawning real processes.
type ProcessList interface {
	Snapshot() ([]ProcessInfo, error)
	Alive(pid int) bool
}

// Store abstracts the persistence layer used by the engine and tracker.
type Store interface {
	ListTasks(ctx context.Context) ([]*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	InsertTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id string) error
	UpdateTaskRunInfo(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time, enabled bool) error

	AppendEvent(ctx context.Context, event *Event) error
	PruneEvents(ctx context.Context) error

	RecordIcon(ctx context.Context, exePath, processName string) error
}

// PowerController abstracts OS power management. Implementations must be
// best-effort: a false return is logged by the caller, never fatal.
type PowerController interface {
	// EnsureAwakeBy arranges for the machine to be awake at deadline,
	// requesting a resume timer lead before it.
	EnsureAwakeBy(deadline time.Time, lead time.Duration) bool
	// RequestSleep suspends the machine. Repeated requests while a
	// transition is pending are no-ops.
	RequestSleep() bool
	// IsIdle reports whether no user input occurred within threshold.
	IsIdle(threshold time.Duration) bool
	// KeepAwake holds the system awake until the returned release func
	// is called. Release must be called exactly once.
	KeepAwake() (release func())
}

// TaskChange is a push-only notification of task state for UI consumers.
type TaskChange struct {
	Task  *Task
	State string
	At    time.Time
}

// Publisher receives task changes. Implementations must not block.
type Publisher interface {
	Publish(change TaskChange)
}

var (
	// ErrTaskRunning is returned when an operation conflicts with an
	// in-flight run for the same task.
	ErrTaskRunning = errors.New("task is already running")
	// ErrTaskNotFound is returned for unknown task IDs.
	ErrTaskNotFound = errors.New("task not found")
)
