package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	events []*Event
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*Task)}
}

func (s *memStore) ListTasks(ctx context.Context) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, task := range s.tasks {
		snapshot := *task
		out = append(out, &snapshot)
	}
	return out, nil
}

func (s *memStore) GetTask(ctx context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	snapshot := *task
	return &snapshot, nil
}

func (s *memStore) InsertTask(ctx context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *task
	s.tasks[task.ID] = &snapshot
	return nil
}

func (s *memStore) UpdateTask(ctx context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	snapshot := *task
	s.tasks[task.ID] = &snapshot
	return nil
}

func (s *memStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memStore) UpdateTaskRunInfo(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	task.LastRunAt = lastRunAt
	task.NextRunAt = nextRunAt
	task.Enabled = enabled
	return nil
}

func (s *memStore) AppendEvent(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *event
	s.events = append(s.events, &snapshot)
	return nil
}

func (s *memStore) PruneEvents(ctx context.Context) error { return nil }

func (s *memStore) RecordIcon(ctx context.Context, exePath, processName string) error { return nil }

func (s *memStore) eventsOfType(eventType EventType) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// stubLauncher completes runs on demand. Each launch blocks until release is
// called (or immediately when autoRelease is set).
type stubLauncher struct {
	mu          sync.Mutex
	launches    int
	autoRelease bool
	outcome     RunOutcome
	blocked     []chan struct{}
	clock       func() time.Time
}

func newStubLauncher(clock func() time.Time) *stubLauncher {
	return &stubLauncher{autoRelease: true, outcome: OutcomeFinished, clock: clock}
}

func (l *stubLauncher) Launch(ctx context.Context, task *Task, run *Run) <-chan RunUpdate {
	l.mu.Lock()
	l.launches++
	gate := make(chan struct{})
	if l.autoRelease {
		close(gate)
	} else {
		l.blocked = append(l.blocked, gate)
	}
	outcome := l.outcome
	l.mu.Unlock()

	updates := make(chan RunUpdate, 4)
	go func() {
		defer close(updates)
		run.AttemptStartedAt = l.clock()
		run.LauncherPID = 100
		run.Outcome = OutcomeStarted
		updates <- RunUpdate{Run: run, Phase: PhaseStarted}
		select {
		case <-gate:
		case <-ctx.Done():
		}
		run.ResolvedPID = 200
		exited := l.clock()
		run.ExitedAt = &exited
		run.Outcome = outcome
		updates <- RunUpdate{Run: run, Phase: PhaseExited}
	}()
	return updates
}

func (l *stubLauncher) setAutoRelease(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoRelease = v
}

func (l *stubLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *stubLauncher) releaseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, gate := range l.blocked {
		close(gate)
	}
	l.blocked = nil
}

type stubPower struct {
	mu         sync.Mutex
	idle       bool
	wakeCalls  int
	sleepCalls int
	holds      int
	releases   int
}

func (p *stubPower) EnsureAwakeBy(deadline time.Time, lead time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wakeCalls++
	return true
}

func (p *stubPower) RequestSleep() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sleepCalls++
	return true
}

func (p *stubPower) IsIdle(threshold time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

func (p *stubPower) KeepAwake() (release func()) {
	p.mu.Lock()
	p.holds++
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.releases++
		p.mu.Unlock()
	}
}

func (p *stubPower) setIdle(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = v
}

func (p *stubPower) counts() (wake, sleep, holds, releases int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wakeCalls, p.sleepCalls, p.holds, p.releases
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []TaskChange
}

func (r *changeRecorder) Publish(change TaskChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *changeRecorder) states() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.State)
	}
	return out
}

type engineFixture struct {
	engine   *Engine
	store    *memStore
	launcher *stubLauncher
	power    *stubPower
	clock    *fakeClock
	changes  *changeRecorder
	target   string
}

func newEngineFixture(t *testing.T, policy Policy) *engineFixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
	store := newMemStore()
	launcher := newStubLauncher(clock.Now)
	power := &stubPower{idle: true}
	changes := &changeRecorder{}

	target := filepath.Join(t.TempDir(), "app.exe")
	require.NoError(t, os.WriteFile(target, []byte("binary"), 0o755))

	engine := NewEngine(store, launcher, power, discardLogger(), policy,
		WithClock(clock.Now),
		WithPublisher(changes),
	)
	return &engineFixture{
		engine:   engine,
		store:    store,
		launcher: launcher,
		power:    power,
		clock:    clock,
		changes:  changes,
		target:   target,
	}
}

func (f *engineFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.Start(context.Background()))
	t.Cleanup(f.engine.Stop)
}

func quietPolicy() Policy {
	// A scan interval long enough that tests drive dispatch explicitly.
	return Policy{ScanInterval: time.Hour, GraceWindow: 5 * time.Minute, IdleThreshold: 3 * time.Minute}
}

func fastPolicy() Policy {
	return Policy{ScanInterval: 5 * time.Millisecond, GraceWindow: 5 * time.Minute, IdleThreshold: 3 * time.Minute}
}

func dailyTask(target string) *Task {
	return &Task{
		Name:    "backup",
		Target:  target,
		Trigger: Trigger{Kind: TriggerDaily, Hour: 9, Minute: 0},
		Enabled: true,
	}
}

func TestAddTask_Validation(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	ctx := context.Background()

	t.Run("name required", func(t *testing.T) {
		task := dailyTask(f.target)
		task.Name = ""
		assert.ErrorIs(t, f.engine.AddTask(ctx, task), ErrInvalidTask)
	})

	t.Run("target must exist", func(t *testing.T) {
		task := dailyTask(filepath.Join(t.TempDir(), "missing.exe"))
		assert.ErrorIs(t, f.engine.AddTask(ctx, task), ErrInvalidTask)
	})

	t.Run("one-time schedule must be in the future", func(t *testing.T) {
		past := f.clock.Now().Add(-time.Minute)
		task := dailyTask(f.target)
		task.Trigger = Trigger{Kind: TriggerOnce, At: &past}
		assert.ErrorIs(t, f.engine.AddTask(ctx, task), ErrInvalidTask)
	})

	t.Run("wake lead bounded", func(t *testing.T) {
		task := dailyTask(f.target)
		task.Wake.LeadMinutes = 20
		assert.ErrorIs(t, f.engine.AddTask(ctx, task), ErrInvalidTask)
	})

	t.Run("valid task gets id and next run", func(t *testing.T) {
		task := dailyTask(f.target)
		require.NoError(t, f.engine.AddTask(ctx, task))
		assert.NotEmpty(t, task.ID)
		require.NotNil(t, task.NextRunAt)
		assert.Equal(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), *task.NextRunAt)
	})
}

func TestRunNow_InFlightExclusivity(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.launcher.setAutoRelease(false)
	run, err := f.engine.RunNow(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, f.engine.Running(task.ID))

	_, err = f.engine.RunNow(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskRunning)

	f.launcher.releaseAll()
	require.Eventually(t, func() bool {
		return !f.engine.Running(task.ID)
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.launcher.launchCount())

	got, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(f.clock.Now()))
}

func TestRunNow_OneTimeTaskDisablesAfterCompletion(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	at := f.clock.Now().Add(2 * time.Hour)
	task := dailyTask(f.target)
	task.Trigger = Trigger{Kind: TriggerOnce, At: &at}
	require.NoError(t, f.engine.AddTask(ctx, task))

	// The manual run consumes the only occurrence once the due time passes.
	f.clock.Advance(3 * time.Hour)
	_, err := f.engine.RunNow(ctx, task.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.engine.GetTask(task.ID)
		return err == nil && !got.Enabled && got.NextRunAt == nil
	}, 5*time.Second, 5*time.Millisecond)
}

func TestScan_DispatchesDueTask(t *testing.T) {
	f := newEngineFixture(t, fastPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.clock.Advance(61 * time.Minute) // 09:01, within the grace window
	require.Eventually(t, func() bool {
		return f.launcher.launchCount() == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := f.engine.GetTask(task.ID)
		if err != nil || got.NextRunAt == nil {
			return false
		}
		return got.NextRunAt.Equal(time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC))
	}, 5*time.Second, 5*time.Millisecond)

	assert.NotEmpty(t, f.store.eventsOfType(EventStarted))
	assert.NotEmpty(t, f.store.eventsOfType(EventFinished))
}

func TestScan_SkipsBeyondGraceWindow(t *testing.T) {
	f := newEngineFixture(t, fastPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.clock.Advance(2 * time.Hour) // 10:00, an hour past due
	require.Eventually(t, func() bool {
		return len(f.store.eventsOfType(EventSkipped)) == 1
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, f.launcher.launchCount())
	got, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), *got.NextRunAt)
}

func TestScan_AggressiveFiresLate(t *testing.T) {
	f := newEngineFixture(t, fastPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	task.Aggressive = true
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.clock.Advance(2 * time.Hour) // an hour past due, beyond grace
	require.Eventually(t, func() bool {
		return f.launcher.launchCount() == 1
	}, 5*time.Second, 5*time.Millisecond)

	postponed := f.store.eventsOfType(EventPostponed)
	require.NotEmpty(t, postponed)
	assert.Contains(t, postponed[0].Detail, "late")
}

func TestScan_NonAggressiveDefersUntilIdle(t *testing.T) {
	f := newEngineFixture(t, fastPolicy())
	f.power.idle = false
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.clock.Advance(61 * time.Minute) // 09:01, due and within grace
	require.Eventually(t, func() bool {
		return len(f.store.eventsOfType(EventPostponed)) == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.launcher.launchCount())

	// User steps away; the deferred occurrence fires.
	f.power.setIdle(true)
	require.Eventually(t, func() bool {
		return f.launcher.launchCount() == 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestScan_PostponesOncePerOccurrenceWhileInFlight(t *testing.T) {
	f := newEngineFixture(t, fastPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.launcher.setAutoRelease(false)
	_, err := f.engine.RunNow(ctx, task.ID)
	require.NoError(t, err)

	// The next occurrence comes due while the manual run is still going.
	f.clock.Advance(61 * time.Minute)
	require.Eventually(t, func() bool {
		return len(f.store.eventsOfType(EventPostponed)) == 1
	}, 5*time.Second, 5*time.Millisecond)

	// Further scans of the same occurrence stay quiet.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.store.eventsOfType(EventPostponed), 1)

	f.launcher.releaseAll()
	require.Eventually(t, func() bool {
		return !f.engine.Running(task.ID)
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPauseFreezesSchedule(t *testing.T) {
	f := newEngineFixture(t, fastPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))
	frozen := *task.NextRunAt

	require.NoError(t, f.engine.PauseTask(ctx, task.ID))

	f.clock.Advance(2 * time.Hour)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.launcher.launchCount())

	got, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	assert.True(t, got.Paused)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, frozen, *got.NextRunAt, "pause must freeze, not recompute, the due time")
}

func TestResumeFiresMissedOccurrenceOnce(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))
	require.NoError(t, f.engine.PauseTask(ctx, task.ID))

	f.clock.Advance(2 * time.Hour) // due time elapsed while paused
	require.NoError(t, f.engine.ResumeTask(ctx, task.ID))

	require.Eventually(t, func() bool {
		return f.launcher.launchCount() == 1 && !f.engine.Running(task.ID)
	}, 5*time.Second, 5*time.Millisecond)

	postponed := f.store.eventsOfType(EventPostponed)
	require.Len(t, postponed, 1)
	assert.Contains(t, postponed[0].Detail, "missed while paused")

	got, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), *got.NextRunAt)
}

func TestResumeWithoutMissedOccurrenceStaysQuiet(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))
	require.NoError(t, f.engine.PauseTask(ctx, task.ID))
	require.NoError(t, f.engine.ResumeTask(ctx, task.ID))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.launcher.launchCount())
}

func TestResumeSchedulesTaskCreatedPaused(t *testing.T) {
	f := newEngineFixture(t, fastPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	task.Paused = true
	require.NoError(t, f.engine.AddTask(ctx, task))
	got, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	require.Nil(t, got.NextRunAt, "schedule stays frozen while paused")

	require.NoError(t, f.engine.ResumeTask(ctx, task.ID))
	got, err = f.engine.GetTask(task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt, "resumed task must have a schedule")
	assert.Equal(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), *got.NextRunAt)

	f.clock.Advance(61 * time.Minute) // 09:01, within the grace window
	require.Eventually(t, func() bool {
		return f.launcher.launchCount() == 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestResumeDisablesOneTimeTaskSpentWhilePaused(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	at := f.clock.Now().Add(30 * time.Minute)
	task := dailyTask(f.target)
	task.Trigger = Trigger{Kind: TriggerOnce, At: &at}
	task.Paused = true
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.clock.Advance(time.Hour) // the only occurrence passed while frozen
	require.NoError(t, f.engine.ResumeTask(ctx, task.ID))

	got, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Nil(t, got.NextRunAt)
	assert.Equal(t, 0, f.launcher.launchCount())
}

func TestDeleteTask_OrphansInFlightRun(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.launcher.setAutoRelease(false)
	_, err := f.engine.RunNow(ctx, task.ID)
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteTask(ctx, task.ID))
	_, err = f.engine.GetTask(task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// The orphaned run still completes and lands in the execution log.
	f.launcher.releaseAll()
	require.Eventually(t, func() bool {
		return len(f.store.eventsOfType(EventFinished)) == 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSleepAfterCompletion(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	task.SleepAfter = true
	require.NoError(t, f.engine.AddTask(ctx, task))

	_, err := f.engine.RunNow(ctx, task.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !f.engine.Running(task.ID)
	}, 5*time.Second, 5*time.Millisecond)

	_, sleep, holds, releases := f.power.counts()
	assert.Equal(t, 1, sleep)
	assert.Equal(t, 1, holds, "keep-awake held while the run was in flight")
	assert.Equal(t, 1, releases, "keep-awake released after the last run")
}

func TestSleepSuppressedWhileOthersInFlight(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	sleeper := dailyTask(f.target)
	sleeper.SleepAfter = true
	require.NoError(t, f.engine.AddTask(ctx, sleeper))

	other := dailyTask(f.target)
	other.Name = "other"
	require.NoError(t, f.engine.AddTask(ctx, other))

	f.launcher.setAutoRelease(false)
	_, err := f.engine.RunNow(ctx, other.ID)
	require.NoError(t, err)

	f.launcher.setAutoRelease(true)
	_, err = f.engine.RunNow(ctx, sleeper.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !f.engine.Running(sleeper.ID)
	}, 5*time.Second, 5*time.Millisecond)

	_, sleep, _, _ := f.power.counts()
	assert.Equal(t, 0, sleep, "no suspend while another run is in flight")

	f.launcher.releaseAll()
	require.Eventually(t, func() bool {
		return !f.engine.Running(other.ID)
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPrewakeRequestedOncePerOccurrence(t *testing.T) {
	f := newEngineFixture(t, fastPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	task.Wake.LeadMinutes = 10
	require.NoError(t, f.engine.AddTask(ctx, task))

	f.clock.Advance(55 * time.Minute) // 08:55, inside the 10-minute lead
	require.Eventually(t, func() bool {
		wake, _, _, _ := f.power.counts()
		return wake == 1
	}, 5*time.Second, 5*time.Millisecond)

	// More scans inside the lead window do not re-arm the timer.
	time.Sleep(50 * time.Millisecond)
	wake, _, _, _ := f.power.counts()
	assert.Equal(t, 1, wake)
}

func TestUpdateTask_RecomputesSchedule(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))

	updated := *task
	updated.Trigger = Trigger{Kind: TriggerDaily, Hour: 17, Minute: 30}
	require.NoError(t, f.engine.UpdateTask(ctx, &updated))

	got, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, time.Date(2025, 1, 1, 17, 30, 0, 0, time.UTC), *got.NextRunAt)
}

func TestUpdateTask_DisabledClearsSchedule(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))

	updated := *task
	updated.Enabled = false
	require.NoError(t, f.engine.UpdateTask(ctx, &updated))

	got, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextRunAt)
}

func TestPublisherSeesLifecycle(t *testing.T) {
	f := newEngineFixture(t, quietPolicy())
	f.start(t)
	ctx := context.Background()

	task := dailyTask(f.target)
	require.NoError(t, f.engine.AddTask(ctx, task))
	_, err := f.engine.RunNow(ctx, task.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		states := f.changes.states()
		var sawCreated, sawRunning, sawFinished bool
		for _, s := range states {
			switch s {
			case "created":
				sawCreated = true
			case "running":
				sawRunning = true
			case "finished":
				sawFinished = true
			}
		}
		return sawCreated && sawRunning && sawFinished
	}, 5*time.Second, 5*time.Millisecond)
}
