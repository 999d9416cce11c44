package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

func sampleChange(state string) core.TaskChange {
	return core.TaskChange{
		Task:  &core.Task{ID: "t1", Name: "backup"},
		State: state,
		At:    time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe()
	defer cancel1()
	ch2, cancel2 := hub.Subscribe()
	defer cancel2()

	hub.Publish(sampleChange("running"))

	for _, ch := range []<-chan core.TaskChange{ch1, ch2} {
		select {
		case change := <-ch:
			assert.Equal(t, "running", change.State)
			assert.Equal(t, "t1", change.Task.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the change")
		}
	}
}

func TestHub_CancelStopsDelivery(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe()
	cancel()
	// Cancel is idempotent.
	cancel()

	_, open := <-ch
	assert.False(t, open, "channel is closed after cancel")

	// Publishing after cancel must not panic on the closed channel.
	assert.NotPanics(t, func() { hub.Publish(sampleChange("running")) })
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe()
	defer cancel()

	// The subscriber never reads; the buffer fills and further publishes
	// drop on the floor instead of stalling the caller.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Publish(sampleChange("running"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	sent   chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(chan struct{}, 16)}
}

func (n *recordingNotifier) Send(ctx context.Context, title, body string) error {
	n.mu.Lock()
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	n.mu.Unlock()
	n.sent <- struct{}{}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.titles)
}

func TestPushBridge_OnlyTerminalOutcomes(t *testing.T) {
	notifier := newRecordingNotifier()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bridge := NewPushBridge(notifier, logger)

	bridge.Publish(sampleChange("created"))
	bridge.Publish(sampleChange(string(core.OutcomeStarted)))
	bridge.Publish(sampleChange(string(core.OutcomePostponed)))
	bridge.Publish(sampleChange(string(core.OutcomeFinished)))
	bridge.Publish(sampleChange(string(core.OutcomeFailed)))

	for i := 0; i < 2; i++ {
		select {
		case <-notifier.sent:
		case <-time.After(2 * time.Second):
			t.Fatal("bridge did not deliver terminal outcome")
		}
	}
	// Give any stray sends a moment to land.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, notifier.count())

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, "AutoLauncher: backup", notifier.titles[0])
	// Sends run on their own goroutines, so terminal states land in any order.
	assert.ElementsMatch(t,
		[]string{"run finished at 9:00AM", "run failed at 9:00AM"},
		notifier.bodies)
}

func TestFanout(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	notifier := newRecordingNotifier()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fanout := Fanout{hub, NewPushBridge(notifier, logger)}

	fanout.Publish(sampleChange(string(core.OutcomeFinished)))

	select {
	case change := <-ch:
		assert.Equal(t, string(core.OutcomeFinished), change.State)
	case <-time.After(time.Second):
		t.Fatal("hub subscriber missed the fanned-out change")
	}
	select {
	case <-notifier.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("push bridge missed the fanned-out change")
	}
}

func TestBarkNotifier(t *testing.T) {
	t.Run("empty url rejected", func(t *testing.T) {
		_, err := NewBarkNotifier("")
		assert.Error(t, err)
	})

	t.Run("sends title and body as query params", func(t *testing.T) {
		var gotQuery map[string][]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
		}))
		defer server.Close()

		bark, err := NewBarkNotifier(server.URL + "/")
		require.NoError(t, err)
		require.NoError(t, bark.Send(context.Background(), "AutoLauncher: backup", "run finished at 9:00AM"))

		require.NotNil(t, gotQuery)
		assert.Equal(t, []string{"AutoLauncher: backup"}, gotQuery["title"])
		assert.Equal(t, []string{"run finished at 9:00AM"}, gotQuery["body"])
		assert.Equal(t, []string{"autolauncher"}, gotQuery["group"])
	})

	t.Run("http error surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		bark, err := NewBarkNotifier(server.URL)
		require.NoError(t, err)
		assert.Error(t, bark.Send(context.Background(), "t", "b"))
	})
}
