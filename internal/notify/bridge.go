package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

// PushBridge turns terminal task changes into push notifications. It sits
// behind the hub so pushes never touch the scheduling path: sends run on
// their own goroutine with a bounded timeout.
type PushBridge struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewPushBridge(notifier Notifier, logger *slog.Logger) *PushBridge {
	return &PushBridge{notifier: notifier, logger: logger}
}

// Publish implements core.Publisher.
func (b *PushBridge) Publish(change core.TaskChange) {
	switch core.RunOutcome(change.State) {
	case core.OutcomeFinished, core.OutcomeFailed:
	default:
		return
	}
	title := fmt.Sprintf("AutoLauncher: %s", change.Task.Name)
	body := fmt.Sprintf("run %s at %s", change.State, change.At.Format(time.Kitchen))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.notifier.Send(ctx, title, body); err != nil {
			b.logger.Warn("push notification failed", "task_id", change.Task.ID, "err", err)
		}
	}()
}

// Fanout publishes to several publishers in order.
type Fanout []core.Publisher

func (f Fanout) Publish(change core.TaskChange) {
	for _, p := range f {
		p.Publish(change)
	}
}
