package notify

import (
	"context"
)

// Notifier delivers a user-facing push notification.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// MultiNotifier fans a notification out to several notifiers. Delivery is
// best-effort: the last error is returned but does not stop the others.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Send(ctx context.Context, title, body string) error {
	var last error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			last = err
		}
	}
	return last
}

// NoOpNotifier discards notifications.
type NoOpNotifier struct{}

func (NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}
