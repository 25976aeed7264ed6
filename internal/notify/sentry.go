package notify

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryNotifier reports notifications as warning-level Sentry
// messages. Events are sent asynchronously by the sentry transport.
type SentryNotifier struct {
	hub *sentry.Hub
}

var _ Notifier = (*SentryNotifier)(nil)

// NewSentryNotifier reports to the given hub, or to the current hub
// when hub is nil.
func NewSentryNotifier(hub *sentry.Hub) *SentryNotifier {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryNotifier{hub: hub}
}

func (n *SentryNotifier) Notify(_ context.Context, notification Notification) {
	n.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("source", notification.Source)
		scope.SetExtra("subject", notification.Subject)
		n.hub.CaptureMessage(notification.Body)
	})
}

// Flush waits up to timeout for buffered events to be sent.
func (n *SentryNotifier) Flush(timeout time.Duration) bool {
	return n.hub.Flush(timeout)
}
