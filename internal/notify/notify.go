// Package notify relays operational warnings out of band. Notifiers
// never fail or block the code that produced the warning.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notification is one operational warning worth a human's attention.
type Notification struct {
	// Subject is a one-line summary
	Subject string

	// Body is the free-text warning
	Body string

	// Source identifies the component or host that produced it
	Source string
}

// Notifier relays notifications. Implementations must not block the
// caller for longer than it takes to hand the notification off.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// MARK: - log

// LogNotifier writes notifications to the log at warn level.
type LogNotifier struct {
	log *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, notification Notification) {
	n.log.Warn(notification.Subject,
		zap.String("source", notification.Source),
		zap.String("body", notification.Body),
	)
}

// MARK: - fan-out

// Multi forwards every notification to all of its notifiers.
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}

// MARK: - nop

type nopNotifier struct{}

// Nop returns a notifier that discards everything.
func Nop() Notifier {
	return nopNotifier{}
}

func (nopNotifier) Notify(context.Context, Notification) {}
