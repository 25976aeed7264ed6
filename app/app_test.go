package app

import (
	"testing"
	"time"

	"github.com/labfleet/fleetwatch/config"
	"github.com/labfleet/fleetwatch/internal/monitor"
	"github.com/labfleet/fleetwatch/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewNotifier_LogOnly(t *testing.T) {
	notifier := NewNotifier(config.NotifyConfig{Sentry: true}, zap.NewNop())
	defer CloseNotifier(notifier)

	// sentry is skipped while the global hub has no client
	require.Len(t, notifier, 1)
	assert.IsType(t, &notify.LogNotifier{}, notifier[0])
}

func TestNewNotifier_WithEmail(t *testing.T) {
	notifier := NewNotifier(config.NotifyConfig{
		Email: notify.EmailConfig{
			Host: "smtp.lab",
			From: "fleetwatch@lab",
			To:   []string{"ops@lab"},
		},
	}, zap.NewNop())

	require.Len(t, notifier, 2)
	assert.IsType(t, &notify.EmailNotifier{}, notifier[1])

	done := make(chan struct{})
	go func() {
		CloseNotifier(notifier)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
}

func TestStopTimeout(t *testing.T) {
	assert.Equal(t, 2*monitor.DefaultKillGrace+15*time.Second, stopTimeout(config.Config{}))

	cfg := config.Config{Monitor: monitor.Config{KillGrace: time.Minute}}
	assert.Equal(t, 2*time.Minute+15*time.Second, stopTimeout(cfg))
}
