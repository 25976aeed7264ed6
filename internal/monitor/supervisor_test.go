package monitor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labfleet/fleetwatch/internal/notify"
	"github.com/labfleet/fleetwatch/internal/pidfile"
	"github.com/labfleet/fleetwatch/internal/process"
	"github.com/labfleet/fleetwatch/util"
	"github.com/labfleet/fleetwatch/util/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// unusedPid is above the largest pid linux hands out
const unusedPid = 1<<22 + 1

type fakeDaemon struct {
	exited  atomic.Bool
	stopped atomic.Bool
}

func (d *fakeDaemon) Pid() int {
	return unusedPid
}

func (d *fakeDaemon) Exited() (process.ExitEvent, bool) {
	if !d.exited.Load() {
		return process.ExitEvent{}, false
	}
	code := 1
	return process.ExitEvent{Code: &code}, true
}

func (d *fakeDaemon) Stop(time.Duration) error {
	d.stopped.Store(true)
	d.exited.Store(true)
	return nil
}

type fakeLauncher struct {
	mu      sync.Mutex
	configs []process.StartConfig
	daemons []*fakeDaemon
}

func (l *fakeLauncher) launch(config process.StartConfig) (Daemon, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := &fakeDaemon{}
	l.configs = append(l.configs, config)
	l.daemons = append(l.daemons, d)
	return d, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.configs)
}

func (l *fakeLauncher) get(i int) (process.StartConfig, *fakeDaemon) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.configs[i], l.daemons[i]
}

type fakeCapturer struct {
	calls atomic.Int32
}

func (c *fakeCapturer) Capture(context.Context) []byte {
	c.calls.Add(1)
	return []byte("uptime output\n")
}

type fixture struct {
	sv       *Supervisor
	clock    *clock.FakeClock
	launcher *fakeLauncher
	capturer *fakeCapturer
	logDir   string
}

func newFixture(t *testing.T, notifier notify.Notifier) *fixture {
	f := &fixture{
		clock:    clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		launcher: &fakeLauncher{},
		capturer: &fakeCapturer{},
		logDir:   filepath.Join(t.TempDir(), "logs"),
	}

	f.sv = New(Params{
		Config: Config{
			DaemonCommand: "/opt/scheduler/scheduler",
			DaemonArgs:    []string{"--verbose"},
		},
		LogDir:      f.logDir,
		ResultsDir:  "/results",
		Clock:       f.clock,
		Launch:      f.launcher.launch,
		Diagnostics: f.capturer,
		Notifier:    notifier,
		Log:         zap.NewNop(),
	})

	return f
}

func appendLog(t *testing.T, path, line string) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
}

func TestSupervisor_StartLaunchesDaemon(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, StateNotStarted, f.sv.State())
	require.NoError(t, f.sv.Start(context.Background()))
	assert.Equal(t, StateRunning, f.sv.State())

	config, _ := f.launcher.get(0)
	logPath := filepath.Join(f.logDir, "scheduler.log.2026-03-01-12.00.00")

	assert.Equal(t, "/opt/scheduler/scheduler", config.Cmd)
	assert.Equal(t, []string{"--verbose", "/results"}, config.Args)
	assert.Equal(t, logPath, config.LogFile)
	assert.Equal(t, logPath, config.Env[LogEnv])
	assert.Equal(t, logPath, f.sv.LogPath())
	assert.DirExists(t, f.logDir)
}

func TestSupervisor_StallCapturesDiagnosticsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.sv.Start(ctx))
	appendLog(t, f.sv.LogPath(), "tick")
	assert.True(t, f.sv.IsRunning(ctx))

	f.clock.Advance(time.Hour)
	assert.True(t, f.sv.IsRunning(ctx))

	f.clock.Advance(time.Hour + time.Second)
	assert.False(t, f.sv.IsRunning(ctx))
	assert.Equal(t, StateStalled, f.sv.State())

	data, err := os.ReadFile(f.sv.LogPath() + ".stall_info")
	require.NoError(t, err)
	assert.Equal(t, "uptime output\n", string(data))

	assert.False(t, f.sv.IsRunning(ctx))
	assert.Equal(t, int32(1), f.capturer.calls.Load())
}

func TestSupervisor_DeadDaemonCapturesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.sv.Start(ctx))
	_, daemon := f.launcher.get(0)
	daemon.exited.Store(true)

	assert.False(t, f.sv.IsRunning(ctx))
	assert.Equal(t, StateDead, f.sv.State())

	assert.NoFileExists(t, f.sv.LogPath()+".stall_info")
	assert.Zero(t, f.capturer.calls.Load())
}

func TestSupervisor_GrowingLogIsNotStalled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.sv.Start(ctx))

	for i := 0; i < 6; i++ {
		f.clock.Advance(time.Hour)
		appendLog(t, f.sv.LogPath(), "progress")
		assert.True(t, f.sv.IsRunning(ctx), "check %d", i)
	}

	assert.Equal(t, StateRunning, f.sv.State())
	assert.Zero(t, f.capturer.calls.Load())
}

func TestSupervisor_MissingLogCountsAsUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.sv.Start(ctx))

	f.clock.Advance(DefaultStallTimeout - time.Second)
	assert.True(t, f.sv.IsRunning(ctx))

	f.clock.Advance(time.Second)
	assert.False(t, f.sv.IsRunning(ctx))
	assert.Equal(t, StateStalled, f.sv.State())
}

func TestSupervisor_StallsExactlyAtTimeout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.sv.Start(ctx))
	appendLog(t, f.sv.LogPath(), "tick")
	require.True(t, f.sv.IsRunning(ctx))

	f.clock.Advance(DefaultStallTimeout)
	assert.False(t, f.sv.IsRunning(ctx))
	assert.Equal(t, StateStalled, f.sv.State())
	assert.Equal(t, int32(1), f.capturer.calls.Load())
}

func TestSupervisor_RestartUsesRecoveryAndFreshLog(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.sv.Start(ctx))
	_, first := f.launcher.get(0)

	f.clock.Advance(DefaultStallTimeout + time.Minute)
	require.False(t, f.sv.IsRunning(ctx))

	f.sv.recover = true
	require.NoError(t, f.sv.Start(ctx))

	assert.True(t, first.stopped.Load())

	config, _ := f.launcher.get(1)
	assert.Equal(t, []string{"--verbose", RecoverFlag, "/results"}, config.Args)
	assert.Equal(t, filepath.Join(f.logDir, "scheduler.log.2026-03-01-14.01.00"), config.LogFile)

	// the new incarnation starts with a fresh stall window
	f.clock.Advance(time.Hour)
	assert.True(t, f.sv.IsRunning(ctx))
}

func TestSupervisor_RunRestartsDeadDaemon(t *testing.T) {
	notifier := notify.NewMockNotifier(t)
	notifier.EXPECT().Notify(mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Subject == "scheduler dead"
	})).Return().Once()

	f := newFixture(t, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sv.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return f.launcher.count() == 1 && f.clock.Pending() == 1
	}, 2*time.Second, 5*time.Millisecond)

	config, first := f.launcher.get(0)
	assert.NotContains(t, config.Args, RecoverFlag)

	first.exited.Store(true)
	f.clock.Advance(DefaultPauseLength)

	require.Eventually(t, func() bool {
		return f.launcher.count() == 2 && f.clock.Pending() == 1
	}, 2*time.Second, 5*time.Millisecond)

	config, second := f.launcher.get(1)
	assert.Contains(t, config.Args, RecoverFlag)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	assert.True(t, second.stopped.Load())
}

func TestSupervisor_StartKillsPreviousDaemon(t *testing.T) {
	previous := exec.Command("sleep", "10")
	require.NoError(t, previous.Start())

	exited := make(chan struct{})
	go func() {
		previous.Wait()
		close(exited)
	}()
	t.Cleanup(func() {
		previous.Process.Kill()
		<-exited
	})

	daemonPidfile := filepath.Join(t.TempDir(), "scheduler.pid")
	require.NoError(t, pidfile.Write(daemonPidfile, previous.Process.Pid))

	launcher := &fakeLauncher{}
	sv := New(Params{
		Config: Config{
			DaemonCommand: "scheduler",
			DaemonPidfile: daemonPidfile,
			KillGrace:     5 * time.Second,
		},
		LogDir: t.TempDir(),
		Launch: launcher.launch,
		Log:    zap.NewNop(),
	})

	require.NoError(t, sv.Start(context.Background()))

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("previous daemon still running")
	}
	assert.False(t, util.IsProcessAlive(previous.Process.Pid))

	pid, err := pidfile.Read(daemonPidfile)
	require.NoError(t, err)
	assert.Equal(t, unusedPid, pid)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not_started", StateNotStarted.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "dead", StateDead.String())
	assert.Equal(t, "stalled", StateStalled.String())
}
