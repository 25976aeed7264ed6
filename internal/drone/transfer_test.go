package drone

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"github.com/labfleet/fleetwatch/internal/drone/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func remoteNamed(t *testing.T, hostname string) *RemoteDrone {
	return NewRemoteDrone(context.Background(), RemoteParams{
		Params:    Params{Hostname: hostname, MaxProcesses: 1, Enabled: true},
		Transport: transport.NewMockTransport(t),
		Log:       zap.NewNop(),
	})
}

func TestSendFileTo_SameHostCopiesLocally(t *testing.T) {
	src := remoteNamed(t, "drone1")
	dst := remoteNamed(t, "drone1")

	src.SendFileTo(dst, "/results/1", "/archive/1", false)

	assert.Equal(t, []calls.Call{
		calls.CopyFileOrDirectory{Source: "/results/1", Destination: "/archive/1"},
	}, src.queue.calls)
	assert.Zero(t, dst.queue.Len())
}

func TestSendFileTo_RemoteToLocalIsFetchedByLocal(t *testing.T) {
	src := remoteNamed(t, "drone1")
	dst := newTestLocal(nil)

	src.SendFileTo(dst, "/results/1", "/archive/1", true)

	assert.Zero(t, src.queue.Len())
	assert.Equal(t, []calls.Call{
		calls.GetFileFrom{Hostname: "drone1", Source: "/results/1", Destination: "/archive/1"},
	}, dst.queue.calls)
}

func TestSendFileTo_PushedBySource(t *testing.T) {
	cases := map[string]struct {
		src Drone
		dst Drone
	}{
		"local to remote":  {src: newTestLocal(nil), dst: remoteNamed(t, "drone2")},
		"remote to remote": {src: remoteNamed(t, "drone1"), dst: remoteNamed(t, "drone2")},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tc.src.SendFileTo(tc.dst, "/results/1", "/archive/1", true)

			var queued []calls.Call
			switch d := tc.src.(type) {
			case *LocalDrone:
				queued = d.queue.calls
			case *RemoteDrone:
				queued = d.queue.calls
			}

			assert.Equal(t, []calls.Call{
				calls.SendFileTo{Hostname: "drone2", Source: "/results/1", Destination: "/archive/1", CanFail: true},
			}, queued)
		})
	}
}

func TestSendFileTo_LocalSameHostCopies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	d := newTestLocal(nil)
	d.SendFileTo(d, src, filepath.Join(dir, "dst"), false)

	_, err := d.ExecuteQueuedCalls(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "dst"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
