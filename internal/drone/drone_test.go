package drone

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"github.com/labfleet/fleetwatch/internal/drone/helper"
	"github.com/labfleet/fleetwatch/internal/drone/transport"
	"github.com/labfleet/fleetwatch/internal/drone/utility"
	"github.com/labfleet/fleetwatch/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// helperTransport runs the drone helper in-process instead of over ssh.
type helperTransport struct {
	helper   *helper.Helper
	payloads [][]byte
	closed   bool
}

func newHelperTransport(t *testing.T) *helperTransport {
	h, err := helper.New(utility.New(utility.Config{}, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	return &helperTransport{helper: h}
}

func (h *helperTransport) Run(ctx context.Context, _ string, stdin io.Reader) ([]byte, error) {
	payload, err := io.ReadAll(stdin)
	if err != nil {
		return nil, err
	}
	h.payloads = append(h.payloads, payload)

	var out bytes.Buffer
	if err := h.helper.Serve(ctx, bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (h *helperTransport) Close() error {
	h.closed = true
	return nil
}

func newTestRemote(t *testing.T, tr transport.Transport, notifier notify.Notifier, log *zap.Logger) *RemoteDrone {
	if log == nil {
		log = zap.NewNop()
	}
	return NewRemoteDrone(context.Background(), RemoteParams{
		Params:        Params{Hostname: "drone1", MaxProcesses: 4, Enabled: true},
		Transport:     tr,
		HelperCommand: "fleetwatch drone-helper",
		PayloadDir:    t.TempDir(),
		Notifier:      notifier,
		Log:           log,
	})
}

func newTestLocal(notifier notify.Notifier) *LocalDrone {
	return NewLocalDrone(
		Params{Hostname: LocalHostname, MaxProcesses: 2, Enabled: true},
		utility.New(utility.Config{}, zap.NewNop()),
		notifier,
		zap.NewNop(),
	)
}

func writes(path string) []calls.Call {
	return []calls.Call{
		calls.WriteToFile{Path: path, Contents: "1"},
		calls.WriteToFile{Path: path, Contents: "2", Append: true},
		calls.WriteToFile{Path: path, Contents: "3", Append: true},
	}
}

func TestDrone_BatchingMatchesImmediateCalls(t *testing.T) {
	drones := map[string]Drone{
		"local":  newTestLocal(nil),
		"remote": newTestRemote(t, newHelperTransport(t), nil, nil),
	}

	for name, d := range drones {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			immediate := filepath.Join(dir, "immediate")
			batched := filepath.Join(dir, "batched")

			var immediateResults []any
			for _, c := range writes(immediate) {
				res, err := d.Call(context.Background(), c)
				require.NoError(t, err)
				immediateResults = append(immediateResults, res)
			}

			for _, c := range writes(batched) {
				d.QueueCall(c)
			}
			batchedResults, err := d.ExecuteQueuedCalls(context.Background())
			require.NoError(t, err)

			assert.Equal(t, immediateResults, batchedResults)

			a, err := os.ReadFile(immediate)
			require.NoError(t, err)
			b, err := os.ReadFile(batched)
			require.NoError(t, err)
			assert.Equal(t, "123", string(a))
			assert.Equal(t, a, b)
		})
	}
}

func TestDrone_LocalAndRemoteReturnSameTypes(t *testing.T) {
	dir := t.TempDir()

	local := newTestLocal(nil)
	remote := newTestRemote(t, newHelperTransport(t), nil, nil)

	localRes, err := local.Call(context.Background(), calls.CreateDirectory{Path: filepath.Join(dir, "local")})
	require.NoError(t, err)
	remoteRes, err := remote.Call(context.Background(), calls.CreateDirectory{Path: filepath.Join(dir, "remote")})
	require.NoError(t, err)

	assert.Equal(t, calls.DirectoryCreated, localRes)
	assert.Equal(t, calls.DirectoryCreated, remoteRes)
}

func TestRemoteDrone_OneRoundTripPerFlush(t *testing.T) {
	tr := newHelperTransport(t)
	d := newTestRemote(t, tr, nil, nil)

	for _, c := range writes(filepath.Join(t.TempDir(), "f")) {
		d.QueueCall(c)
	}

	_, err := d.ExecuteQueuedCalls(context.Background())
	require.NoError(t, err)

	require.Len(t, tr.payloads, 1)
	decoded, err := calls.DecodeBatch(bytes.NewReader(tr.payloads[0]))
	require.NoError(t, err)
	assert.Len(t, decoded, 3)
}

func TestRemoteDrone_WarningsAreNotifiedNotRaised(t *testing.T) {
	tr := transport.NewMockTransport(t)
	tr.EXPECT().Run(mock.Anything, "fleetwatch drone-helper", mock.Anything).
		Return([]byte(`{"results":[null,null,"ok"],"warnings":["disk 90% full"]}`), nil).
		Once()

	notifier := notify.NewMockNotifier(t)
	notifier.EXPECT().Notify(mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Body == "disk 90% full" && n.Source == "drone1"
	})).Return().Once()

	d := newTestRemote(t, tr, notifier, nil)

	d.QueueCall(calls.DeletePath{Path: "/tmp/a"})
	d.QueueCall(calls.DeletePath{Path: "/tmp/b"})
	d.QueueCall(calls.KillProcess{PID: 42})

	results, err := d.ExecuteQueuedCalls(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil, "ok"}, results)
}

func TestRemoteDrone_PayloadFileRemoved(t *testing.T) {
	var payloadPath string

	tr := transport.NewMockTransport(t)
	tr.EXPECT().Run(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, _ string, stdin io.Reader) ([]byte, error) {
			f, ok := stdin.(*os.File)
			require.True(t, ok)
			payloadPath = f.Name()
			assert.FileExists(t, payloadPath)
			return nil, assert.AnError
		}).
		Once()

	d := newTestRemote(t, tr, nil, nil)

	_, err := d.Call(context.Background(), calls.DeletePath{Path: "/tmp/x"})
	require.Error(t, err)

	assert.NotEmpty(t, payloadPath)
	assert.NoFileExists(t, payloadPath)
}

func TestRemoteDrone_TransportErrorPropagatesAndClearsQueue(t *testing.T) {
	tr := transport.NewMockTransport(t)
	tr.EXPECT().Run(mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	d := newTestRemote(t, tr, nil, nil)
	d.QueueCall(calls.DeletePath{Path: "/tmp/x"})

	_, err := d.ExecuteQueuedCalls(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, d.queue.Len())

	// nothing left to flush, the transport is not used again
	results, err := d.ExecuteQueuedCalls(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRemoteDrone_ProtocolErrorLogsRawBody(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	body := "Permission denied (publickey).\r\n"

	tr := transport.NewMockTransport(t)
	tr.EXPECT().Run(mock.Anything, mock.Anything, mock.Anything).Return([]byte(body), nil).Once()

	d := newTestRemote(t, tr, nil, zap.New(core))
	d.QueueCall(calls.DeletePath{Path: "/tmp/x"})

	_, err := d.ExecuteQueuedCalls(context.Background())

	var protocolErr *ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, []byte(body), protocolErr.Body)
	assert.Equal(t, "drone1", protocolErr.Hostname)
	assert.Zero(t, d.queue.Len())

	entries := logs.FilterMessage("invalid response from helper").All()
	require.Len(t, entries, 1)
	assert.Equal(t, body, entries[0].ContextMap()["body"])
}

func TestRemoteDrone_FailedCallReturnsPartialResults(t *testing.T) {
	tr := transport.NewMockTransport(t)
	tr.EXPECT().Run(mock.Anything, mock.Anything, mock.Anything).
		Return([]byte(`{"results":["exists"],"warnings":[],"error":"no space left on device"}`), nil).
		Once()

	d := newTestRemote(t, tr, nil, nil)
	d.QueueCall(calls.CreateDirectory{Path: "/results"})
	d.QueueCall(calls.WriteToFile{Path: "/results/x", Contents: "x"})

	results, err := d.ExecuteQueuedCalls(context.Background())

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, 1, callErr.Index)
	assert.Equal(t, calls.MethodWriteToFile, callErr.Method)
	assert.Equal(t, []any{calls.DirectoryAlreadyExists}, results)
}

func TestRemoteDrone_EnsuresTempDirOnConstruction(t *testing.T) {
	tr := transport.NewMockTransport(t)
	tr.EXPECT().Run(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, _ string, stdin io.Reader) ([]byte, error) {
			batch, err := calls.DecodeBatch(stdin)
			require.NoError(t, err)
			assert.Equal(t, []calls.Call{calls.CreateDirectory{Path: "/var/tmp/fleetwatch"}}, batch)
			return []byte(`{"results":["failed"],"warnings":[]}`), nil
		}).
		Once()

	d := NewRemoteDrone(context.Background(), RemoteParams{
		Params:    Params{Hostname: "drone1", MaxProcesses: 1, Enabled: true},
		Transport: tr,
		TempDir:   "/var/tmp/fleetwatch",
		Log:       zap.NewNop(),
	})

	assert.Equal(t, "drone1", d.Hostname())
}

func TestRemoteDrone_ConstructionSwallowsTransportFailure(t *testing.T) {
	tr := transport.NewMockTransport(t)
	tr.EXPECT().Run(mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	d := NewRemoteDrone(context.Background(), RemoteParams{
		Params:    Params{Hostname: "drone1", MaxProcesses: 1, Enabled: true},
		Transport: tr,
		TempDir:   "/var/tmp/fleetwatch",
		Log:       zap.NewNop(),
	})

	assert.NotNil(t, d)
}

func TestDrone_ClearCallQueue(t *testing.T) {
	tr := transport.NewMockTransport(t)
	d := newTestRemote(t, tr, nil, nil)

	d.QueueCall(calls.DeletePath{Path: "/tmp/x"})
	d.ClearCallQueue()

	results, err := d.ExecuteQueuedCalls(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	tr.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestDrone_Close(t *testing.T) {
	tr := transport.NewMockTransport(t)
	tr.EXPECT().Close().Return(nil).Once()

	assert.NoError(t, newTestRemote(t, tr, nil, nil).Close())
	assert.NoError(t, newTestLocal(nil).Close())
}
