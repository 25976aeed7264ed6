package calls_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
)

func TestEncodeBatch_WireShape(t *testing.T) {
	data, err := calls.EncodeBatch([]calls.Call{
		calls.CreateDirectory{Path: "/tmp/drone"},
		calls.SendFileTo{Hostname: "host2", Source: "/a", Destination: "/b", CanFail: true},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"method": "create_directory", "args": ["/tmp/drone"], "kwargs": {}},
		{"method": "send_file_to", "args": ["host2", "/a", "/b"], "kwargs": {"can_fail": true}}
	]`, string(data))
}

func TestDecodeBatch_PreservesOrderAndTypes(t *testing.T) {
	batch := []calls.Call{
		calls.CreateDirectory{Path: "/tmp/x"},
		calls.WriteToFile{Path: "/tmp/x/f", Contents: "hello", Append: true},
		calls.ExecuteCommand{Command: "sleep 1", WorkingDirectory: "/tmp", LogFile: "/tmp/log", PidfileName: ".pid"},
		calls.KillProcess{PID: 1234, Signal: 15},
		calls.Refresh{PidfilePaths: []string{"/r/1/.pid", "/r/2/.pid"}, ProcessName: "autoserv"},
		calls.GetFileFrom{Hostname: "h", Source: "/s", Destination: "/d"},
		calls.CheckDiskSpace{Path: "/", WarnFraction: 0.9},
		calls.DeletePath{Path: "/tmp/x"},
		calls.CopyFileOrDirectory{Source: "/a", Destination: "/b"},
	}

	data, err := calls.EncodeBatch(batch)
	require.NoError(t, err)

	decoded, err := calls.DecodeBatch(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, batch, decoded)
}

func TestDecodeBatch_UnknownMethod(t *testing.T) {
	_, err := calls.DecodeBatch(bytes.NewBufferString(`[{"method": "format_disk", "args": [], "kwargs": {}}]`))

	assert.ErrorIs(t, err, calls.ErrUnknownMethod)
}

func TestDecodeBatch_InvalidArgs(t *testing.T) {
	tests := map[string]string{
		"missing arg":     `[{"method": "create_directory", "args": [], "kwargs": {}}]`,
		"wrong arg type":  `[{"method": "kill_process", "args": ["abc"], "kwargs": {}}]`,
		"fractional int":  `[{"method": "kill_process", "args": [1.5], "kwargs": {}}]`,
		"wrong kwarg":     `[{"method": "write_to_file", "args": ["/f", "x"], "kwargs": {"append": "yes"}}]`,
		"wrong float arg": `[{"method": "check_disk_space", "args": ["/"], "kwargs": {"warn_fraction": "high"}}]`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := calls.DecodeBatch(bytes.NewBufferString(payload))
			assert.ErrorIs(t, err, calls.ErrInvalidArgs)
		})
	}
}

func TestDecodeResponse_TypedResults(t *testing.T) {
	batch := []calls.Call{
		calls.CreateDirectory{Path: "/tmp"},
		calls.ExecuteCommand{Command: "true"},
		calls.CheckDiskSpace{Path: "/"},
		calls.Refresh{ProcessName: "autoserv"},
	}

	body := []byte(`{
		"results": ["exists", 4242, 0.25, {"pidfiles": {"/r/.pid": "4242\n"}, "processes": [{"pid": 4242, "name": "autoserv", "cmdline": "autoserv -r /r"}]}],
		"warnings": []
	}`)

	res, err := calls.DecodeResponse(body, batch)
	require.NoError(t, err)

	require.Len(t, res.Results, 4)
	assert.Equal(t, calls.DirectoryAlreadyExists, res.Results[0])
	assert.Equal(t, 4242, res.Results[1])
	assert.Equal(t, 0.25, res.Results[2])
	assert.Equal(t, calls.RefreshResult{
		Pidfiles:  map[string]string{"/r/.pid": "4242\n"},
		Processes: []calls.ProcessInfo{{PID: 4242, Name: "autoserv", Cmdline: "autoserv -r /r"}},
	}, res.Results[3])
}

func TestDecodeResponse_NullResultsAndWarnings(t *testing.T) {
	batch := []calls.Call{
		calls.DeletePath{Path: "/a"},
		calls.DeletePath{Path: "/b"},
		calls.CreateDirectory{Path: "/c"},
	}

	res, err := calls.DecodeResponse([]byte(`{"results":[null,null,"created"],"warnings":["disk 90% full"]}`), batch)
	require.NoError(t, err)

	assert.Equal(t, []any{nil, nil, calls.DirectoryCreated}, res.Results)
	assert.Equal(t, []string{"disk 90% full"}, res.Warnings)
}

func TestDecodeResponse_PartialResultsWithError(t *testing.T) {
	batch := []calls.Call{
		calls.DeletePath{Path: "/a"},
		calls.CopyFileOrDirectory{Source: "/missing", Destination: "/b"},
	}

	res, err := calls.DecodeResponse([]byte(`{"results":[null],"warnings":[],"error":"copy failed"}`), batch)
	require.NoError(t, err)

	assert.Len(t, res.Results, 1)
	assert.Equal(t, "copy failed", res.Error)
}

func TestDecodeResponse_RejectsNonProtocolText(t *testing.T) {
	batch := []calls.Call{calls.DeletePath{Path: "/a"}}

	tests := map[string]string{
		"banner":         "Permission denied (publickey).\n",
		"empty":          "",
		"trailing text":  `{"results":[null],"warnings":[]} oops`,
		"count mismatch": `{"results":[null,null],"warnings":[]}`,
		"unknown field":  `{"results":[null],"warnings":[],"extra":1}`,
		"no results":     `{"warnings":[]}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := calls.DecodeResponse([]byte(body), batch)
			assert.Error(t, err)
		})
	}
}

func TestEncodeResponse_EmptySlices(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, calls.EncodeResponse(&buf, calls.Response{}))

	assert.JSONEq(t, `{"results": [], "warnings": []}`, buf.String())
}

func TestDirectoryStatus_Ok(t *testing.T) {
	assert.True(t, calls.DirectoryCreated.Ok())
	assert.True(t, calls.DirectoryAlreadyExists.Ok())
	assert.False(t, calls.DirectoryFailed.Ok())
}
