// Package calls defines the closed set of operations a drone can
// execute and their wire representation.
//
// Every operation is a value type implementing Call. On the wire a
// call is encoded as
//
//	{"method": "...", "args": [...], "kwargs": {...}}
//
// and decoded back through a registry keyed by method name, so a
// batch can be statically checked instead of dispatched by reflection.
package calls

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Call is one deferred drone operation. The interface is sealed: only
// the variants declared in this package implement it.
type Call interface {
	// Method returns the wire name of the operation.
	Method() string

	// Wire returns the wire representation of the call.
	Wire() Wire

	// decodeResult converts the wire result of the call into the
	// value the local execution of the same call would return.
	decodeResult(raw json.RawMessage) (any, error)
}

// Wire is the serialized form of a Call.
type Wire struct {
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

const (
	MethodCreateDirectory     = "create_directory"
	MethodCopyFileOrDirectory = "copy_file_or_directory"
	MethodWriteToFile         = "write_to_file"
	MethodDeletePath          = "delete_path"
	MethodExecuteCommand      = "execute_command"
	MethodKillProcess         = "kill_process"
	MethodRefresh             = "refresh"
	MethodSendFileTo          = "send_file_to"
	MethodGetFileFrom         = "get_file_from"
	MethodCheckDiskSpace      = "check_disk_space"
)

// MARK: - variants

// CreateDirectory idempotently creates a directory and its parents.
// The result is a DirectoryStatus.
type CreateDirectory struct {
	Path string
}

func (CreateDirectory) Method() string { return MethodCreateDirectory }

func (c CreateDirectory) Wire() Wire {
	return newWire(c.Method(), []any{c.Path}, nil)
}

func (CreateDirectory) decodeResult(raw json.RawMessage) (any, error) {
	var status DirectoryStatus
	if err := unmarshalResult(raw, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// CopyFileOrDirectory copies a file or a directory tree on the same host.
type CopyFileOrDirectory struct {
	Source      string
	Destination string
}

func (CopyFileOrDirectory) Method() string { return MethodCopyFileOrDirectory }

func (c CopyFileOrDirectory) Wire() Wire {
	return newWire(c.Method(), []any{c.Source, c.Destination}, nil)
}

func (CopyFileOrDirectory) decodeResult(raw json.RawMessage) (any, error) {
	return decodeNull(raw)
}

// WriteToFile writes (or appends) contents to a file.
type WriteToFile struct {
	Path     string
	Contents string
	Append   bool
}

func (WriteToFile) Method() string { return MethodWriteToFile }

func (c WriteToFile) Wire() Wire {
	return newWire(c.Method(), []any{c.Path, c.Contents}, map[string]any{"append": c.Append})
}

func (WriteToFile) decodeResult(raw json.RawMessage) (any, error) {
	return decodeNull(raw)
}

// DeletePath removes a file or directory tree. Missing paths are not
// an error.
type DeletePath struct {
	Path string
}

func (DeletePath) Method() string { return MethodDeletePath }

func (c DeletePath) Wire() Wire {
	return newWire(c.Method(), []any{c.Path}, nil)
}

func (DeletePath) decodeResult(raw json.RawMessage) (any, error) {
	return decodeNull(raw)
}

// ExecuteCommand starts a detached command on the drone, with its
// output redirected to LogFile. The result is the pid of the command.
// When PidfileName is set, the pid is also written to that file inside
// WorkingDirectory.
type ExecuteCommand struct {
	Command          string
	WorkingDirectory string
	LogFile          string
	PidfileName      string
}

func (ExecuteCommand) Method() string { return MethodExecuteCommand }

func (c ExecuteCommand) Wire() Wire {
	return newWire(
		c.Method(),
		[]any{c.Command, c.WorkingDirectory, c.LogFile},
		map[string]any{"pidfile_name": c.PidfileName},
	)
}

func (ExecuteCommand) decodeResult(raw json.RawMessage) (any, error) {
	var pid int
	if err := unmarshalResult(raw, &pid); err != nil {
		return nil, err
	}
	return pid, nil
}

// KillProcess sends a signal to a process. A zero Signal means SIGKILL.
type KillProcess struct {
	PID    int
	Signal int
}

func (KillProcess) Method() string { return MethodKillProcess }

func (c KillProcess) Wire() Wire {
	return newWire(c.Method(), []any{c.PID}, map[string]any{"signal": c.Signal})
}

func (KillProcess) decodeResult(raw json.RawMessage) (any, error) {
	return decodeNull(raw)
}

// Refresh reads the given pidfiles and lists the running processes
// whose executable name equals ProcessName. The result is a
// RefreshResult.
type Refresh struct {
	PidfilePaths []string
	ProcessName  string
}

func (Refresh) Method() string { return MethodRefresh }

func (c Refresh) Wire() Wire {
	args := make([]any, 0, len(c.PidfilePaths))
	for _, path := range c.PidfilePaths {
		args = append(args, path)
	}
	return newWire(c.Method(), args, map[string]any{"process_name": c.ProcessName})
}

func (Refresh) decodeResult(raw json.RawMessage) (any, error) {
	var result RefreshResult
	if err := unmarshalResult(raw, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SendFileTo pushes a file or directory from this drone to another
// host. With CanFail set, a failed transfer yields a warning instead
// of an error.
type SendFileTo struct {
	Hostname    string
	Source      string
	Destination string
	CanFail     bool
}

func (SendFileTo) Method() string { return MethodSendFileTo }

func (c SendFileTo) Wire() Wire {
	return newWire(
		c.Method(),
		[]any{c.Hostname, c.Source, c.Destination},
		map[string]any{"can_fail": c.CanFail},
	)
}

func (SendFileTo) decodeResult(raw json.RawMessage) (any, error) {
	return decodeNull(raw)
}

// GetFileFrom fetches a file or directory from another host onto
// this drone.
type GetFileFrom struct {
	Hostname    string
	Source      string
	Destination string
}

func (GetFileFrom) Method() string { return MethodGetFileFrom }

func (c GetFileFrom) Wire() Wire {
	return newWire(c.Method(), []any{c.Hostname, c.Source, c.Destination}, nil)
}

func (GetFileFrom) decodeResult(raw json.RawMessage) (any, error) {
	return decodeNull(raw)
}

// CheckDiskSpace reports the used fraction of the filesystem holding
// Path. Usage at or above WarnFraction produces a warning. The result
// is a float64.
type CheckDiskSpace struct {
	Path         string
	WarnFraction float64
}

func (CheckDiskSpace) Method() string { return MethodCheckDiskSpace }

func (c CheckDiskSpace) Wire() Wire {
	return newWire(c.Method(), []any{c.Path}, map[string]any{"warn_fraction": c.WarnFraction})
}

func (CheckDiskSpace) decodeResult(raw json.RawMessage) (any, error) {
	var used float64
	if err := unmarshalResult(raw, &used); err != nil {
		return nil, err
	}
	return used, nil
}

// MARK: - helpers

func newWire(method string, args []any, kwargs map[string]any) Wire {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return Wire{Method: method, Args: args, Kwargs: kwargs}
}

func unmarshalResult(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}
	return nil
}

func decodeNull(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid result: %w", err)
	}
	return v, nil
}

// String renders a call for logs.
func String(c Call) string {
	w := c.Wire()
	return w.Method + "(" + strconv.Itoa(len(w.Args)) + " args)"
}
