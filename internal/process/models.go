package process

import (
	"errors"
	"strconv"
)

var (
	ErrKillTimeout   = errors.New("kill timeout")
	ErrInvalidConfig = errors.New("invalid process config")
)

type StartConfig struct {
	// Cmd is the path or name of the binary to execute
	Cmd string

	// Cwd is the working directory in which
	// the binary should be executed
	Cwd string

	// Args is the list of arguments to pass to the command
	Args []string

	// Env holds variables set in addition to the
	// environment of the current process
	Env map[string]string

	// LogFile receives stdout and stderr of the process. The file is
	// appended to and created if missing.
	LogFile string
}

type ExitEvent struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the signal that caused the process to exit
	Signal *int
}

func (e ExitEvent) String() string {
	switch {
	case e.Signal != nil:
		return "signal " + strconv.Itoa(*e.Signal)
	case e.Code != nil:
		return "exit code " + strconv.Itoa(*e.Code)
	default:
		return "unknown"
	}
}
