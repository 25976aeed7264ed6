package drone

import (
	"errors"
	"fmt"
)

var (
	ErrNoEligibleDrone = errors.New("no eligible drone")
	ErrUnknownDrone    = errors.New("unknown drone")
)

// ProtocolError reports a helper response that could not be decoded.
// Body holds the raw response exactly as it was received.
type ProtocolError struct {
	Hostname string
	Body     []byte
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from %s: %v", e.Hostname, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// CallError reports a call that failed while its batch was executed.
// The calls before it completed; their results are returned alongside
// the error.
type CallError struct {
	Hostname string
	Index    int
	Method   string
	Message  string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %d (%s) failed on %s: %s", e.Index, e.Method, e.Hostname, e.Message)
}
