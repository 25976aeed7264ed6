package calls

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrInvalidArgs   = errors.New("invalid arguments")
)

// EncodeBatch serializes an ordered batch of calls.
func EncodeBatch(batch []Call) ([]byte, error) {
	wires := make([]Wire, 0, len(batch))
	for _, c := range batch {
		wires = append(wires, c.Wire())
	}

	data, err := json.Marshal(wires)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	return data, nil
}

// DecodeBatch parses a serialized batch back into typed calls.
func DecodeBatch(r io.Reader) ([]Call, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var wires []Wire
	if err := dec.Decode(&wires); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}

	batch := make([]Call, 0, len(wires))
	for i, w := range wires {
		c, err := FromWire(w)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		batch = append(batch, c)
	}

	return batch, nil
}

// FromWire converts a wire call into its typed variant.
func FromWire(w Wire) (Call, error) {
	decode, ok := registry[w.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, w.Method)
	}

	a := argReader{wire: w}
	c := decode(&a)
	if a.err != nil {
		return nil, fmt.Errorf("%s: %w", w.Method, a.err)
	}

	return c, nil
}

// EncodeResponse writes a response as a single JSON object.
func EncodeResponse(w io.Writer, res Response) error {
	if res.Results == nil {
		res.Results = []any{}
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}

	if err := json.NewEncoder(w).Encode(res); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	return nil
}

// wireResponse is the raw form of a Response, with results kept
// undecoded until they can be matched with their calls.
type wireResponse struct {
	Results  []json.RawMessage `json:"results"`
	Warnings []string          `json:"warnings"`
	Error    string            `json:"error,omitempty"`
}

// DecodeResponse parses the response to the given batch. Each result
// is decoded into the type the local execution of its call returns.
// Anything other than exactly one JSON object is rejected.
func DecodeResponse(body []byte, batch []Call) (Response, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var raw wireResponse
	if err := dec.Decode(&raw); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if dec.More() {
		return Response{}, errors.New("failed to decode response: trailing data after response")
	}

	if raw.Results == nil {
		return Response{}, errors.New("failed to decode response: missing results")
	}

	// a failed batch carries the results of the calls before the
	// failing one, a successful batch carries all of them
	if len(raw.Results) > len(batch) || (raw.Error == "" && len(raw.Results) != len(batch)) {
		return Response{}, fmt.Errorf(
			"failed to decode response: got %d results for %d calls",
			len(raw.Results),
			len(batch),
		)
	}

	res := Response{
		Results:  make([]any, 0, len(raw.Results)),
		Warnings: raw.Warnings,
		Error:    raw.Error,
	}

	for i, r := range raw.Results {
		v, err := batch[i].decodeResult(r)
		if err != nil {
			return Response{}, fmt.Errorf("failed to decode result %d (%s): %w", i, batch[i].Method(), err)
		}
		res.Results = append(res.Results, v)
	}

	return res, nil
}

// MARK: - registry

var registry = map[string]func(*argReader) Call{
	MethodCreateDirectory: func(a *argReader) Call {
		return CreateDirectory{Path: a.str(0)}
	},
	MethodCopyFileOrDirectory: func(a *argReader) Call {
		return CopyFileOrDirectory{Source: a.str(0), Destination: a.str(1)}
	},
	MethodWriteToFile: func(a *argReader) Call {
		return WriteToFile{Path: a.str(0), Contents: a.str(1), Append: a.kwBool("append")}
	},
	MethodDeletePath: func(a *argReader) Call {
		return DeletePath{Path: a.str(0)}
	},
	MethodExecuteCommand: func(a *argReader) Call {
		return ExecuteCommand{
			Command:          a.str(0),
			WorkingDirectory: a.str(1),
			LogFile:          a.str(2),
			PidfileName:      a.kwString("pidfile_name"),
		}
	},
	MethodKillProcess: func(a *argReader) Call {
		return KillProcess{PID: a.integer(0), Signal: a.kwInt("signal")}
	},
	MethodRefresh: func(a *argReader) Call {
		paths := make([]string, 0, len(a.wire.Args))
		for i := range a.wire.Args {
			paths = append(paths, a.str(i))
		}
		return Refresh{PidfilePaths: paths, ProcessName: a.kwString("process_name")}
	},
	MethodSendFileTo: func(a *argReader) Call {
		return SendFileTo{
			Hostname:    a.str(0),
			Source:      a.str(1),
			Destination: a.str(2),
			CanFail:     a.kwBool("can_fail"),
		}
	},
	MethodGetFileFrom: func(a *argReader) Call {
		return GetFileFrom{Hostname: a.str(0), Source: a.str(1), Destination: a.str(2)}
	},
	MethodCheckDiskSpace: func(a *argReader) Call {
		return CheckDiskSpace{Path: a.str(0), WarnFraction: a.kwFloat("warn_fraction")}
	},
}

// Methods returns the wire names of all known operations.
func Methods() []string {
	methods := make([]string, 0, len(registry))
	for method := range registry {
		methods = append(methods, method)
	}
	return methods
}

// argReader extracts typed positional and keyword arguments from a
// wire call, remembering the first error it runs into.
type argReader struct {
	wire Wire
	err  error
}

func (a *argReader) fail(format string, args ...any) {
	if a.err == nil {
		a.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgs}, args...)...)
	}
}

func (a *argReader) arg(i int) (any, bool) {
	if i >= len(a.wire.Args) {
		a.fail("missing argument %d", i)
		return nil, false
	}
	return a.wire.Args[i], true
}

func (a *argReader) str(i int) string {
	v, ok := a.arg(i)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		a.fail("argument %d: expected string, got %T", i, v)
	}
	return s
}

func (a *argReader) integer(i int) int {
	v, ok := a.arg(i)
	if !ok {
		return 0
	}
	n, ok := toInt(v)
	if !ok {
		a.fail("argument %d: expected integer, got %v", i, v)
	}
	return n
}

func (a *argReader) kwString(name string) string {
	v, ok := a.wire.Kwargs[name]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		a.fail("kwarg %s: expected string, got %T", name, v)
	}
	return s
}

func (a *argReader) kwBool(name string) bool {
	v, ok := a.wire.Kwargs[name]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		a.fail("kwarg %s: expected bool, got %T", name, v)
	}
	return b
}

func (a *argReader) kwInt(name string) int {
	v, ok := a.wire.Kwargs[name]
	if !ok || v == nil {
		return 0
	}
	n, ok := toInt(v)
	if !ok {
		a.fail("kwarg %s: expected integer, got %v", name, v)
	}
	return n
}

func (a *argReader) kwFloat(name string) float64 {
	v, ok := a.wire.Kwargs[name]
	if !ok || v == nil {
		return 0
	}
	f, ok := toFloat(v)
	if !ok {
		a.fail("kwarg %s: expected number, got %v", name, v)
	}
	return f
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
