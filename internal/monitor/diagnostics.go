package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TimedOut replaces the output of a diagnostic that did not finish in
// time.
const TimedOut = "Timed out"

// Command is one diagnostic shell command.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// DefaultCommands are captured when the daemon stalls.
var DefaultCommands = []Command{
	{Name: "uptime"},
	{Name: "ps", Args: []string{"auxwww"}},
	{Name: "iostat", Args: []string{"-k", "-x", "2", "4"}},
}

// Dumper produces one named section of the snapshot.
type Dumper interface {
	Name() string
	Dump(ctx context.Context) (string, error)
}

// Diagnostics runs a fixed set of commands, each bounded by a timeout,
// and renders their output between banners. A command that fails
// contributes a placeholder instead of aborting the capture.
type Diagnostics struct {
	commands []Command
	dumpers  []Dumper
	timeout  time.Duration

	// run executes a command and returns its combined output
	run func(ctx context.Context, name string, args ...string) ([]byte, error)

	log *zap.Logger
}

var _ Capturer = (*Diagnostics)(nil)

type DiagnosticsParams struct {
	Commands []Command
	Dumpers  []Dumper
	Timeout  time.Duration
	Log      *zap.Logger
}

func NewDiagnostics(params DiagnosticsParams) *Diagnostics {
	if params.Commands == nil {
		params.Commands = DefaultCommands
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultDiagnosticTimeout
	}

	return &Diagnostics{
		commands: params.Commands,
		dumpers:  params.Dumpers,
		timeout:  params.Timeout,
		run:      runCommand,
		log:      params.Log.Named("diagnostics"),
	}
}

func (d *Diagnostics) Capture(ctx context.Context) []byte {
	var buf bytes.Buffer

	for _, cmd := range d.commands {
		writeSection(&buf, cmd.String(), d.runBounded(ctx, cmd))
	}

	for _, dumper := range d.dumpers {
		writeSection(&buf, dumper.Name(), d.dumpBounded(ctx, dumper))
	}

	return buf.Bytes()
}

func (d *Diagnostics) runBounded(ctx context.Context, cmd Command) string {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.run(ctx, cmd.Name, cmd.Args...)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.log.Warn("diagnostic command timed out", zap.Stringer("command", cmd))
		return TimedOut
	}
	if err != nil {
		d.log.Warn("diagnostic command failed", zap.Stringer("command", cmd), zap.Error(err))
		return fmt.Sprintf("%sFailed: %v", out, err)
	}

	return string(out)
}

func (d *Diagnostics) dumpBounded(ctx context.Context, dumper Dumper) string {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := dumper.Dump(ctx)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.log.Warn("diagnostic dump timed out", zap.String("dump", dumper.Name()))
		return TimedOut
	}
	if err != nil {
		d.log.Warn("diagnostic dump failed", zap.String("dump", dumper.Name()), zap.Error(err))
		return fmt.Sprintf("Failed: %v", err)
	}

	return out
}

func writeSection(buf *bytes.Buffer, title, body string) {
	banner := strings.Repeat("*", 70)

	fmt.Fprintf(buf, "%s\n* %s\n%s\n", banner, title, banner)
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// iostat and friends may leave children holding the output pipe
	cmd.WaitDelay = time.Second
	return cmd.CombinedOutput()
}
