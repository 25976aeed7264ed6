// Package drone dispatches operations to the hosts of the test fleet.
//
// A Drone executes calls either one at a time or queued and flushed
// as a single batch. The local drone executes batches in-process, a
// remote drone ships them to the drone helper over ssh. Both return
// the same result types for the same calls.
package drone

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"github.com/labfleet/fleetwatch/internal/notify"
	"go.uber.org/zap"
)

type Drone interface {
	Hostname() string
	Enabled() bool
	SetEnabled(enabled bool)

	// MaxProcesses is the number of processes the host may run at
	// once. Zero marks a host that cannot take any work.
	MaxProcesses() int
	ActiveProcesses() int
	SetActiveProcesses(n int)

	// UsedCapacity returns the fraction of the host's process slots in
	// use, or 1 when the host has no slots.
	UsedCapacity() float64

	// Call executes c immediately and returns its result. Warnings are
	// forwarded to the notifier and never returned as errors.
	Call(ctx context.Context, c calls.Call) (any, error)

	// QueueCall appends c to the queue without executing it.
	QueueCall(c calls.Call)

	// ExecuteQueuedCalls flushes the queue in one round trip and
	// returns the results in queue order. The queue is empty
	// afterwards, whether or not the flush succeeded.
	ExecuteQueuedCalls(ctx context.Context) ([]any, error)

	// ClearCallQueue discards the queued calls.
	ClearCallQueue()

	// SendFileTo queues the transfer of src on this host to dst on the
	// destination host.
	SendFileTo(dst Drone, src, dstPath string, canFail bool)

	Close() error
}

// Params describes one host of the fleet.
type Params struct {
	Hostname     string `conf:"hostname"`
	MaxProcesses int    `conf:"max_processes"`
	Enabled      bool   `conf:"enabled"`
}

// executor runs a batch and returns the raw response.
type executor interface {
	execute(ctx context.Context, batch []calls.Call) (calls.Response, error)
}

// base holds the state and queueing logic shared by all drones.
type base struct {
	hostname     string
	maxProcesses int
	enabled      atomic.Bool
	active       atomic.Int64

	// local is true for the drone of the host fleetwatch runs on
	local bool

	// mu guards the queue and serializes round trips
	mu    sync.Mutex
	queue CallQueue

	executor executor
	notifier notify.Notifier

	log *zap.Logger
}

func newBase(params Params, local bool, notifier notify.Notifier, log *zap.Logger) *base {
	if notifier == nil {
		notifier = notify.Nop()
	}

	b := &base{
		hostname:     params.Hostname,
		maxProcesses: params.MaxProcesses,
		local:        local,
		notifier:     notifier,
		log:          log,
	}
	b.enabled.Store(params.Enabled)

	return b
}

func (d *base) Hostname() string {
	return d.hostname
}

func (d *base) Enabled() bool {
	return d.enabled.Load()
}

func (d *base) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
}

func (d *base) MaxProcesses() int {
	return d.maxProcesses
}

func (d *base) ActiveProcesses() int {
	return int(d.active.Load())
}

func (d *base) SetActiveProcesses(n int) {
	d.active.Store(int64(n))
}

func (d *base) UsedCapacity() float64 {
	if d.maxProcesses <= 0 {
		return 1.0
	}
	return float64(d.ActiveProcesses()) / float64(d.maxProcesses)
}

func (d *base) Call(ctx context.Context, c calls.Call) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	results, err := d.run(ctx, []calls.Call{c})
	if err != nil {
		return nil, err
	}

	return results[0], nil
}

func (d *base) QueueCall(c calls.Call) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.queue.Push(c)
}

func (d *base) ExecuteQueuedCalls(ctx context.Context) ([]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.run(ctx, d.queue.Drain())
}

func (d *base) ClearCallQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := d.queue.Len(); n > 0 {
		d.log.Debug("discarding queued calls", zap.Int("count", n))
	}
	d.queue.Drain()
}

// run executes batch and forwards its warnings. The caller holds mu.
func (d *base) run(ctx context.Context, batch []calls.Call) ([]any, error) {
	if len(batch) == 0 {
		return []any{}, nil
	}

	d.log.Debug("executing batch", zap.Int("calls", len(batch)))

	res, err := d.executor.execute(ctx, batch)
	if err != nil {
		return nil, err
	}

	d.forwardWarnings(ctx, res.Warnings)

	if res.Error != "" {
		callErr := &CallError{
			Hostname: d.hostname,
			Index:    len(res.Results),
			Message:  res.Error,
		}
		if callErr.Index < len(batch) {
			callErr.Method = batch[callErr.Index].Method()
		}
		return res.Results, callErr
	}

	return res.Results, nil
}

func (d *base) forwardWarnings(ctx context.Context, warnings []string) {
	for _, warning := range warnings {
		d.log.Warn("drone warning", zap.String("warning", warning))
		d.notifier.Notify(ctx, notify.Notification{
			Subject: "warning from drone " + d.hostname,
			Body:    warning,
			Source:  d.hostname,
		})
	}
}
