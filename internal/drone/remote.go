package drone

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"github.com/labfleet/fleetwatch/internal/drone/transport"
	"github.com/labfleet/fleetwatch/internal/notify"
	"go.uber.org/zap"
)

// RemoteDrone ships batches to the drone helper on a remote host.
type RemoteDrone struct {
	*base

	transport transport.Transport

	// helperCommand is the remote command line of the drone helper
	helperCommand string

	// payloadDir holds the local payload files, empty for the system
	// default
	payloadDir string
}

var _ Drone = (*RemoteDrone)(nil)

type RemoteParams struct {
	Params

	Transport     transport.Transport
	HelperCommand string

	// TempDir is the working directory of the helper on the remote
	// host
	TempDir string

	// PayloadDir is where payload files are staged locally
	PayloadDir string

	Notifier notify.Notifier
	Log      *zap.Logger
}

// NewRemoteDrone creates the drone and makes sure its remote working
// directory exists. A failure to create the directory is logged and
// otherwise ignored.
func NewRemoteDrone(ctx context.Context, params RemoteParams) *RemoteDrone {
	log := params.Log.Named("drone_remote").With(zap.String("host", params.Hostname))

	d := &RemoteDrone{
		transport:     params.Transport,
		helperCommand: params.HelperCommand,
		payloadDir:    params.PayloadDir,
	}
	d.base = newBase(params.Params, false, params.Notifier, log)
	d.base.executor = d

	if params.TempDir != "" {
		d.ensureTempDir(ctx, params.TempDir)
	}

	return d
}

func (d *RemoteDrone) ensureTempDir(ctx context.Context, dir string) {
	res, err := d.Call(ctx, calls.CreateDirectory{Path: dir})
	if err != nil {
		d.log.Warn("failed to create remote temp dir", zap.String("path", dir), zap.Error(err))
		return
	}

	if status, _ := res.(calls.DirectoryStatus); !status.Ok() {
		d.log.Warn("failed to create remote temp dir", zap.String("path", dir), zap.Any("status", res))
	}
}

func (d *RemoteDrone) execute(ctx context.Context, batch []calls.Call) (calls.Response, error) {
	payload, err := calls.EncodeBatch(batch)
	if err != nil {
		return calls.Response{}, err
	}

	f, err := os.CreateTemp(d.payloadDir, "fleetwatch-batch-*.json")
	if err != nil {
		return calls.Response{}, fmt.Errorf("failed to create payload file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(payload); err != nil {
		return calls.Response{}, fmt.Errorf("failed to write payload file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return calls.Response{}, fmt.Errorf("failed to rewind payload file: %w", err)
	}

	out, err := d.transport.Run(ctx, d.helperCommand, f)
	if err != nil {
		if len(out) > 0 {
			d.log.Error("helper failed", zap.ByteString("output", out), zap.Error(err))
		}
		return calls.Response{}, err
	}

	res, err := calls.DecodeResponse(bytes.TrimSpace(out), batch)
	if err != nil {
		d.log.Error("invalid response from helper",
			zap.ByteString("body", out),
			zap.Error(err),
		)
		return calls.Response{}, &ProtocolError{Hostname: d.hostname, Body: out, Err: err}
	}

	return res, nil
}

func (d *RemoteDrone) Close() error {
	return d.transport.Close()
}
