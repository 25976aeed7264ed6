// Package helper is the remote end of the drone protocol. It reads one
// batch from its input, executes it on the local host and writes one
// response to its output. Nothing else may be written to the output.
package helper

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"github.com/labfleet/fleetwatch/internal/drone/schema"
	"github.com/labfleet/fleetwatch/internal/drone/utility"
	"go.uber.org/zap"
)

type Helper struct {
	utility *utility.Utility
	schema  *schema.Schema

	log *zap.Logger
}

func New(u *utility.Utility, log *zap.Logger) (*Helper, error) {
	s, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	return &Helper{
		utility: u,
		schema:  s,
		log:     log.Named("helper"),
	}, nil
}

// Serve executes the batch read from in and writes the response to
// out. A batch that cannot be parsed is answered with an error
// response. Only failures to read or write are returned.
func (h *Helper) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read batch: %w", err)
	}

	batch, err := h.decode(data)
	if err != nil {
		h.log.Error("rejecting batch", zap.Error(err), zap.ByteString("batch", data))
		return calls.EncodeResponse(out, calls.Response{Error: err.Error()})
	}

	h.log.Info("executing batch", zap.Int("calls", len(batch)))

	res := h.utility.ExecuteBatch(ctx, batch)

	h.log.Info("batch done",
		zap.Int("results", len(res.Results)),
		zap.Int("warnings", len(res.Warnings)),
		zap.String("error", res.Error),
	)

	return calls.EncodeResponse(out, res)
}

func (h *Helper) decode(data []byte) ([]calls.Call, error) {
	if err := h.schema.Validate(schema.SchemaTypeBatch, data); err != nil {
		return nil, err
	}

	return calls.DecodeBatch(bytes.NewReader(data))
}
