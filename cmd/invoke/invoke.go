// Package invoke runs a single invocation event through the dispatcher, the
// way the function's event source would.
package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"tagexceptions/src/dispatcher"
)

type handler interface {
	Handle(ctx context.Context, raw []byte) dispatcher.Response
}

type Invoker struct {
	Log *logrus.Entry
	In  io.Reader
	Out io.Writer
}

// Run reads one event from In, dispatches it and writes the JSON response to
// Out. A response with a 5xx status is also returned as an error.
func (i *Invoker) Run(ctx context.Context, h handler) error {
	raw, err := io.ReadAll(i.In)
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}

	resp := h.Handle(ctx, raw)

	enc := json.NewEncoder(i.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	i.Log.WithField("statusCode", resp.StatusCode).Info("Invocation finished")
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("invocation failed: %s", resp.Body.Error)
	}
	return nil
}
