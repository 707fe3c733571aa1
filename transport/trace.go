package transport

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// TraceWriter is the optional trace sink the transport writes SEND and
// RECEIVE frames to (spec.md §4.B). It is an external collaborator: the
// transport only ever calls Trace and IsEnabled.
type TraceWriter interface {
	IsEnabled() bool
	Trace(data string, op DataOperation) error
}

// StdoutTraceWriter writes one line per frame to stdout, in the spirit
// of the teacher's plain slog-based diagnostics.
type StdoutTraceWriter struct {
	Enabled bool
}

func (w *StdoutTraceWriter) IsEnabled() bool { return w.Enabled }

func (w *StdoutTraceWriter) Trace(data string, op DataOperation) error {
	if !w.Enabled {
		return nil
	}
	_, err := fmt.Fprintf(os.Stdout, "%s %s %s\n", time.Now().Format(time.RFC3339), op, data)
	return err
}

// ZerologTraceWriter writes SEND/RECEIVE frames as structured zerolog
// events, grounded on the console-writer setup used elsewhere in the
// pack for operator-facing logging.
type ZerologTraceWriter struct {
	Logger  zerolog.Logger
	Enabled bool
}

// NewZerologTraceWriter builds a writer with a console-formatted
// zerolog.Logger over os.Stdout.
func NewZerologTraceWriter(enabled bool) *ZerologTraceWriter {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("component", "lime-transport").Logger()
	return &ZerologTraceWriter{Logger: logger, Enabled: enabled}
}

func (w *ZerologTraceWriter) IsEnabled() bool { return w.Enabled }

func (w *ZerologTraceWriter) Trace(data string, op DataOperation) error {
	if !w.Enabled {
		return nil
	}
	w.Logger.Debug().Str("op", op.String()).Str("frame", data).Msg("envelope trace")
	return nil
}
