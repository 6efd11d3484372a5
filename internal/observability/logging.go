// Package observability wires up the daemon's structured logger, the same
// otelslog bridge the teacher uses for its database and datastore clients.
package observability

import (
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const instrumentationName = "github.com/savevault/syncengine"

// Tracer and Meter are the package-wide OTel handles other packages use to
// create spans and counters, following the same package-level-var idiom the
// teacher uses in its own database and datastore clients.
var (
	Tracer = otel.Tracer(instrumentationName)
	Meter  = otel.Meter(instrumentationName)
)

// NewLogger returns an OTel-correlated slog.Logger when an OTLP endpoint
// is configured in the environment, and otherwise a plain logger with a
// JSON handler (jsonOutput true) or a text handler (jsonOutput false), so the daemon has useful structured logs with zero external
// dependencies at runtime.
func NewLogger(jsonOutput bool) *slog.Logger {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		return otelslog.NewLogger(instrumentationName)
	}
	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	return slog.New(handler)
}
