package observability

import "testing"

func TestNewLoggerTextHandler(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	logger := NewLogger(false)
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestNewLoggerJSONHandler(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	logger := NewLogger(true)
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
}
