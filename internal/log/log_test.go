package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{
		Component: ComponentCounter,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.Info("hello", FieldCounterID, "c1")

	out := buf.String()
	if !strings.Contains(out, "component=counter") || !strings.Contains(out, "counter_id=c1") {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf).With(FieldRequestID, "req-1").WithComponent(ComponentHTTP)

	logger.WithCounter("c1", "Alice").Warn("switched")

	out := buf.String()
	if n := strings.Count(out, "component="); n != 1 {
		t.Fatalf("component attribute written %d times: %s", n, out)
	}
	for _, want := range []string{"component=http", "request_id=req-1", "counter_id=c1", "person_name=Alice"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
	if logger.Component() != ComponentHTTP {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestFieldsBuilder(t *testing.T) {
	fields := NewFields().
		WithCounter("c1", "Alice", 3).
		WithOperation(OpIncrement).
		WithError(errors.New("boom")).
		WithError(nil)

	if fields[FieldPersonName] != "Alice" || fields[FieldCount] != int64(3) {
		t.Errorf("unexpected counter fields: %v", fields)
	}
	if fields[FieldError] != "boom" {
		t.Errorf("nil error should not overwrite, got %v", fields[FieldError])
	}
	if got := len(fields.ToSlice()); got != 2*len(fields) {
		t.Errorf("ToSlice length = %d, want %d", got, 2*len(fields))
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))

	sl.LogCounterChanged(context.Background(), OpIncrement, "c1", "Alice", 4)
	if out := buf.String(); !strings.Contains(out, "operation=increment") || !strings.Contains(out, "person_name=Alice") {
		t.Errorf("unexpected counter log: %s", out)
	}

	if strings.Count(buf.String(), "component=") != 1 {
		t.Errorf("component repeated: %s", buf.String())
	}

	buf.Reset()
	sl.LogCounterSkipped(context.Background(), OpDecrement, "c1", errors.New("count is already zero"))
	if out := buf.String(); !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "counter_id=c1") {
		t.Errorf("unexpected skip log: %s", out)
	}

	buf.Reset()
	sl.LogError(context.Background(), "Mirror append failed", errors.New("quota"), ComponentWorker, OpSync, nil)
	if out := buf.String(); !strings.Contains(out, "component=worker") || !strings.Contains(out, "error=quota") {
		t.Errorf("unexpected error log: %s", out)
	}

	buf.Reset()
	r := httptest.NewRequest(http.MethodPost, "/counters", nil)
	sl.LogHTTPEnd(context.Background(), r, http.StatusInternalServerError, 12, "10.0.0.1")
	if out := buf.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status_code=500") {
		t.Errorf("5xx should log at error level: %s", out)
	}
}

func TestContextMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	var got *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil {
		t.Fatal("logger missing from context")
	}
	got.Info("inside")
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("request id not attached: %s", buf.String())
	}

	if fallback := FromContext(context.Background()); fallback.Component() != "unknown" {
		t.Errorf("fallback component = %q", fallback.Component())
	}
}
