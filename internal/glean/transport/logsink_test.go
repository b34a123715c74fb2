package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"accounts-telemetry/internal/glean"
)

func testEnvelope() *glean.Envelope {
	return &glean.Envelope{
		DocumentNamespace: "accounts_backend_test",
		DocumentType:      "accounts-events",
		DocumentVersion:   "1",
		DocumentID:        "0d8f4a9e-1b1b-4d6a-8c5e-0f3a9b7c2d10",
		UserAgent:         "test-agent/1.0",
		IPAddress:         "203.0.113.9",
		Payload:           `{"metrics":{"string":{"event.name":"login_success"}}}`,
	}
}

func TestLogSink_WritesMozlogLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf, "accounts")

	if err := sink.Submit(context.Background(), testEnvelope()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	out := buf.String()
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("log line missing trailing newline: %q", out)
	}
	var line mozlogLine
	if err := json.Unmarshal([]byte(out), &line); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if line.Type != "glean-server-event" {
		t.Errorf("Type = %q, want %q", line.Type, "glean-server-event")
	}
	if line.Logger != "accounts-glean" {
		t.Errorf("Logger = %q, want %q", line.Logger, "accounts-glean")
	}
	if line.EnvVersion != "2.0" {
		t.Errorf("EnvVersion = %q, want %q", line.EnvVersion, "2.0")
	}
	if line.Severity != 6 {
		t.Errorf("Severity = %d, want 6", line.Severity)
	}
	if line.Fields == nil || line.Fields.DocumentID != "0d8f4a9e-1b1b-4d6a-8c5e-0f3a9b7c2d10" {
		t.Errorf("Fields did not round-trip the envelope: %+v", line.Fields)
	}
}

func TestLogSink_NilEnvelope(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf, "accounts")
	if err := sink.Submit(context.Background(), nil); err != nil {
		t.Fatalf("Submit(nil): %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %q for a nil envelope", buf.String())
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLogSink_WriteError(t *testing.T) {
	sink := NewLogSink(errWriter{}, "accounts")
	if err := sink.Submit(context.Background(), testEnvelope()); err == nil {
		t.Error("Submit returned nil on write error")
	}
}

type countSink struct {
	calls int
	err   error
}

func (s *countSink) Submit(ctx context.Context, env *glean.Envelope) error {
	s.calls++
	return s.err
}

func TestTee_FansOutAndReturnsFirstError(t *testing.T) {
	a := &countSink{err: errors.New("a failed")}
	b := &countSink{}
	sink := Tee(a, nil, b)

	err := sink.Submit(context.Background(), testEnvelope())
	if err == nil || err.Error() != "a failed" {
		t.Errorf("Tee error = %v, want first sink's error", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("sink calls = %d, %d, want 1, 1", a.calls, b.calls)
	}
}
