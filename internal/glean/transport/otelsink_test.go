package transport

import (
	"context"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
)

type captureLogger struct {
	records []otellog.Record
}

func (l *captureLogger) Emit(ctx context.Context, rec otellog.Record) {
	l.records = append(l.records, rec)
}

func recordAttrs(rec otellog.Record) map[string]string {
	attrs := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestOTelSink_EmitsRecord(t *testing.T) {
	logger := &captureLogger{}
	sink := NewOTelSinkWithLogger(logger)

	env := testEnvelope()
	if err := sink.Submit(context.Background(), env); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(logger.records) != 1 {
		t.Fatalf("emitted %d records, want 1", len(logger.records))
	}
	rec := logger.records[0]
	if got := rec.Body().AsString(); got != env.Payload {
		t.Errorf("body = %q, want the serialized payload", got)
	}
	attrs := recordAttrs(rec)
	want := map[string]string{
		"type":               "glean-server-event",
		"document_namespace": env.DocumentNamespace,
		"document_type":      env.DocumentType,
		"document_version":   env.DocumentVersion,
		"document_id":        env.DocumentID,
		"user_agent":         env.UserAgent,
		"ip_address":         env.IPAddress,
	}
	for key, wantVal := range want {
		if got := attrs[key]; got != wantVal {
			t.Errorf("attr %q = %q, want %q", key, got, wantVal)
		}
	}
}

func TestOTelSink_SkipsEmptyAttributes(t *testing.T) {
	logger := &captureLogger{}
	sink := NewOTelSinkWithLogger(logger)

	env := testEnvelope()
	env.UserAgent = ""
	env.IPAddress = ""
	if err := sink.Submit(context.Background(), env); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	attrs := recordAttrs(logger.records[0])
	if _, ok := attrs["user_agent"]; ok {
		t.Error("user_agent attribute set for empty value")
	}
	if _, ok := attrs["ip_address"]; ok {
		t.Error("ip_address attribute set for empty value")
	}
}

func TestOTelSink_NilProviderIsNoop(t *testing.T) {
	sink := NewOTelSink(nil)
	if err := sink.Submit(context.Background(), testEnvelope()); err != nil {
		t.Errorf("noop sink returned %v", err)
	}
}
