package transport

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"accounts-telemetry/internal/glean"
)

// recordLogger is the slice of otellog.Logger the sink needs; tests pass a
// capture implementation.
type recordLogger interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewOTelSink returns a Sink that emits each ping as an OTel log record via
// the given LoggerProvider. If provider is nil, returns a no-op sink.
func NewOTelSink(provider *sdklog.LoggerProvider) glean.Sink {
	if provider == nil {
		return noopSink{}
	}
	return &otelSink{logger: provider.Logger("accounts.telemetry")}
}

// NewOTelSinkWithLogger returns a Sink emitting through logger directly.
func NewOTelSinkWithLogger(logger recordLogger) glean.Sink {
	return &otelSink{logger: logger}
}

type noopSink struct{}

func (noopSink) Submit(context.Context, *glean.Envelope) error { return nil }

type otelSink struct {
	logger recordLogger
}

// Submit converts the envelope to an OTel log record: the serialized payload
// is the body, the document fields become attributes. Always returns nil;
// export failures surface through the provider's own error handling.
func (s *otelSink) Submit(ctx context.Context, env *glean.Envelope) error {
	if env == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetTimestamp(time.Now().UTC())
	rec.SetBody(otellog.StringValue(env.Payload))
	rec.AddAttributes(otellog.String("type", MozlogType))
	if env.DocumentNamespace != "" {
		rec.AddAttributes(otellog.String("document_namespace", env.DocumentNamespace))
	}
	if env.DocumentType != "" {
		rec.AddAttributes(otellog.String("document_type", env.DocumentType))
	}
	if env.DocumentVersion != "" {
		rec.AddAttributes(otellog.String("document_version", env.DocumentVersion))
	}
	if env.DocumentID != "" {
		rec.AddAttributes(otellog.String("document_id", env.DocumentID))
	}
	if env.UserAgent != "" {
		rec.AddAttributes(otellog.String("user_agent", env.UserAgent))
	}
	if env.IPAddress != "" {
		rec.AddAttributes(otellog.String("ip_address", env.IPAddress))
	}
	s.logger.Emit(ctx, rec)
	return nil
}
