package glean

import "context"

// Sink delivers one ping envelope. Implementations are best-effort: callers
// treat a returned error as a dropped ping and never retry. Sinks must be
// safe for concurrent Submit calls.
type Sink interface {
	Submit(ctx context.Context, env *Envelope) error
}

// Uploader is a Sink whose delivery can be switched off at runtime. The
// client producer propagates its enabled flag to it so a disabled session
// drops pings at both the gate and the transport.
type Uploader interface {
	Sink
	SetUploadEnabled(enabled bool)
}
