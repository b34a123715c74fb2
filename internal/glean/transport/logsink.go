// Package transport carries finished ping envelopes to their sinks: a
// mozlog-shaped log line, an OTel log record, a Kafka topic, or the ingestion
// endpoint itself (client beacon). All sinks are best-effort.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"accounts-telemetry/internal/glean"
)

// MozlogType tags glean pings in the log stream so the ingestion decoder can
// pick them out of the service's other logging.
const MozlogType = "glean-server-event"

// mozlogEnvVersion is the mozlog schema version the decoder expects.
const mozlogEnvVersion = "2.0"

// mozlogLine is the outer log frame; Fields carries the ping envelope.
type mozlogLine struct {
	Timestamp  int64           `json:"Timestamp"`
	Type       string          `json:"Type"`
	Logger     string          `json:"Logger"`
	Hostname   string          `json:"Hostname"`
	EnvVersion string          `json:"EnvVersion"`
	Pid        int             `json:"Pid"`
	Severity   int             `json:"Severity"`
	Fields     *glean.Envelope `json:"Fields"`
}

// LogSink writes each ping as a single mozlog-shaped JSON line. The writer is
// guarded by a mutex so concurrent requests emit whole lines only.
type LogSink struct {
	mu       sync.Mutex
	w        io.Writer
	logger   string
	hostname string
	pid      int
}

// NewLogSink returns a LogSink writing to w. app is the service's logger app
// name; a "-glean" suffix keeps ping lines apart from the app's own logging.
func NewLogSink(w io.Writer, app string) *LogSink {
	host, _ := os.Hostname()
	return &LogSink{
		w:        w,
		logger:   app + "-glean",
		hostname: host,
		pid:      os.Getpid(),
	}
}

// Submit writes env as one log line. A nil envelope is a no-op.
func (s *LogSink) Submit(ctx context.Context, env *glean.Envelope) error {
	if env == nil {
		return nil
	}
	line, err := json.Marshal(mozlogLine{
		Timestamp:  time.Now().UnixNano(),
		Type:       MozlogType,
		Logger:     s.logger,
		Hostname:   s.hostname,
		EnvVersion: mozlogEnvVersion,
		Pid:        s.pid,
		Severity:   6, // informational
		Fields:     env,
	})
	if err != nil {
		return fmt.Errorf("transport: encode ping line: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("transport: write ping line: %w", err)
	}
	return nil
}

// Tee fans each ping out to every sink. All sinks are attempted; the first
// error is returned after the fan-out completes.
func Tee(sinks ...glean.Sink) glean.Sink { return teeSink(sinks) }

type teeSink []glean.Sink

func (t teeSink) Submit(ctx context.Context, env *glean.Envelope) error {
	var first error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Submit(ctx, env); err != nil && first == nil {
			first = err
		}
	}
	return first
}
