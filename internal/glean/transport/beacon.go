package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"accounts-telemetry/internal/glean"
)

// Beacon uploads client pings straight to the ingestion endpoint. Delivery is
// fire-and-forget from the producer's point of view; the upload switch can be
// flipped at runtime and, while off, pings are dropped silently.
type Beacon struct {
	endpoint     string
	client       *http.Client
	logPings     bool
	debugViewTag string
	enabled      atomic.Bool
}

// NewBeacon returns a Beacon posting to endpoint (e.g.
// https://incoming.telemetry.example.com). debugViewTag, when set, routes
// pings to the debug view via the X-Debug-ID header; logPings mirrors each
// outbound payload to the local log.
func NewBeacon(endpoint string, uploadEnabled, logPings bool, debugViewTag string) *Beacon {
	b := &Beacon{
		endpoint:     strings.TrimSuffix(endpoint, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		logPings:     logPings,
		debugViewTag: debugViewTag,
	}
	b.enabled.Store(uploadEnabled)
	return b
}

// SetUploadEnabled flips the upload switch. Safe to call concurrently with
// in-flight submissions; applies to the next Submit.
func (b *Beacon) SetUploadEnabled(enabled bool) { b.enabled.Store(enabled) }

// UploadEnabled reports the current switch state.
func (b *Beacon) UploadEnabled() bool { return b.enabled.Load() }

// Submit posts the ping payload to
// {endpoint}/submit/{namespace}/{docType}/{docVersion}/{documentID}. The
// user_agent and ip_address envelope fields are not sent: ingestion takes
// both from the upload request itself.
func (b *Beacon) Submit(ctx context.Context, env *glean.Envelope) error {
	if env == nil || !b.enabled.Load() {
		return nil
	}
	if b.logPings {
		log.Printf("glean: ping %s: %s", env.DocumentID, env.Payload)
	}
	url := fmt.Sprintf("%s/submit/%s/%s/%s/%s",
		b.endpoint, env.DocumentNamespace, env.DocumentType, env.DocumentVersion, env.DocumentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(env.Payload))
	if err != nil {
		return fmt.Errorf("transport: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.debugViewTag != "" {
		req.Header.Set("X-Debug-ID", b.debugViewTag)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: ping upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transport: ping upload returned %s", resp.Status)
	}
	return nil
}
