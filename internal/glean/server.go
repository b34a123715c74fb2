package glean

import (
	"context"
	"log"
	"time"
)

// Config holds the telemetry settings shared by both producers. It is loaded
// once at startup and read-only afterward.
type Config struct {
	// Enabled is the static kill switch; when false no event does any work.
	Enabled           bool
	ApplicationID     string
	Channel           string
	AppDisplayVersion string
	// OAuthClientIDs maps a relying party oauth client id to its service
	// name, used when the flow context has not resolved a service already.
	OAuthClientIDs map[string]string
}

// ServerMetrics is the server-side producer. One instance serves the whole
// process; request handlers record events through the catalog accessors
// (Login, Registration). Each call builds an independent record and envelope,
// so no locking is needed across concurrent requests.
type ServerMetrics struct {
	cfg  Config
	sink Sink
}

// NewServerMetrics returns the server producer writing to sink. A nil sink
// disables emission.
func NewServerMetrics(cfg Config, sink Sink) *ServerMetrics {
	return &ServerMetrics{cfg: cfg, sink: sink}
}

// record runs the full pipeline for one named event: consent gate, context
// resolution, uid hashing, envelope build, sink hand-off. It never returns an
// error and never panics into the caller; a failed delivery is logged and the
// triggering operation proceeds unaffected.
func (m *ServerMetrics) record(ctx context.Context, src Source, name string, data *MetricsData) {
	if !m.cfg.Enabled || m.sink == nil {
		return
	}
	if src == nil {
		src = emptySource{}
	}
	enabled, err := src.MetricsEnabled(ctx)
	if err != nil || !enabled {
		// An unresolvable consent check fails closed.
		return
	}
	flow, err := src.Flow(ctx)
	if err != nil {
		flow = FlowContext{}
	}

	rec := newEventRecord(name)
	rec.UserAgent = src.UserAgent()
	rec.IPAddress = src.ClientAddress()
	rec.RelyingPartyOAuthClientID = findOauthClientID(src)
	rec.RelyingPartyService = findServiceName(src, flow, m.cfg.OAuthClientIDs)
	rec.SessionDeviceType = src.DeviceType()
	rec.SessionEntrypoint = flow.Entrypoint
	rec.SessionFlowID = flow.FlowID
	rec.UTMCampaign = flow.UTMCampaign
	rec.UTMContent = flow.UTMContent
	rec.UTMMedium = flow.UTMMedium
	rec.UTMSource = flow.UTMSource
	rec.UTMTerm = flow.UTMTerm
	if data != nil {
		rec.EventReason = data.Reason
	}
	// The uid needs extra handling: hash only when a non-empty id resolved,
	// so an empty-string digest is never shipped as if it were meaningful.
	if uid := findUID(src, data); uid != "" {
		rec.AccountUserIDSHA256 = HashUID(uid)
	}

	now := time.Now().UTC()
	m.submit(ctx, rec, now, now)
}

// submit builds the envelope and hands it to the sink. This is the boundary
// where every delivery failure stops, including a panicking sink.
func (m *ServerMetrics) submit(ctx context.Context, rec EventRecord, start, end time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("glean: ping submit panicked: %v", r)
		}
	}()
	env, err := NewEnvelope(m.cfg.ApplicationID, m.cfg.AppDisplayVersion, m.cfg.Channel, rec, start, end)
	if err != nil {
		log.Printf("glean: %v", err)
		return
	}
	if err := m.sink.Submit(ctx, env); err != nil {
		log.Printf("glean: ping dropped: %v", err)
	}
}

// Login groups the server-side login events.
func (m *ServerMetrics) Login() ServerLoginEvents { return ServerLoginEvents{m} }

// ServerLoginEvents records login outcomes observed by the backend.
type ServerLoginEvents struct{ m *ServerMetrics }

// Success records a login_success event. data may carry the uid: on a
// successful login the request itself is not authenticated yet, so the
// credentials have no id for the resolver to find.
func (e ServerLoginEvents) Success(ctx context.Context, src Source, data *MetricsData) {
	e.m.record(ctx, src, "login_success", data)
}

// Registration groups the server-side registration events.
func (m *ServerMetrics) Registration() ServerRegistrationEvents {
	return ServerRegistrationEvents{m}
}

// ServerRegistrationEvents records account-creation outcomes observed by the
// backend.
type ServerRegistrationEvents struct{ m *ServerMetrics }

// Complete records a reg_complete event once the account is fully created.
func (e ServerRegistrationEvents) Complete(ctx context.Context, src Source, data *MetricsData) {
	e.m.record(ctx, src, "reg_complete", data)
}
