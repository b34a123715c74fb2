// Package glean builds and submits accounts-events telemetry pings. It has
// two producers sharing one record and envelope shape: ServerMetrics, embedded
// in the request-handling service, and ClientMetrics, embedded in a
// user-facing app. Both are fire-and-forget: a recorded event never returns an
// error and never fails the operation that triggered it.
package glean

// MetricsData carries values known only at the event call site. For an event
// like a successful login the uid is not on the request credentials yet, so
// the caller passes it here.
type MetricsData struct {
	// UID is the raw account id; it is hashed before it leaves the process.
	UID string
	// Reason is extra context for error-class events (fills event_reason).
	Reason string
}

// EventRecord is the flat accounts-events metric set. Every field is always
// present on the wire: an absent value is the empty string, never null or a
// missing key. EventName is the only mandatory field.
type EventRecord struct {
	EventName                 string `json:"event_name"`
	EventReason               string `json:"event_reason"`
	AccountUserIDSHA256       string `json:"account_user_id_sha256"`
	RelyingPartyOAuthClientID string `json:"relying_party_oauth_client_id"`
	RelyingPartyService       string `json:"relying_party_service"`
	SessionDeviceType         string `json:"session_device_type"`
	SessionEntrypoint         string `json:"session_entrypoint"`
	SessionFlowID             string `json:"session_flow_id"`
	UTMCampaign               string `json:"utm_campaign"`
	UTMContent                string `json:"utm_content"`
	UTMMedium                 string `json:"utm_medium"`
	UTMSource                 string `json:"utm_source"`
	UTMTerm                   string `json:"utm_term"`

	// Transport-only fields. They ride on the envelope for the ingestion
	// decoder and are not part of the metrics.string map.
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
}

// newEventRecord returns a record with every optional field defaulted to "",
// so a partially resolved event can never ship values from a previous one.
func newEventRecord(name string) EventRecord {
	return EventRecord{EventName: name}
}
