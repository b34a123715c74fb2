package glean

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DocumentType and DocumentVersion identify the accounts-events schema at
	// the ingestion backend. Both are part of the wire contract.
	DocumentType    = "accounts-events"
	DocumentVersion = "1"

	// telemetrySDKBuild identifies the schema build to the ingestion decoder.
	telemetrySDKBuild = "glean_parser v7.2.2.dev8+g91d4c811"

	// unknownField fills client_info fields the schema requires but a server
	// has no meaningful value for.
	unknownField = "Unknown"

	// isoFormat matches the ISO-8601 form the ingestion backend expects for
	// ping_info timestamps.
	isoFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Envelope is the complete ping document handed to a Sink, shaped for the
// ingestion decoder. It is a value object owned by the call that builds it.
type Envelope struct {
	DocumentNamespace string `json:"document_namespace"`
	DocumentType      string `json:"document_type"`
	DocumentVersion   string `json:"document_version"`
	DocumentID        string `json:"document_id"`
	UserAgent         string `json:"user_agent"`
	IPAddress         string `json:"ip_address"`
	// Payload is the metrics/ping_info/client_info structure, JSON-encoded as
	// a string. The decoder parses it a second time.
	Payload string `json:"payload"`
}

type pingPayload struct {
	Metrics    payloadMetrics `json:"metrics"`
	PingInfo   pingInfo       `json:"ping_info"`
	ClientInfo clientInfo     `json:"client_info"`
}

type payloadMetrics struct {
	String map[string]string `json:"string"`
}

type pingInfo struct {
	// Seq is required by the schema but carries no meaning for these pings.
	Seq       int    `json:"seq"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type clientInfo struct {
	TelemetrySDKBuild string `json:"telemetry_sdk_build"`
	FirstRunDate      string `json:"first_run_date"`
	OS                string `json:"os"`
	OSVersion         string `json:"os_version"`
	Architecture      string `json:"architecture"`
	AppBuild          string `json:"app_build"`
	AppDisplayVersion string `json:"app_display_version"`
	AppChannel        string `json:"app_channel"`
}

// metricStrings maps the record onto the dotted metrics.string keys
// registered in the schema. The key set is fixed: consumers may assert it.
func metricStrings(rec EventRecord) map[string]string {
	return map[string]string{
		"account.user_id_sha256":        rec.AccountUserIDSHA256,
		"event.name":                    rec.EventName,
		"event.reason":                  rec.EventReason,
		"relying_party.oauth_client_id": rec.RelyingPartyOAuthClientID,
		"relying_party.service":         rec.RelyingPartyService,
		"session.device_type":           rec.SessionDeviceType,
		"session.entrypoint":            rec.SessionEntrypoint,
		"session.flow_id":               rec.SessionFlowID,
		"utm.campaign":                  rec.UTMCampaign,
		"utm.content":                   rec.UTMContent,
		"utm.medium":                    rec.UTMMedium,
		"utm.source":                    rec.UTMSource,
		"utm.term":                      rec.UTMTerm,
	}
}

// NewEnvelope builds the ping document for rec with a fresh document id.
// start and end bound the ping window: the server producer passes the same
// instant for both, the client producer passes the flow start for start.
func NewEnvelope(applicationID, appDisplayVersion, channel string, rec EventRecord, start, end time.Time) (*Envelope, error) {
	payload := pingPayload{
		Metrics: payloadMetrics{String: metricStrings(rec)},
		PingInfo: pingInfo{
			Seq:       0,
			StartTime: start.UTC().Format(isoFormat),
			EndTime:   end.UTC().Format(isoFormat),
		},
		ClientInfo: clientInfo{
			TelemetrySDKBuild: telemetrySDKBuild,
			FirstRunDate:      unknownField,
			OS:                unknownField,
			OSVersion:         unknownField,
			Architecture:      unknownField,
			AppBuild:          unknownField,
			AppDisplayVersion: appDisplayVersion,
			AppChannel:        channel,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("glean: encode ping payload: %w", err)
	}
	return &Envelope{
		DocumentNamespace: applicationID,
		DocumentType:      DocumentType,
		DocumentVersion:   DocumentVersion,
		DocumentID:        uuid.NewString(),
		UserAgent:         rec.UserAgent,
		IPAddress:         rec.IPAddress,
		Payload:           string(raw),
	}, nil
}
