package glean

import "context"

// Credential keys read from the request's auth token.
const (
	credUID      = "uid"
	credUser     = "user"
	credClientID = "client_id"
)

// FlowContext is the per-request flow and attribution metadata resolved by
// the session layer. Zero values mean the request carried no such state.
type FlowContext struct {
	Service     string
	Entrypoint  string
	FlowID      string
	UTMCampaign string
	UTMContent  string
	UTMMedium   string
	UTMSource   string
	UTMTerm     string
}

// Source supplies raw request state to the pipeline. Implementations must
// tolerate partial state: every accessor returns "" for anything absent, and
// none of them may panic on a request with no session, no token, or no body.
type Source interface {
	UserAgent() string
	ClientAddress() string
	// DeviceType is "mobile", "tablet", or "".
	DeviceType() string
	// Credential returns the named value from the request's auth credentials
	// ("uid" on a session token, "user" and "client_id" on an oauth token).
	Credential(name string) string
	// PayloadField returns the named value from the request payload.
	PayloadField(name string) string
	// MetricsEnabled reports whether collection is allowed for the account or
	// session behind this request. May block on an upstream lookup.
	MetricsEnabled(ctx context.Context) (bool, error)
	// Flow resolves the flow/attribution metadata for this request. May block
	// on an upstream lookup.
	Flow(ctx context.Context) (FlowContext, error)
}

// findUID resolves the subject id: an explicit call-site value wins over the
// session token uid, which wins over the oauth token subject.
func findUID(src Source, data *MetricsData) string {
	if data != nil && data.UID != "" {
		return data.UID
	}
	if v := src.Credential(credUID); v != "" {
		return v
	}
	return src.Credential(credUser)
}

// findOauthClientID resolves the relying party client id: the token
// credential wins over the request payload.
func findOauthClientID(src Source) string {
	if v := src.Credential(credClientID); v != "" {
		return v
	}
	return src.PayloadField(credClientID)
}

// findServiceName resolves the relying party service name: a service already
// resolved on the flow context wins over the configured
// client-id -> service-name table.
func findServiceName(src Source, flow FlowContext, clientIDs map[string]string) string {
	if flow.Service != "" {
		return flow.Service
	}
	if id := findOauthClientID(src); id != "" {
		if name, ok := clientIDs[id]; ok {
			return name
		}
	}
	return ""
}

// emptySource stands in for a nil Source so callers without request state can
// still record events; everything resolves empty and collection is allowed.
type emptySource struct{}

func (emptySource) UserAgent() string                { return "" }
func (emptySource) ClientAddress() string            { return "" }
func (emptySource) DeviceType() string               { return "" }
func (emptySource) Credential(string) string         { return "" }
func (emptySource) PayloadField(string) string       { return "" }
func (emptySource) MetricsEnabled(context.Context) (bool, error) {
	return true, nil
}
func (emptySource) Flow(context.Context) (FlowContext, error) {
	return FlowContext{}, nil
}
