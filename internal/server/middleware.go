// Package server hosts the HTTP surface of the demo accounts service and the
// middleware that turns each inbound request into a telemetry Source.
package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/mileusna/useragent"

	"accounts-telemetry/internal/consent"
	"accounts-telemetry/internal/glean"
	"accounts-telemetry/internal/security"
)

type contextKey struct{ name string }

var sourceKey = contextKey{"glean_source"}

// WithSource returns a context carrying the telemetry source for this request.
func WithSource(ctx context.Context, src glean.Source) context.Context {
	return context.WithValue(ctx, sourceKey, src)
}

// SourceFrom returns the request's telemetry source, or nil if the metrics
// middleware did not run. The pipeline tolerates nil.
func SourceFrom(ctx context.Context) glean.Source {
	src, _ := ctx.Value(sourceKey).(glean.Source)
	return src
}

// AccountStateFunc looks up the consent input for the request's account id.
// uid may be "" for unauthenticated requests.
type AccountStateFunc func(ctx context.Context, uid string) consent.AccountState

// Metrics returns middleware that resolves the telemetry source for each
// request and stores it in the request context. parser, checker, and
// accountState may each be nil; collection is then allowed by default for
// requests this middleware sees.
func Metrics(parser *security.TokenParser, checker consent.Checker, accountState AccountStateFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			src := NewRequestSource(r, parser, checker, accountState)
			next.ServeHTTP(w, r.WithContext(WithSource(r.Context(), src)))
		})
	}
}

// RequestSource adapts one inbound HTTP request to the glean.Source the
// pipeline reads. Accessors tolerate missing state: no token, no form, no
// flow parameters.
type RequestSource struct {
	userAgent  string
	clientIP   string
	deviceType string
	claims     security.Claims
	payload    url.Values
	flow       glean.FlowContext
	consent    func(ctx context.Context) (bool, error)
}

// NewRequestSource resolves the request's telemetry state up front; only the
// consent check is deferred to event time, since it may hit an upstream.
func NewRequestSource(r *http.Request, parser *security.TokenParser, checker consent.Checker, accountState AccountStateFunc) *RequestSource {
	var claims security.Claims
	if parser != nil {
		claims = parser.Parse(security.ExtractBearer(r.Header.Get("Authorization")))
	}
	// Merges query and form body; a parse failure still leaves r.Form usable.
	_ = r.ParseForm()

	src := &RequestSource{
		userAgent:  r.UserAgent(),
		clientIP:   ClientIP(r),
		deviceType: DeviceType(r.UserAgent()),
		claims:     claims,
		payload:    r.Form,
		flow: glean.FlowContext{
			Service:     r.Form.Get("service"),
			Entrypoint:  r.Form.Get("entrypoint"),
			FlowID:      r.Form.Get("flow_id"),
			UTMCampaign: r.Form.Get("utm_campaign"),
			UTMContent:  r.Form.Get("utm_content"),
			UTMMedium:   r.Form.Get("utm_medium"),
			UTMSource:   r.Form.Get("utm_source"),
			UTMTerm:     r.Form.Get("utm_term"),
		},
	}
	if checker != nil {
		uid := claims.UID
		if uid == "" {
			uid = claims.User
		}
		src.consent = func(ctx context.Context) (bool, error) {
			var state consent.AccountState
			if accountState != nil {
				state = accountState(ctx, uid)
			}
			return checker.Allowed(ctx, state)
		}
	}
	return src
}

func (s *RequestSource) UserAgent() string     { return s.userAgent }
func (s *RequestSource) ClientAddress() string { return s.clientIP }
func (s *RequestSource) DeviceType() string    { return s.deviceType }

func (s *RequestSource) Credential(name string) string {
	switch name {
	case "uid":
		return s.claims.UID
	case "user":
		return s.claims.User
	case "client_id":
		return s.claims.ClientID
	}
	return ""
}

func (s *RequestSource) PayloadField(name string) string {
	return s.payload.Get(name)
}

func (s *RequestSource) MetricsEnabled(ctx context.Context) (bool, error) {
	if s.consent == nil {
		return true, nil
	}
	return s.consent(ctx)
}

func (s *RequestSource) Flow(ctx context.Context) (glean.FlowContext, error) {
	return s.flow, nil
}

// ClientIP returns the client address for r: first hop of X-Forwarded-For,
// then X-Real-IP, then the RemoteAddr host. Returns "" when nothing usable
// is present.
func ClientIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		if i := strings.Index(v, ","); i > 0 {
			v = strings.TrimSpace(v[:i])
		}
		if v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// DeviceType classifies ua as "mobile", "tablet", or "" (desktop and
// anything unrecognized).
func DeviceType(ua string) string {
	if ua == "" {
		return ""
	}
	agent := useragent.Parse(ua)
	switch {
	case agent.Tablet:
		return "tablet"
	case agent.Mobile:
		return "mobile"
	}
	return ""
}
