package glean

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// submitTimeout bounds a single asynchronous ping upload so an unresponsive
// endpoint cannot pile up goroutines forever.
const submitTimeout = 5 * time.Second

// ClientConfig extends Config with the upload settings the client producer
// owns. Set once at application start; only the enabled state changes later,
// through SetEnabled.
type ClientConfig struct {
	Config
	// UploadEnabled is the initial state of the uploader switch.
	UploadEnabled  bool
	ServerEndpoint string
	LogPings       bool
	DebugViewTag   string
	// MaxEvents is the per-ping event budget; these pings carry one event.
	MaxEvents int
}

// Relier identifies the relying party of the current UI flow.
type Relier struct {
	ClientID string
	Service  string
}

// Account is the signed-in account view the client producer reads. UID is
// only used when SessionToken is present (a stored uid without a session is
// not a signed-in user).
type Account struct {
	SessionToken string
	UID          string
}

// Providers supplies the client producer's context sources from the
// surrounding application. Any func may be nil; the matching fields then
// default to "".
type Providers struct {
	Flow       func() FlowContext
	Relier     func() Relier
	Account    func() Account
	DeviceType func() string
}

// ClientMetrics is the client-side producer. Every event populates its own
// isolated record, so overlapping calls cannot interleave field state; the
// only shared mutable state is the enabled flag and it is read atomically.
type ClientMetrics struct {
	cfg       ClientConfig
	uploader  Uploader
	providers Providers
	enabled   atomic.Bool
	// flowStart anchors ping_info.start_time for every ping of this session.
	flowStart time.Time
}

// NewClientMetrics builds the client producer and applies cfg.Enabled as the
// initial gate, propagating it to the uploader.
func NewClientMetrics(cfg ClientConfig, uploader Uploader, providers Providers) *ClientMetrics {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1
	}
	m := &ClientMetrics{
		cfg:       cfg,
		uploader:  uploader,
		providers: providers,
		flowStart: time.Now().UTC(),
	}
	m.SetEnabled(cfg.Enabled)
	return m
}

// SetEnabled flips the runtime gate and propagates it to the uploader's
// upload switch. Idempotent; takes effect for the next event, not
// retroactively for pings already dispatched.
func (m *ClientMetrics) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	if m.uploader != nil {
		m.uploader.SetUploadEnabled(enabled)
	}
}

// Enabled reports the current gate state.
func (m *ClientMetrics) Enabled() bool { return m.enabled.Load() }

// record builds a fresh, fully-defaulted record for one named event and
// submits the ping asynchronously. It never blocks the caller's flow.
func (m *ClientMetrics) record(name string, data *MetricsData) {
	if !m.enabled.Load() || m.uploader == nil {
		return
	}
	rec := newEventRecord(name)
	if data != nil {
		rec.EventReason = data.Reason
	}
	p := m.providers
	if p.DeviceType != nil {
		rec.SessionDeviceType = p.DeviceType()
	}
	if p.Flow != nil {
		flow := p.Flow()
		rec.SessionEntrypoint = flow.Entrypoint
		rec.SessionFlowID = flow.FlowID
		rec.UTMCampaign = flow.UTMCampaign
		rec.UTMContent = flow.UTMContent
		rec.UTMMedium = flow.UTMMedium
		rec.UTMSource = flow.UTMSource
		rec.UTMTerm = flow.UTMTerm
	}
	if p.Relier != nil {
		rel := p.Relier()
		rec.RelyingPartyOAuthClientID = rel.ClientID
		rec.RelyingPartyService = rel.Service
	}
	if p.Account != nil {
		acct := p.Account()
		if acct.SessionToken != "" && acct.UID != "" {
			rec.AccountUserIDSHA256 = HashUID(acct.UID)
		}
	}
	m.submitAsync(rec)
}

// submitAsync ships one ping in its own goroutine. Errors and panics stop
// here; the UI flow that triggered the event is never affected and cannot
// cancel the upload once dispatched.
func (m *ClientMetrics) submitAsync(rec EventRecord) {
	start := m.flowStart
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("glean: ping submit panicked: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		env, err := NewEnvelope(m.cfg.ApplicationID, m.cfg.AppDisplayVersion, m.cfg.Channel, rec, start, time.Now().UTC())
		if err != nil {
			log.Printf("glean: %v", err)
			return
		}
		if err := m.uploader.Submit(ctx, env); err != nil {
			log.Printf("glean: ping dropped: %v", err)
		}
	}()
}

// EmailFirst groups the email-first entry form events.
func (m *ClientMetrics) EmailFirst() EmailFirstEvents { return EmailFirstEvents{m} }

type EmailFirstEvents struct{ m *ClientMetrics }

func (e EmailFirstEvents) View() { e.m.record("email_first_view", nil) }

// Registration groups the signup form events.
func (m *ClientMetrics) Registration() RegistrationEvents { return RegistrationEvents{m} }

type RegistrationEvents struct{ m *ClientMetrics }

func (e RegistrationEvents) View()    { e.m.record("reg_view", nil) }
func (e RegistrationEvents) Submit()  { e.m.record("reg_submit", nil) }
func (e RegistrationEvents) Success() { e.m.record("reg_submit_success", nil) }

// SignupConfirmation groups the signup confirmation code events.
func (m *ClientMetrics) SignupConfirmation() SignupConfirmationEvents {
	return SignupConfirmationEvents{m}
}

type SignupConfirmationEvents struct{ m *ClientMetrics }

func (e SignupConfirmationEvents) View()   { e.m.record("reg_signup_code_view", nil) }
func (e SignupConfirmationEvents) Submit() { e.m.record("reg_signup_code_submit", nil) }

// LoginConfirmation groups the login email confirmation events.
func (m *ClientMetrics) LoginConfirmation() LoginConfirmationEvents {
	return LoginConfirmationEvents{m}
}

type LoginConfirmationEvents struct{ m *ClientMetrics }

func (e LoginConfirmationEvents) View()   { e.m.record("login_email_confirmation_view", nil) }
func (e LoginConfirmationEvents) Submit() { e.m.record("login_email_confirmation_submit", nil) }

// TotpForm groups the TOTP challenge events.
func (m *ClientMetrics) TotpForm() TotpFormEvents { return TotpFormEvents{m} }

type TotpFormEvents struct{ m *ClientMetrics }

func (e TotpFormEvents) View()    { e.m.record("login_totp_form_view", nil) }
func (e TotpFormEvents) Submit()  { e.m.record("login_totp_code_submit", nil) }
func (e TotpFormEvents) Success() { e.m.record("login_totp_code_success_view", nil) }

// Login groups the login form events.
func (m *ClientMetrics) Login() LoginEvents { return LoginEvents{m} }

type LoginEvents struct{ m *ClientMetrics }

func (e LoginEvents) View()    { e.m.record("login_view", nil) }
func (e LoginEvents) Submit()  { e.m.record("login_submit", nil) }
func (e LoginEvents) Success() { e.m.record("login_submit_success", nil) }

// Error records a login_submit_frontend_error with the failure reason.
func (e LoginEvents) Error(data *MetricsData) {
	e.m.record("login_submit_frontend_error", data)
}
