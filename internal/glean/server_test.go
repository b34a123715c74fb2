package glean

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// mockSink captures submitted envelopes and can fail or panic on demand.
type mockSink struct {
	mu        sync.Mutex
	envelopes []*Envelope
	err       error
	panicMsg  string
}

func (s *mockSink) Submit(ctx context.Context, env *Envelope) error {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, env)
	return s.err
}

func (s *mockSink) all() []*Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Envelope(nil), s.envelopes...)
}

func enabledSource() *mockSource {
	return &mockSource{enabled: true}
}

func testConfig() Config {
	return Config{
		Enabled:           true,
		ApplicationID:     "accounts_backend_test",
		Channel:           "development",
		AppDisplayVersion: "0.0.0",
	}
}

func lastMetrics(t *testing.T, sink *mockSink) map[string]string {
	t.Helper()
	envs := sink.all()
	if len(envs) == 0 {
		t.Fatal("no ping submitted")
	}
	return decodePayload(t, envs[len(envs)-1]).Metrics.String
}

func TestServerMetrics_DisabledConfigShortCircuits(t *testing.T) {
	sink := &mockSink{}
	cfg := testConfig()
	cfg.Enabled = false
	m := NewServerMetrics(cfg, sink)

	m.Login().Success(context.Background(), enabledSource(), &MetricsData{UID: "rome_georgia"})

	if got := len(sink.all()); got != 0 {
		t.Errorf("submitted %d pings, want 0", got)
	}
}

func TestServerMetrics_AccountOptOutSkips(t *testing.T) {
	sink := &mockSink{}
	m := NewServerMetrics(testConfig(), sink)
	src := &mockSource{enabled: false}

	m.Login().Success(context.Background(), src, nil)

	if got := len(sink.all()); got != 0 {
		t.Errorf("submitted %d pings, want 0", got)
	}
}

func TestServerMetrics_ConsentErrorFailsClosed(t *testing.T) {
	sink := &mockSink{}
	m := NewServerMetrics(testConfig(), sink)
	src := &mockSource{enabled: true, enabledErr: errors.New("store down")}

	m.Login().Success(context.Background(), src, nil)

	if got := len(sink.all()); got != 0 {
		t.Errorf("submitted %d pings, want 0", got)
	}
}

func TestServerMetrics_DefaultsAreEmptyStrings(t *testing.T) {
	sink := &mockSink{}
	m := NewServerMetrics(testConfig(), sink)

	m.Login().Success(context.Background(), enabledSource(), nil)

	metrics := lastMetrics(t, sink)
	for key, val := range metrics {
		if key == "event.name" {
			continue
		}
		if val != "" {
			t.Errorf("metrics.string[%q] = %q, want empty default", key, val)
		}
	}
	if metrics["event.name"] != "login_success" {
		t.Errorf("event.name = %q, want %q", metrics["event.name"], "login_success")
	}
}

func TestServerMetrics_NilSourceTolerated(t *testing.T) {
	sink := &mockSink{}
	m := NewServerMetrics(testConfig(), sink)

	// A nil source resolves everything empty but still records the event.
	m.Login().Success(context.Background(), nil, &MetricsData{UID: "rome_georgia"})

	metrics := lastMetrics(t, sink)
	if got := metrics["event.name"]; got != "login_success" {
		t.Errorf("event.name = %q, want %q", got, "login_success")
	}
	if got := metrics["account.user_id_sha256"]; got != HashUID("rome_georgia") {
		t.Errorf("account.user_id_sha256 = %q, want digest of aux uid", got)
	}
}

func TestServerMetrics_UIDPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		data        *MetricsData
		credentials map[string]string
		wantHash    string
	}{
		{
			"aux data uid",
			&MetricsData{UID: "rome_georgia"},
			nil,
			"7c05994f542f257aac8ee13eebc711f07e480b06de5498c7e63f9b3e615ac8af",
		},
		{
			"session credential uid",
			nil,
			map[string]string{"uid": "athens_texas"},
			"0c1d07d948132bcec965796e16a0bef4bd8aca2bc920c26f3a6d4f46e8971fcd",
		},
		{
			"oauth credential user",
			nil,
			map[string]string{"user": "paris_tennessee"},
			"b2710dc44cb98ec552e189e48b43e460366f1ae40f922bf325e2635b098962e7",
		},
		{
			"aux data wins",
			&MetricsData{UID: "rome_georgia"},
			map[string]string{"uid": "athens_texas", "user": "paris_tennessee"},
			"7c05994f542f257aac8ee13eebc711f07e480b06de5498c7e63f9b3e615ac8af",
		},
		{"no uid ships no hash", nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mockSink{}
			m := NewServerMetrics(testConfig(), sink)
			src := enabledSource()
			src.credentials = tt.credentials

			m.Login().Success(context.Background(), src, tt.data)

			metrics := lastMetrics(t, sink)
			if got := metrics["account.user_id_sha256"]; got != tt.wantHash {
				t.Errorf("account.user_id_sha256 = %q, want %q", got, tt.wantHash)
			}
		})
	}
}

func TestServerMetrics_ClientIDAndServiceResolution(t *testing.T) {
	cfg := testConfig()
	cfg.OAuthClientIDs = map[string]string{"runny_eggs": "breakfast"}
	sink := &mockSink{}
	m := NewServerMetrics(cfg, sink)

	src := enabledSource()
	src.credentials = map[string]string{"client_id": "runny_eggs"}
	src.payload = map[string]string{"client_id": "corny_jokes"}

	m.Login().Success(context.Background(), src, nil)

	metrics := lastMetrics(t, sink)
	if got := metrics["relying_party.oauth_client_id"]; got != "runny_eggs" {
		t.Errorf("relying_party.oauth_client_id = %q, want %q", got, "runny_eggs")
	}
	if got := metrics["relying_party.service"]; got != "breakfast" {
		t.Errorf("relying_party.service = %q, want %q", got, "breakfast")
	}

	// A service already resolved on the flow context wins over the table.
	src.flow = FlowContext{Service: "sync"}
	m.Login().Success(context.Background(), src, nil)
	metrics = lastMetrics(t, sink)
	if got := metrics["relying_party.service"]; got != "sync" {
		t.Errorf("relying_party.service = %q, want %q", got, "sync")
	}
}

func TestServerMetrics_FlowAndRequestContext(t *testing.T) {
	sink := &mockSink{}
	m := NewServerMetrics(testConfig(), sink)

	src := enabledSource()
	src.userAgent = "quux-agent"
	src.clientIP = "203.0.113.7"
	src.deviceType = "mobile"
	src.flow = FlowContext{
		Entrypoint:  "preferences",
		FlowID:      "00ff",
		UTMCampaign: "camp",
		UTMContent:  "content",
		UTMMedium:   "medium",
		UTMSource:   "source",
		UTMTerm:     "term",
	}

	m.Registration().Complete(context.Background(), src, nil)

	envs := sink.all()
	if len(envs) != 1 {
		t.Fatalf("submitted %d pings, want 1", len(envs))
	}
	if envs[0].UserAgent != "quux-agent" {
		t.Errorf("UserAgent = %q, want %q", envs[0].UserAgent, "quux-agent")
	}
	if envs[0].IPAddress != "203.0.113.7" {
		t.Errorf("IPAddress = %q, want %q", envs[0].IPAddress, "203.0.113.7")
	}

	metrics := decodePayload(t, envs[0]).Metrics.String
	want := map[string]string{
		"event.name":          "reg_complete",
		"session.device_type": "mobile",
		"session.entrypoint":  "preferences",
		"session.flow_id":     "00ff",
		"utm.campaign":        "camp",
		"utm.content":         "content",
		"utm.medium":          "medium",
		"utm.source":          "source",
		"utm.term":            "term",
	}
	for key, wantVal := range want {
		if got := metrics[key]; got != wantVal {
			t.Errorf("metrics.string[%q] = %q, want %q", key, got, wantVal)
		}
	}
}

func TestServerMetrics_FlowErrorFallsBackToDefaults(t *testing.T) {
	sink := &mockSink{}
	m := NewServerMetrics(testConfig(), sink)
	src := enabledSource()
	src.flowErr = errors.New("flow store unavailable")
	src.flow = FlowContext{FlowID: "would-be-used"}

	m.Login().Success(context.Background(), src, nil)

	metrics := lastMetrics(t, sink)
	if got := metrics["session.flow_id"]; got != "" {
		t.Errorf("session.flow_id = %q, want empty on flow error", got)
	}
}

func TestServerMetrics_IndependentDocuments(t *testing.T) {
	sink := &mockSink{}
	m := NewServerMetrics(testConfig(), sink)
	src := enabledSource()

	m.Login().Success(context.Background(), src, &MetricsData{UID: "rome_georgia"})
	m.Login().Success(context.Background(), src, &MetricsData{UID: "rome_georgia"})

	envs := sink.all()
	if len(envs) != 2 {
		t.Fatalf("submitted %d pings, want 2", len(envs))
	}
	if envs[0].DocumentID == envs[1].DocumentID {
		t.Errorf("document ids collide: %q", envs[0].DocumentID)
	}
	a := decodePayload(t, envs[0]).Metrics.String
	b := decodePayload(t, envs[1]).Metrics.String
	for key, val := range a {
		if b[key] != val {
			t.Errorf("metrics.string[%q] differs: %q vs %q", key, val, b[key])
		}
	}
}

func TestServerMetrics_SinkErrorSwallowed(t *testing.T) {
	sink := &mockSink{err: errors.New("broker unreachable")}
	m := NewServerMetrics(testConfig(), sink)

	// Must not propagate the sink failure to the caller.
	m.Login().Success(context.Background(), enabledSource(), nil)

	if got := len(sink.all()); got != 1 {
		t.Errorf("submitted %d pings, want 1", got)
	}
}

func TestServerMetrics_SinkPanicSwallowed(t *testing.T) {
	sink := &mockSink{panicMsg: "sink blew up"}
	m := NewServerMetrics(testConfig(), sink)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("panic escaped to caller: %v", r)
		}
	}()
	m.Login().Success(context.Background(), enabledSource(), nil)
}
