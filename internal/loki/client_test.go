package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func pushCaptureServer(t *testing.T, status int) (*httptest.Server, func() []PushRequest) {
	t.Helper()
	var requests []PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("push path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req PushRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("push body is not valid JSON: %v", err)
		}
		requests = append(requests, req)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []PushRequest { return requests }
}

func TestPushPingJSON_LabelsAndTimestamp(t *testing.T) {
	srv, requests := pushCaptureServer(t, http.StatusNoContent)

	ping := map[string]interface{}{
		"document_namespace": "accounts_backend_test",
		"document_type":      "accounts-events",
		"payload":            `{"ping_info":{"end_time":"2024-03-01T10:05:30.000Z"}}`,
	}
	raw, _ := json.Marshal(ping)

	if err := PushPingJSON(context.Background(), srv.URL, raw); err != nil {
		t.Fatalf("PushPingJSON: %v", err)
	}

	got := requests()
	if len(got) != 1 || len(got[0].Streams) != 1 {
		t.Fatalf("push requests = %+v", got)
	}
	stream := got[0].Streams[0]
	if stream.Stream["job"] != "accounts-telemetry" {
		t.Errorf("job label = %q", stream.Stream["job"])
	}
	if stream.Stream["document_namespace"] != "accounts_backend_test" {
		t.Errorf("document_namespace label = %q", stream.Stream["document_namespace"])
	}
	if stream.Stream["document_type"] != "accounts-events" {
		t.Errorf("document_type label = %q", stream.Stream["document_type"])
	}
	if len(stream.Values) != 1 || len(stream.Values[0]) != 2 {
		t.Fatalf("values = %v", stream.Values)
	}
	wantTS := time.Date(2024, 3, 1, 10, 5, 30, 0, time.UTC)
	if got := stream.Values[0][0]; got != "1709287530000000000" {
		t.Errorf("timestamp = %q, want %d", got, wantTS.UnixNano())
	}
	if stream.Values[0][1] != string(raw) {
		t.Errorf("log line = %q, want the raw ping", stream.Values[0][1])
	}
}

func TestPushPingJSON_UnparseableFallsBackToRawLine(t *testing.T) {
	srv, requests := pushCaptureServer(t, http.StatusNoContent)

	raw := []byte("not json at all")
	if err := PushPingJSON(context.Background(), srv.URL, raw); err != nil {
		t.Fatalf("PushPingJSON: %v", err)
	}

	got := requests()
	if len(got) != 1 || len(got[0].Streams) != 1 {
		t.Fatalf("push requests = %+v", got)
	}
	stream := got[0].Streams[0]
	if len(stream.Stream) != 1 || stream.Stream["job"] != "accounts-telemetry" {
		t.Errorf("labels = %v, want only the job label", stream.Stream)
	}
	if stream.Values[0][1] != "not json at all" {
		t.Errorf("log line = %q", stream.Values[0][1])
	}
}

func TestPushLine_SanitizesLabels(t *testing.T) {
	srv, requests := pushCaptureServer(t, http.StatusNoContent)

	labels := map[string]string{"document_type": "accounts events!", "empty": "  "}
	if err := PushLine(context.Background(), srv.URL, time.Now(), "line", labels); err != nil {
		t.Fatalf("PushLine: %v", err)
	}

	stream := requests()[0].Streams[0]
	if got := stream.Stream["document_type"]; got != "accounts_events_" {
		t.Errorf("document_type label = %q, want sanitized value", got)
	}
	if _, ok := stream.Stream["empty"]; ok {
		t.Error("empty label value was not dropped")
	}
}

func TestPushLine_Errors(t *testing.T) {
	if err := PushLine(context.Background(), "", time.Now(), "line", nil); err == nil {
		t.Error("PushLine accepted an empty base URL")
	}

	srv, _ := pushCaptureServer(t, http.StatusInternalServerError)
	if err := PushLine(context.Background(), srv.URL, time.Now(), "line", nil); err == nil {
		t.Error("PushLine returned nil on 500")
	}
}
