// Package loki pushes ping envelopes to Grafana Loki as labeled log lines.
// Used by cmd/worker to land Kafka-forwarded pings in the log store.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters Loki labels cannot carry.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// pingFields is the slice of the envelope JSON needed for stream labels.
type pingFields struct {
	DocumentNamespace string `json:"document_namespace"`
	DocumentType      string `json:"document_type"`
	Payload           string `json:"payload"`
}

// payloadTimes is the slice of the ping payload needed for the entry timestamp.
type payloadTimes struct {
	PingInfo struct {
		EndTime string `json:"end_time"`
	} `json:"ping_info"`
}

// PushPingJSON parses a ping envelope (Kafka message value), extracts labels
// and the ping end time, and pushes the raw line to Loki. If parsing fails,
// the raw line is pushed with the current time and no extra labels.
func PushPingJSON(ctx context.Context, baseURL string, rawJSON []byte) error {
	line := string(rawJSON)
	labels := map[string]string{}
	ts := time.Now().UTC()
	var fields pingFields
	if err := json.Unmarshal(rawJSON, &fields); err == nil {
		if fields.DocumentNamespace != "" {
			labels["document_namespace"] = fields.DocumentNamespace
		}
		if fields.DocumentType != "" {
			labels["document_type"] = fields.DocumentType
		}
		var times payloadTimes
		if err := json.Unmarshal([]byte(fields.Payload), &times); err == nil {
			if t, err := time.Parse(time.RFC3339Nano, times.PingInfo.EndTime); err == nil {
				ts = t
			} else if t, err := time.Parse(time.RFC3339, times.PingInfo.EndTime); err == nil {
				ts = t
			}
		}
	}
	return PushLine(ctx, baseURL, ts, line, labels)
}

// PushLine sends a single log line to Loki at baseURL (e.g.
// http://localhost:3100). labels are added to the stream on top of the fixed
// job label. Returns an error if the HTTP request fails or Loki responds
// non-2xx.
func PushLine(ctx context.Context, baseURL string, timestamp time.Time, line string, labels map[string]string) error {
	if baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = "accounts-telemetry"
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
