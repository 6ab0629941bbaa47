package telemetry

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const metricsExport = `{
	"resourceMetrics": [{
		"scopeMetrics": [{
			"metrics": [{
				"name": "claude_code.token.usage",
				"sum": {
					"dataPoints": [{
						"timeUnixNano": "1700000000000000000",
						"asInt": "500",
						"attributes": [{"key": "type", "value": {"stringValue": "output"}}]
					}]
				}
			}]
		}]
	}]
}`

func TestCollector_IngestMetrics(t *testing.T) {
	s := newTestStore(t)
	c := NewCollector(s, "127.0.0.1:0")

	req := httptest.NewRequest("POST", "/v1/metrics", strings.NewReader(metricsExport))
	rec := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	got, err := s.MetricsByPrefix(context.Background(), MetricPrefix, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != 500 {
		t.Fatalf("metric not stored: %+v", got)
	}
}

func TestCollector_IngestGzipBody(t *testing.T) {
	s := newTestStore(t)
	c := NewCollector(s, "127.0.0.1:0")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(metricsExport)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/v1/metrics", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	got, err := s.MetricsByPrefix(context.Background(), MetricPrefix, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("gzip body not ingested: %+v", got)
	}
}

func TestCollector_RejectsInvalidJSON(t *testing.T) {
	s := newTestStore(t)
	c := NewCollector(s, "127.0.0.1:0")

	req := httptest.NewRequest("POST", "/v1/metrics", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCollector_IngestLogs(t *testing.T) {
	s := newTestStore(t)
	c := NewCollector(s, "127.0.0.1:0")

	payload := `{
		"resourceLogs": [{
			"scopeLogs": [{
				"logRecords": [{
					"timeUnixNano": "1700000000000000000",
					"attributes": [{"key": "event.name", "value": {"stringValue": "claude_code.api_request"}}]
				}]
			}]
		}]
	}`

	req := httptest.NewRequest("POST", "/v1/logs", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	got, err := s.EventsByPrefix(context.Background(), MetricPrefix, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != EventAPIRequest {
		t.Fatalf("event not stored: %+v", got)
	}
}

func TestCollector_Health(t *testing.T) {
	s := newTestStore(t)
	c := NewCollector(s, "127.0.0.1:0")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != 200 || rec.Body.String() != "OK" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
}
