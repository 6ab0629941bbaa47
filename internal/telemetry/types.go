// Package telemetry ingests live OTLP JSON exports into a local sqlite
// store and reads them back as usage snapshots.
package telemetry

import (
	"strconv"
	"strings"
)

// MetricPrefix selects the instrumentation namespace this collector cares
// about; everything else is dropped at ingest.
const MetricPrefix = "claude_code."

// Metric names emitted by the instrumented CLI.
const (
	MetricTokenUsage   = "claude_code.token.usage"
	MetricCostUsage    = "claude_code.cost.usage"
	MetricSessionCount = "claude_code.session.count"
	EventAPIRequest    = "claude_code.api_request"
)

// Wire types below cover the OTLP/HTTP JSON subset the CLI exporter
// produces. OTLP encodes int64 values as strings.

type ExportMetricsRequest struct {
	ResourceMetrics []ResourceMetrics `json:"resourceMetrics"`
}

type ResourceMetrics struct {
	Resource     *Resource      `json:"resource"`
	ScopeMetrics []ScopeMetrics `json:"scopeMetrics"`
}

type Resource struct {
	Attributes []KeyValue `json:"attributes"`
}

type ScopeMetrics struct {
	Metrics []WireMetric `json:"metrics"`
}

type WireMetric struct {
	Name  string `json:"name"`
	Sum   *Sum   `json:"sum"`
	Gauge *Gauge `json:"gauge"`
}

type Sum struct {
	DataPoints []NumberDataPoint `json:"dataPoints"`
}

type Gauge struct {
	DataPoints []NumberDataPoint `json:"dataPoints"`
}

type NumberDataPoint struct {
	Attributes   []KeyValue `json:"attributes"`
	TimeUnixNano string     `json:"timeUnixNano"`
	AsDouble     *float64   `json:"asDouble"`
	AsInt        string     `json:"asInt"`
}

type ExportLogsRequest struct {
	ResourceLogs []ResourceLogs `json:"resourceLogs"`
}

type ResourceLogs struct {
	Resource  *Resource   `json:"resource"`
	ScopeLogs []ScopeLogs `json:"scopeLogs"`
}

type ScopeLogs struct {
	LogRecords []LogRecord `json:"logRecords"`
}

type LogRecord struct {
	TimeUnixNano         string     `json:"timeUnixNano"`
	ObservedTimeUnixNano string     `json:"observedTimeUnixNano"`
	Attributes           []KeyValue `json:"attributes"`
}

type KeyValue struct {
	Key   string    `json:"key"`
	Value *AnyValue `json:"value"`
}

type AnyValue struct {
	StringValue *string  `json:"stringValue"`
	BoolValue   *bool    `json:"boolValue"`
	IntValue    *string  `json:"intValue"`
	DoubleValue *float64 `json:"doubleValue"`
}

// Metric is a flattened data point ready for storage.
type Metric struct {
	Name        string
	TimestampNS int64
	Value       float64
	Attributes  map[string]string
}

// Event is a flattened log record ready for storage.
type Event struct {
	Name        string
	TimestampNS int64
	Attributes  map[string]string
}

func (kv KeyValue) stringValue() (string, bool) {
	v := kv.Value
	if v == nil {
		return "", false
	}
	switch {
	case v.StringValue != nil:
		return *v.StringValue, true
	case v.IntValue != nil:
		return *v.IntValue, true
	case v.DoubleValue != nil:
		return strconv.FormatFloat(*v.DoubleValue, 'f', -1, 64), true
	case v.BoolValue != nil:
		return strconv.FormatBool(*v.BoolValue), true
	}
	return "", false
}

func attributeMap(kvs []KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if v, ok := kv.stringValue(); ok {
			m[kv.Key] = v
		}
	}
	return m
}

func (p NumberDataPoint) value() float64 {
	if p.AsDouble != nil {
		return *p.AsDouble
	}
	if n, err := strconv.ParseInt(p.AsInt, 10, 64); err == nil {
		return float64(n)
	}
	return 0
}

func (p NumberDataPoint) timestampNS() int64 {
	n, _ := strconv.ParseInt(p.TimeUnixNano, 10, 64)
	return n
}

func (r LogRecord) timestampNS() int64 {
	ts := r.TimeUnixNano
	if ts == "" {
		ts = r.ObservedTimeUnixNano
	}
	n, _ := strconv.ParseInt(ts, 10, 64)
	return n
}

func (r LogRecord) eventName() string {
	for _, kv := range r.Attributes {
		if kv.Key == "event.name" {
			if v, ok := kv.stringValue(); ok {
				return v
			}
		}
	}
	return ""
}

// ExtractMetrics flattens an OTLP export into storable rows, merging
// resource attributes under the data point's own and dropping metrics
// outside the namespace.
func ExtractMetrics(req ExportMetricsRequest) []Metric {
	var out []Metric

	for _, rm := range req.ResourceMetrics {
		var resourceAttrs map[string]string
		if rm.Resource != nil {
			resourceAttrs = attributeMap(rm.Resource.Attributes)
		}

		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if !hasPrefix(m.Name) {
					continue
				}
				var points []NumberDataPoint
				if m.Sum != nil {
					points = m.Sum.DataPoints
				} else if m.Gauge != nil {
					points = m.Gauge.DataPoints
				}
				for _, p := range points {
					attrs := mergeAttrs(resourceAttrs, attributeMap(p.Attributes))
					out = append(out, Metric{
						Name:        m.Name,
						TimestampNS: p.timestampNS(),
						Value:       p.value(),
						Attributes:  attrs,
					})
				}
			}
		}
	}
	return out
}

// ExtractEvents flattens an OTLP logs export. Only records carrying an
// in-namespace event.name attribute survive.
func ExtractEvents(req ExportLogsRequest) []Event {
	var out []Event

	for _, rl := range req.ResourceLogs {
		var resourceAttrs map[string]string
		if rl.Resource != nil {
			resourceAttrs = attributeMap(rl.Resource.Attributes)
		}

		for _, sl := range rl.ScopeLogs {
			for _, rec := range sl.LogRecords {
				name := rec.eventName()
				if !hasPrefix(name) {
					continue
				}
				out = append(out, Event{
					Name:        name,
					TimestampNS: rec.timestampNS(),
					Attributes:  mergeAttrs(resourceAttrs, attributeMap(rec.Attributes)),
				})
			}
		}
	}
	return out
}

func hasPrefix(name string) bool {
	return strings.HasPrefix(name, MetricPrefix)
}

func mergeAttrs(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
