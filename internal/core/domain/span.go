package domain

import "time"

// SpanKind mirrors the OpenTelemetry span kind of the source span.
type SpanKind string

const (
	SpanKindInternal SpanKind = "INTERNAL"
	SpanKindServer   SpanKind = "SERVER"
	SpanKindClient   SpanKind = "CLIENT"
	SpanKindProducer SpanKind = "PRODUCER"
	SpanKindConsumer SpanKind = "CONSUMER"
)

// SpanStatusCode is the OTel status of the source span.
type SpanStatusCode string

const (
	SpanStatusUnset SpanStatusCode = "UNSET"
	SpanStatusOK    SpanStatusCode = "OK"
	SpanStatusError SpanStatusCode = "ERROR"
)

// SpanContext identifies a span inside its trace.
type SpanContext struct {
	TraceID string `json:"trace_id" bson:"trace_id"`
	SpanID  string `json:"span_id" bson:"span_id"`
}

// SpanStatus carries the status code plus an optional message.
type SpanStatus struct {
	Code    SpanStatusCode `json:"code" bson:"code"`
	Message string         `json:"message,omitempty" bson:"message,omitempty"`
}

// SpanEvent is a timestamped event attached to a span.
type SpanEvent struct {
	Name       string         `json:"name" bson:"name"`
	Timestamp  time.Time      `json:"timestamp" bson:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

// SpanLink references another span context.
type SpanLink struct {
	Context    SpanContext    `json:"context" bson:"context"`
	Attributes map[string]any `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

// SpanResource describes the emitting service.
type SpanResource struct {
	ServiceName string         `json:"service_name,omitempty" bson:"service_name,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

// Span is the persisted form of one ingested OpenTelemetry span. Spans are
// written exclusively by the ingestion path and never mutated afterwards.
type Span struct {
	ElementHeader `bson:",inline"`

	Context       SpanContext    `json:"context" bson:"context"`
	ParentID      string         `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	SpanKind      SpanKind       `json:"kind" bson:"kind"`
	StartTime     time.Time      `json:"start_time" bson:"start_time"`
	EndTime       time.Time      `json:"end_time" bson:"end_time"`
	Status        SpanStatus     `json:"status" bson:"status"`
	Resource      SpanResource   `json:"resource" bson:"resource"`
	RawAttributes map[string]any `json:"raw_attributes,omitempty" bson:"raw_attributes,omitempty"`
	Events        []SpanEvent    `json:"events,omitempty" bson:"events,omitempty"`
	Links         []SpanLink     `json:"links,omitempty" bson:"links,omitempty"`
}

// NewSpan builds a Span element keyed by its span id.
func NewSpan(traceID, spanID string) *Span {
	return &Span{
		ElementHeader: ElementHeader{
			ElementID: spanID,
			Type:      KindSpan,
			RootID:    traceID,
		},
		Context: SpanContext{TraceID: traceID, SpanID: spanID},
	}
}

// ServiceName returns the resource service name, if any.
func (s *Span) ServiceName() string { return s.Resource.ServiceName }

// DurationMillis returns the span duration in milliseconds.
func (s *Span) DurationMillis() float64 {
	if s.EndTime.IsZero() || s.StartTime.IsZero() {
		return 0
	}
	return float64(s.EndTime.Sub(s.StartTime)) / float64(time.Millisecond)
}

// StringAttribute returns the raw attribute as a string when present.
func (s *Span) StringAttribute(key string) (string, bool) {
	v, ok := s.RawAttributes[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// HasAttribute reports whether the raw attribute is present.
func (s *Span) HasAttribute(key string) bool {
	_, ok := s.RawAttributes[key]
	return ok
}
