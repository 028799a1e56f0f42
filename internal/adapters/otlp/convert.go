// Package otlp receives OpenTelemetry trace exports over gRPC and
// HTTP+protobuf and transcribes them into the internal span entities.
package otlp

import (
	"encoding/hex"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
)

// staleSpanAge is the cutoff beyond which span timestamps are optionally
// rewritten to yesterday (an import convenience for old log dumps).
const staleSpanAge = 30 * 24 * time.Hour

// ConvertRequest flattens resource spans into domain spans.
func ConvertRequest(resourceSpans []*tracepb.ResourceSpans, rewriteStale bool) []*domain.Span {
	var spans []*domain.Span
	for _, rs := range resourceSpans {
		serviceName := serviceNameOf(rs.GetResource())
		resourceAttrs := attributesToMap(rs.GetResource().GetAttributes())
		for _, ss := range rs.GetScopeSpans() {
			for _, otlpSpan := range ss.GetSpans() {
				span := convertSpan(otlpSpan, serviceName, resourceAttrs)
				if rewriteStale {
					rewriteStaleTimestamps(span)
				}
				spans = append(spans, span)
			}
		}
	}
	return spans
}

func convertSpan(s *tracepb.Span, serviceName string, resourceAttrs map[string]any) *domain.Span {
	traceID := hex.EncodeToString(s.GetTraceId())
	spanID := hex.EncodeToString(s.GetSpanId())

	span := domain.NewSpan(traceID, spanID)
	span.Name = s.GetName()
	span.ParentID = hex.EncodeToString(s.GetParentSpanId())
	span.SpanKind = convertKind(s.GetKind())
	span.StartTime = time.Unix(0, int64(s.GetStartTimeUnixNano())).UTC()
	span.EndTime = time.Unix(0, int64(s.GetEndTimeUnixNano())).UTC()
	span.Status = convertStatus(s.GetStatus())
	span.Resource = domain.SpanResource{
		ServiceName: services.SanitizeServiceName(serviceName),
		Attributes:  resourceAttrs,
	}
	span.RawAttributes = attributesToMap(s.GetAttributes())

	for _, e := range s.GetEvents() {
		span.Events = append(span.Events, domain.SpanEvent{
			Name:       e.GetName(),
			Timestamp:  time.Unix(0, int64(e.GetTimeUnixNano())).UTC(),
			Attributes: attributesToMap(e.GetAttributes()),
		})
	}
	for _, l := range s.GetLinks() {
		span.Links = append(span.Links, domain.SpanLink{
			Context: domain.SpanContext{
				TraceID: hex.EncodeToString(l.GetTraceId()),
				SpanID:  hex.EncodeToString(l.GetSpanId()),
			},
			Attributes: attributesToMap(l.GetAttributes()),
		})
	}
	return span
}

func convertKind(kind tracepb.Span_SpanKind) domain.SpanKind {
	switch kind {
	case tracepb.Span_SPAN_KIND_SERVER:
		return domain.SpanKindServer
	case tracepb.Span_SPAN_KIND_CLIENT:
		return domain.SpanKindClient
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return domain.SpanKindProducer
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return domain.SpanKindConsumer
	default:
		return domain.SpanKindInternal
	}
}

func convertStatus(status *tracepb.Status) domain.SpanStatus {
	switch status.GetCode() {
	case tracepb.Status_STATUS_CODE_OK:
		return domain.SpanStatus{Code: domain.SpanStatusOK, Message: status.GetMessage()}
	case tracepb.Status_STATUS_CODE_ERROR:
		return domain.SpanStatus{Code: domain.SpanStatusError, Message: status.GetMessage()}
	default:
		return domain.SpanStatus{Code: domain.SpanStatusUnset}
	}
}

func serviceNameOf(resource *resourcepb.Resource) string {
	for _, kv := range resource.GetAttributes() {
		if kv.GetKey() == "service.name" {
			return kv.GetValue().GetStringValue()
		}
	}
	return ""
}

func attributesToMap(attrs []*commonpb.KeyValue) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[kv.GetKey()] = anyValue(kv.GetValue())
	}
	return out
}

func anyValue(v *commonpb.AnyValue) any {
	switch value := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return value.StringValue
	case *commonpb.AnyValue_BoolValue:
		return value.BoolValue
	case *commonpb.AnyValue_IntValue:
		return value.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return value.DoubleValue
	case *commonpb.AnyValue_ArrayValue:
		out := make([]any, 0, len(value.ArrayValue.GetValues()))
		for _, item := range value.ArrayValue.GetValues() {
			out = append(out, anyValue(item))
		}
		return out
	case *commonpb.AnyValue_KvlistValue:
		out := make(map[string]any, len(value.KvlistValue.GetValues()))
		for _, item := range value.KvlistValue.GetValues() {
			out[item.GetKey()] = anyValue(item.GetValue())
		}
		return out
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(value.BytesValue)
	}
	return nil
}

// rewriteStaleTimestamps shifts spans older than the cutoff to yesterday,
// preserving duration.
func rewriteStaleTimestamps(span *domain.Span) {
	if time.Since(span.StartTime) < staleSpanAge {
		return
	}
	duration := span.EndTime.Sub(span.StartTime)
	span.StartTime = time.Now().UTC().Add(-24 * time.Hour)
	span.EndTime = span.StartTime.Add(duration)
}
