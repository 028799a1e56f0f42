package domain

import "time"

// Trace groups all spans sharing one trace id. Created exclusively by the
// ingestion path and queried afterwards, never mutated.
type Trace struct {
	ElementHeader `bson:",inline"`

	ServiceName string         `json:"service_name,omitempty" bson:"service_name,omitempty"`
	StartTime   time.Time      `json:"start_time" bson:"start_time"`
	EndTime     time.Time      `json:"end_time" bson:"end_time"`
	NumOfSpans  int            `json:"num_of_spans" bson:"num_of_spans"`
	AgentIDs    []string       `json:"agent_ids,omitempty" bson:"agent_ids,omitempty"`
	Failures    map[string]int `json:"failures,omitempty" bson:"failures,omitempty"`
}

// NewTrace builds a Trace element keyed by its trace id.
func NewTrace(traceID string) *Trace {
	return &Trace{
		ElementHeader: ElementHeader{
			ElementID: traceID,
			Type:      KindTrace,
			Name:      traceID,
		},
	}
}

// Duration returns the wall-clock span of the trace.
func (t *Trace) Duration() time.Duration { return t.EndTime.Sub(t.StartTime) }

// TraceGroup is a user-created, mutable set of traces. Aggregate metrics
// computed for the group use the group id as their root.
type TraceGroup struct {
	ElementHeader `bson:",inline"`

	ServiceName string   `json:"service_name,omitempty" bson:"service_name,omitempty"`
	TracesIDs   []string `json:"traces_ids" bson:"traces_ids"`

	// Aggregate stats recomputed on demand from member traces.
	AvgDurationMillis float64 `json:"avg_duration_ms,omitempty" bson:"avg_duration_ms,omitempty"`
	SuccessRate       float64 `json:"success_rate,omitempty" bson:"success_rate,omitempty"`
	FailureCount      int     `json:"failure_count,omitempty" bson:"failure_count,omitempty"`
}

// NewTraceGroup builds a group with a generated id.
func NewTraceGroup(name, serviceName string, traceIDs []string) *TraceGroup {
	g := &TraceGroup{
		ElementHeader: ElementHeader{Type: KindTraceGroup, Name: name},
		ServiceName:   serviceName,
		TracesIDs:     traceIDs,
	}
	g.EnsureID()
	return g
}

// TotalTraces returns the number of member traces.
func (g *TraceGroup) TotalTraces() int { return len(g.TracesIDs) }
