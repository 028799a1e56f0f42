package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ElementKind is the fully-qualified type discriminator stored with every
// persisted record. The same values are used inside related_to_types so
// back-queries can filter without decoding candidate payloads.
type ElementKind string

const (
	KindTrace          ElementKind = "agent_mentor.Trace"
	KindSpan           ElementKind = "agent_mentor.Span"
	KindTask           ElementKind = "agent_mentor.Task"
	KindAction         ElementKind = "agent_mentor.Action"
	KindMetric         ElementKind = "agent_mentor.Metric"
	KindIssue          ElementKind = "agent_mentor.Issue"
	KindAnnotation     ElementKind = "agent_mentor.Annotation"
	KindRecommendation ElementKind = "agent_mentor.Recommendation"
	KindWorkflow       ElementKind = "agent_mentor.Workflow"
	KindWorkflowNode   ElementKind = "agent_mentor.WorkflowNode"
	KindWorkflowEdge   ElementKind = "agent_mentor.WorkflowEdge"
	KindTraceWorkflow  ElementKind = "agent_mentor.TraceWorkflow"
	KindTraceGroup     ElementKind = "agent_mentor.TraceGroup"

	// Runtime artifacts persisted alongside the entity collections.
	KindExecutionResult ElementKind = "agent_mentor.ExecutionResult"
	KindAnalytics       ElementKind = "agent_mentor.AnalyticsMetadata"
)

// idPrefix returns the prefix used for generated element ids of this kind.
func (k ElementKind) idPrefix() string {
	switch k {
	case KindTrace:
		return "Trace"
	case KindSpan:
		return "Span"
	case KindTask:
		return "Task"
	case KindAction:
		return "Action"
	case KindMetric:
		return "Metric"
	case KindIssue:
		return "Issue"
	case KindAnnotation:
		return "Annotation"
	case KindRecommendation:
		return "Recommendation"
	case KindWorkflow:
		return "Workflow"
	case KindWorkflowNode:
		return "WorkflowNode"
	case KindWorkflowEdge:
		return "WorkflowEdge"
	case KindTraceWorkflow:
		return "TraceWorkflow"
	case KindTraceGroup:
		return "TraceGroup"
	}
	return "Element"
}

// Collection returns the logical collection name backing this kind.
// One collection per artifact kind, per tenant.
func (k ElementKind) Collection() string {
	switch k {
	case KindTrace:
		return "traces"
	case KindSpan:
		return "spans"
	case KindTask:
		return "tasks"
	case KindAction:
		return "actions"
	case KindMetric:
		return "metrics"
	case KindIssue:
		return "issues"
	case KindAnnotation:
		return "annotations"
	case KindRecommendation:
		return "recommendations"
	case KindWorkflow, KindWorkflowNode, KindWorkflowEdge, KindTraceWorkflow:
		return "workflows"
	case KindTraceGroup:
		return "trace_groups"
	case KindExecutionResult:
		return "executor_results"
	case KindAnalytics:
		return "analytics"
	}
	return "elements"
}

// NewElementID generates a process-wide unique id carrying the kind prefix.
func NewElementID(kind ElementKind) string {
	return kind.idPrefix() + "-" + uuid.NewString()
}

var (
	ErrNotFound        = errors.New("element not found")
	ErrRelatedMismatch = errors.New("related_to_ids and related_to_types length mismatch")
)

// ElementHeader carries the fields shared by every persisted artifact.
// RelatedToIDs and RelatedToTypes are parallel slices and must stay the
// same length; use SetRelatedTo / AddRelatedTo to mutate them.
type ElementHeader struct {
	ElementID        string         `json:"element_id" bson:"element_id"`
	Type             ElementKind    `json:"type" bson:"type"`
	RootID           string         `json:"root_id,omitempty" bson:"root_id,omitempty"`
	Name             string         `json:"name,omitempty" bson:"name,omitempty"`
	Description      string         `json:"description,omitempty" bson:"description,omitempty"`
	Tags             []string       `json:"tags,omitempty" bson:"tags,omitempty"`
	Attributes       map[string]any `json:"attributes,omitempty" bson:"attributes,omitempty"`
	PluginMetadataID string         `json:"plugin_metadata_id,omitempty" bson:"plugin_metadata_id,omitempty"`
	RelatedToIDs     []string       `json:"related_to_ids,omitempty" bson:"related_to_ids,omitempty"`
	RelatedToTypes   []ElementKind  `json:"related_to_types,omitempty" bson:"related_to_types,omitempty"`
}

// Element is implemented by every artifact kind.
type Element interface {
	Header() *ElementHeader
	Kind() ElementKind
}

func (h *ElementHeader) Header() *ElementHeader { return h }
func (h *ElementHeader) Kind() ElementKind      { return h.Type }

// EnsureID assigns a generated id when the caller supplied none.
func (h *ElementHeader) EnsureID() {
	if h.ElementID == "" {
		h.ElementID = NewElementID(h.Type)
	}
}

// SetRelatedTo replaces the relation links. The two slices are parallel.
func (h *ElementHeader) SetRelatedTo(ids []string, kinds []ElementKind) error {
	if len(ids) != len(kinds) {
		return fmt.Errorf("%w: %d ids, %d types", ErrRelatedMismatch, len(ids), len(kinds))
	}
	h.RelatedToIDs = ids
	h.RelatedToTypes = kinds
	return nil
}

// AddRelatedTo appends one relation link, keeping the slices parallel.
func (h *ElementHeader) AddRelatedTo(id string, kind ElementKind) {
	h.RelatedToIDs = append(h.RelatedToIDs, id)
	h.RelatedToTypes = append(h.RelatedToTypes, kind)
}

// AddTag appends tags not already present. Tag order is not significant.
func (h *ElementHeader) AddTag(tags ...string) {
	for _, t := range tags {
		found := false
		for _, existing := range h.Tags {
			if existing == t {
				found = true
				break
			}
		}
		if !found {
			h.Tags = append(h.Tags, t)
		}
	}
}

// HasTag reports whether the element carries the given tag.
func (h *ElementHeader) HasTag(tag string) bool {
	for _, t := range h.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SetAttribute stores a free-form attribute, allocating the map on first use.
func (h *ElementHeader) SetAttribute(key string, value any) {
	if h.Attributes == nil {
		h.Attributes = make(map[string]any)
	}
	h.Attributes[key] = value
}

// NewElementOfKind returns a zero value of the concrete type for the kind,
// ready to be decoded into. Unknown kinds return nil.
func NewElementOfKind(kind ElementKind) Element {
	switch kind {
	case KindTrace:
		return &Trace{ElementHeader: ElementHeader{Type: kind}}
	case KindSpan:
		return &Span{ElementHeader: ElementHeader{Type: kind}}
	case KindTask:
		return &Task{ElementHeader: ElementHeader{Type: kind}}
	case KindAction:
		return &Action{ElementHeader: ElementHeader{Type: kind}}
	case KindMetric:
		return &Metric{ElementHeader: ElementHeader{Type: kind}}
	case KindIssue:
		return &Issue{ElementHeader: ElementHeader{Type: kind}}
	case KindAnnotation:
		return &Annotation{ElementHeader: ElementHeader{Type: kind}}
	case KindRecommendation:
		return &Recommendation{ElementHeader: ElementHeader{Type: kind}}
	case KindWorkflow:
		return &Workflow{ElementHeader: ElementHeader{Type: kind}}
	case KindWorkflowNode:
		return &WorkflowNode{ElementHeader: ElementHeader{Type: kind}}
	case KindWorkflowEdge:
		return &WorkflowEdge{ElementHeader: ElementHeader{Type: kind}}
	case KindTraceWorkflow:
		return &TraceWorkflow{ElementHeader: ElementHeader{Type: kind}}
	case KindTraceGroup:
		return &TraceGroup{ElementHeader: ElementHeader{Type: kind}}
	}
	return nil
}
