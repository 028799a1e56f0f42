package domain

import "time"

// TaskKind classifies the semantic unit of work a task represents.
type TaskKind string

const (
	TaskKindLLM      TaskKind = "LLM"
	TaskKindTool     TaskKind = "TOOL"
	TaskKindVectorDB TaskKind = "VECTOR_DB"
	TaskKindAgent    TaskKind = "AGENT"
	TaskKindOther    TaskKind = "OTHER"
)

// TaskState is the lifecycle state reported for the task.
type TaskState string

const (
	TaskStateCreated   TaskState = "CREATED"
	TaskStateRunning   TaskState = "RUNNING"
	TaskStateCompleted TaskState = "COMPLETED"
	TaskStateAborted   TaskState = "ABORTED"
)

// TaskStatus is the reported outcome of the task.
type TaskStatus string

const (
	TaskStatusSuccess TaskStatus = "SUCCESS"
	TaskStatusFailure TaskStatus = "FAILURE"
	TaskStatusUnknown TaskStatus = "UNKNOWN"
)

// Well-known task tags assigned by the extraction visitors.
const (
	TaskTagManual   = "manual"
	TaskTagLLMCall  = "llm_call"
	TaskTagToolCall = "tool_call"
	TaskTagDBCall   = "db_call"
	TaskTagComplex  = "complex"
	TaskTagCrew     = "crew"
	TaskTagCrewTask = "crewai_task"
	TaskTagAgent    = "agent"
)

// TaskInput is the normalized input of a task.
type TaskInput struct {
	Goal         string         `json:"goal,omitempty" bson:"goal,omitempty"`
	Instructions []string       `json:"instructions,omitempty" bson:"instructions,omitempty"`
	Examples     []string       `json:"examples,omitempty" bson:"examples,omitempty"`
	Data         map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// TaskOutput is the normalized output of a task.
type TaskOutput struct {
	Data     map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Ranking  []string       `json:"ranking,omitempty" bson:"ranking,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// LogReference points back to the span a task was extracted from.
type LogReference struct {
	TraceID      string `json:"trace_id" bson:"trace_id"`
	SpanID       string `json:"span_id" bson:"span_id"`
	ParentSpanID string `json:"parent_span_id,omitempty" bson:"parent_span_id,omitempty"`
}

// Task is a semantic unit of work extracted from one or more spans by the
// visitor pipeline. Tasks form a tree per trace via ParentID; DependentIDs
// records sibling prerequisite ordering discovered during extraction.
type Task struct {
	ElementHeader `bson:",inline"`

	TaskKind     TaskKind           `json:"kind,omitempty" bson:"kind,omitempty"`
	State        TaskState          `json:"state,omitempty" bson:"state,omitempty"`
	Status       TaskStatus         `json:"status,omitempty" bson:"status,omitempty"`
	Input        TaskInput          `json:"input,omitempty" bson:"input,omitempty"`
	Output       TaskOutput         `json:"output,omitempty" bson:"output,omitempty"`
	StartTime    time.Time          `json:"start_time" bson:"start_time"`
	EndTime      time.Time          `json:"end_time" bson:"end_time"`
	Events       []SpanEvent        `json:"events,omitempty" bson:"events,omitempty"`
	Issues       []string           `json:"issues,omitempty" bson:"issues,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty" bson:"metrics,omitempty"`
	ParentID     string             `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	DependentIDs []string           `json:"dependent_ids,omitempty" bson:"dependent_ids,omitempty"`
	ActionID     string             `json:"action_id,omitempty" bson:"action_id,omitempty"`
	LogReference LogReference       `json:"log_reference" bson:"log_reference"`

	// Execution metadata reported through the manual gen_ai.task.* schema.
	CodeID          string   `json:"code_id,omitempty" bson:"code_id,omitempty"`
	CodeVendor      string   `json:"code_vendor,omitempty" bson:"code_vendor,omitempty"`
	RequesterID     string   `json:"requester_id,omitempty" bson:"requester_id,omitempty"`
	RequesterType   string   `json:"requester_type,omitempty" bson:"requester_type,omitempty"`
	RequesterRole   string   `json:"requester_role,omitempty" bson:"requester_role,omitempty"`
	RequestID       string   `json:"request_id,omitempty" bson:"request_id,omitempty"`
	SessionID       string   `json:"session_id,omitempty" bson:"session_id,omitempty"`
	Priority        string   `json:"priority,omitempty" bson:"priority,omitempty"`
	DependenciesIDs []string `json:"dependencies_ids,omitempty" bson:"dependencies_ids,omitempty"`
}

// NewTask builds a task owned by the given trace. An empty elementID is
// replaced by a generated Task-<uuid> id.
func NewTask(elementID, traceID string) *Task {
	t := &Task{
		ElementHeader: ElementHeader{
			ElementID: elementID,
			Type:      KindTask,
			RootID:    traceID,
		},
		LogReference: LogReference{TraceID: traceID},
	}
	t.EnsureID()
	return t
}

// SetMetric records a numeric task metric, allocating the map on first use.
func (t *Task) SetMetric(name string, value float64) {
	if t.Metrics == nil {
		t.Metrics = make(map[string]float64)
	}
	t.Metrics[name] = value
}
