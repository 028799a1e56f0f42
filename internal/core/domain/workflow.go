package domain

// EdgeCategory types a workflow edge: plain ordering, parallel join/split,
// or exclusive choice.
type EdgeCategory string

const (
	EdgeSequence EdgeCategory = "SEQUENCE"
	EdgeAnd      EdgeCategory = "AND"
	EdgeXor      EdgeCategory = "XOR"
)

// Workflow is one discovered process (the sub-graph of activities executed
// under a single owning action).
type Workflow struct {
	ElementHeader `bson:",inline"`

	OwnerID        string   `json:"owner_id,omitempty" bson:"owner_id,omitempty"`
	ControlFlowIDs []string `json:"control_flow_ids,omitempty" bson:"control_flow_ids,omitempty"`
}

// NewWorkflow builds a Workflow owned by rootID.
func NewWorkflow(rootID, name string) *Workflow {
	w := &Workflow{
		ElementHeader: ElementHeader{Type: KindWorkflow, RootID: rootID, Name: name, Description: name},
	}
	w.EnsureID()
	return w
}

// WorkflowNode is one activity inside a Workflow, bound to the Action that
// implements it. TaskCounter records how many tasks mapped onto the node.
type WorkflowNode struct {
	ElementHeader `bson:",inline"`

	ParentID    string `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	ActionID    string `json:"action_id,omitempty" bson:"action_id,omitempty"`
	Agent       string `json:"agent,omitempty" bson:"agent,omitempty"`
	TaskCounter int    `json:"task_counter" bson:"task_counter"`
}

// NewWorkflowNode builds a node inside the given workflow.
func NewWorkflowNode(rootID, workflowID, name string) *WorkflowNode {
	n := &WorkflowNode{
		ElementHeader: ElementHeader{Type: KindWorkflowNode, RootID: rootID, Name: name, Description: name},
		ParentID:      workflowID,
	}
	n.EnsureID()
	return n
}

// WorkflowEdge connects workflow nodes. Weight counts traversals across all
// cases; Support is the fraction of cases that included the edge.
type WorkflowEdge struct {
	ElementHeader `bson:",inline"`

	ParentID            string       `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	SourceIDs           []string     `json:"source_ids" bson:"source_ids"`
	DestinationIDs      []string     `json:"destination_ids" bson:"destination_ids"`
	SourceCategory      EdgeCategory `json:"source_category" bson:"source_category"`
	DestinationCategory EdgeCategory `json:"destination_category" bson:"destination_category"`
	Weight              int          `json:"weight" bson:"weight"`
	Support             float64      `json:"support,omitempty" bson:"support,omitempty"`
}

// NewWorkflowEdge builds an edge inside the given workflow.
func NewWorkflowEdge(rootID, workflowID string, sourceIDs, destinationIDs []string) *WorkflowEdge {
	e := &WorkflowEdge{
		ElementHeader:       ElementHeader{Type: KindWorkflowEdge, RootID: rootID},
		ParentID:            workflowID,
		SourceIDs:           sourceIDs,
		DestinationIDs:      destinationIDs,
		SourceCategory:      EdgeSequence,
		DestinationCategory: EdgeSequence,
		Weight:              1,
	}
	e.EnsureID()
	return e
}

// TraceWorkflow bundles the complete discovered process model for a trace
// or trace group: the actions, workflows, nodes and edges produced by one
// discovery run.
type TraceWorkflow struct {
	ElementHeader `bson:",inline"`

	ActionIDs       []string `json:"action_ids,omitempty" bson:"action_ids,omitempty"`
	WorkflowIDs     []string `json:"workflow_ids,omitempty" bson:"workflow_ids,omitempty"`
	WorkflowNodeIDs []string `json:"workflow_node_ids,omitempty" bson:"workflow_node_ids,omitempty"`
	WorkflowEdgeIDs []string `json:"workflow_edge_ids,omitempty" bson:"workflow_edge_ids,omitempty"`
	TotalCases      int      `json:"total_cases" bson:"total_cases"`
	TotalVariants   int      `json:"total_variants" bson:"total_variants"`
}

// NewTraceWorkflow builds the bundle owned by the trace or group it was
// discovered from.
func NewTraceWorkflow(rootID string) *TraceWorkflow {
	tw := &TraceWorkflow{
		ElementHeader: ElementHeader{Type: KindTraceWorkflow, RootID: rootID, Name: "workflow:" + rootID},
	}
	tw.EnsureID()
	return tw
}
