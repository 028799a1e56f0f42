package plugins

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// CausalDiscoveryLight derives a hierarchical process model from task
// sequences with a light Alpha-Miner pass: activities and their direct
// successions are mined per case (trace), relations are typed into
// SEQUENCE/AND/XOR gateways, and the resulting graph is persisted as a
// TraceWorkflow with its Actions, Workflows, WorkflowNodes and
// WorkflowEdges plus per-node task-counter metrics.
type CausalDiscoveryLight struct{}

func NewCausalDiscoveryLight() *CausalDiscoveryLight { return &CausalDiscoveryLight{} }

func (p *CausalDiscoveryLight) InputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "A single trace ID to analyze"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "An ID for a group of traces to analyze together"},
		{Name: "trace_ids", Type: analytics.FieldArray, Required: false, Description: "An explicit list of trace IDs to analyze", ArrayType: fieldTypePtr(analytics.FieldString)},
		{Name: "use_agent_in_analysis", Type: analytics.FieldBoolean, Required: false, Description: "Group the discovered workflow by agent"},
	}}
}

func (p *CausalDiscoveryLight) OutputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace this analytic was run on"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group this analytic was run on"},
		{Name: "trace_workflow", Type: analytics.FieldAny, Required: true, Description: "The discovered process model"},
	}}
}

func (p *CausalDiscoveryLight) Execute(ctx context.Context, analyticsID string, dm ports.DataManager, input map[string]any, config map[string]any) (*analytics.ExecutionResult, error) {
	traceID, _ := input["trace_id"].(string)
	traceGroupID, _ := input["trace_group_id"].(string)
	traceIDs := stringSlice(input["trace_ids"])
	useAgent, _ := input["use_agent_in_analysis"].(bool)

	inputCount := 0
	for _, present := range []bool{traceID != "", traceGroupID != "", len(traceIDs) > 0} {
		if present {
			inputCount++
		}
	}
	if inputCount != 1 {
		return inputFailure(analyticsID,
			"Exactly one of trace_id, trace_group_id, or trace_ids must be provided."), nil
	}

	rootID := traceID
	idsToProcess := traceIDs
	switch {
	case traceGroupID != "":
		rootID = traceGroupID
		group, err := dm.GetByID(ctx, traceGroupID, domain.KindTraceGroup, "")
		if err != nil {
			return nil, err
		}
		if group == nil || len(group.(*domain.TraceGroup).TracesIDs) == 0 {
			return dataFailure(analyticsID, "Trace group not found or is empty."), nil
		}
		idsToProcess = group.(*domain.TraceGroup).TracesIDs
	case traceID != "":
		idsToProcess = []string{traceID}
	default:
		rootID = traceIDs[0]
	}

	var allTasks []*domain.Task
	for _, id := range idsToProcess {
		tasks, err := dm.GetTasksForTrace(ctx, id)
		if err != nil {
			return nil, err
		}
		allTasks = append(allTasks, tasks...)
	}
	if len(allTasks) == 0 {
		return dataFailure(analyticsID, "No tasks found for the provided trace ID(s)."), nil
	}

	model := mineProcessModel(allTasks, useAgent)
	bundle := buildWorkflowElements(model, rootID, analyticsID)

	elems := make([]domain.Element, 0,
		len(bundle.actions)+len(bundle.workflows)+len(bundle.nodes)+len(bundle.edges)+len(bundle.metrics)+1)
	for _, a := range bundle.actions {
		elems = append(elems, a)
	}
	for _, w := range bundle.workflows {
		elems = append(elems, w)
	}
	for _, n := range bundle.nodes {
		elems = append(elems, n)
	}
	for _, e := range bundle.edges {
		elems = append(elems, e)
	}
	for _, m := range bundle.metrics {
		elems = append(elems, m)
	}
	elems = append(elems, bundle.traceWorkflow)
	if _, err := dm.BulkStore(ctx, elems, true); err != nil {
		return nil, fmt.Errorf("store workflow elements: %w", err)
	}

	output := map[string]any{"trace_workflow": elementToMap(bundle.traceWorkflow)}
	if traceGroupID != "" {
		output["trace_group_id"] = traceGroupID
	} else if traceID != "" {
		output["trace_id"] = traceID
	}
	return successResult(analyticsID, output), nil
}

// activity is one unique node of the mined process graph.
type activity struct {
	name  string
	agent string
}

func (a activity) String() string {
	if a.agent != "" {
		return a.agent + ":" + a.name
	}
	return a.name
}

// succession counts a directed direct-follows relation.
type succession struct {
	frequency int
	caseIDs   map[string]bool
}

// processModel is the mined footprint: activities, direct successions and
// the case statistics needed for support computation.
type processModel struct {
	activities    []activity
	taskCounts    map[activity]int
	successions   map[[2]activity]*succession
	starts        map[activity]int
	ends          map[activity]int
	totalCases    int
	totalVariants int
}

// mineProcessModel builds per-case activity sequences from child tasks in
// start-time order and derives the direct-follows footprint.
func mineProcessModel(tasks []*domain.Task, useAgent bool) *processModel {
	byCase := make(map[string][]*domain.Task)
	var caseOrder []string
	for _, task := range tasks {
		if task.ParentID == "" {
			continue
		}
		caseID := task.LogReference.TraceID
		if _, seen := byCase[caseID]; !seen {
			caseOrder = append(caseOrder, caseID)
		}
		byCase[caseID] = append(byCase[caseID], task)
	}

	model := &processModel{
		taskCounts:  make(map[activity]int),
		successions: make(map[[2]activity]*succession),
		starts:      make(map[activity]int),
		ends:        make(map[activity]int),
	}
	seenActivity := make(map[activity]bool)
	variants := make(map[string]bool)

	for _, caseID := range caseOrder {
		caseTasks := byCase[caseID]
		sort.Slice(caseTasks, func(i, j int) bool {
			return caseTasks[i].StartTime.Before(caseTasks[j].StartTime)
		})

		sequence := make([]activity, 0, len(caseTasks))
		for _, task := range caseTasks {
			act := activity{name: shortTaskName(task.Name)}
			if useAgent {
				if role, ok := task.Attributes["crewai.agent.role"].(string); ok {
					act.agent = role
				}
			}
			sequence = append(sequence, act)
			model.taskCounts[act]++
			if !seenActivity[act] {
				seenActivity[act] = true
				model.activities = append(model.activities, act)
			}
		}
		if len(sequence) == 0 {
			continue
		}

		model.totalCases++
		model.starts[sequence[0]]++
		model.ends[sequence[len(sequence)-1]]++

		variantParts := make([]string, len(sequence))
		for i, act := range sequence {
			variantParts[i] = act.String()
		}
		variants[strings.Join(variantParts, ",")] = true

		for i := 0; i+1 < len(sequence); i++ {
			key := [2]activity{sequence[i], sequence[i+1]}
			s, ok := model.successions[key]
			if !ok {
				s = &succession{caseIDs: make(map[string]bool)}
				model.successions[key] = s
			}
			s.frequency++
			s.caseIDs[caseID] = true
		}
	}
	model.totalVariants = len(variants)
	return model
}

// gatewayFor types the outgoing edges of a source activity: a single
// successor is a SEQUENCE; multiple successors are AND when observed in
// both orders relative to each other (parallel), XOR otherwise.
func (m *processModel) gatewayFor(source activity) domain.EdgeCategory {
	var successors []activity
	for key := range m.successions {
		if key[0] == source {
			successors = append(successors, key[1])
		}
	}
	if len(successors) <= 1 {
		return domain.EdgeSequence
	}
	for i := 0; i < len(successors); i++ {
		for j := i + 1; j < len(successors); j++ {
			forward := m.successions[[2]activity{successors[i], successors[j]}]
			backward := m.successions[[2]activity{successors[j], successors[i]}]
			if forward != nil && backward != nil {
				return domain.EdgeAnd
			}
		}
	}
	return domain.EdgeXor
}

// workflowBundle is the set of elements persisted for one discovery run.
type workflowBundle struct {
	actions       []*domain.Action
	workflows     []*domain.Workflow
	nodes         []*domain.WorkflowNode
	edges         []*domain.WorkflowEdge
	metrics       []*domain.Metric
	traceWorkflow *domain.TraceWorkflow
}

// buildWorkflowElements materializes the mined model into persistable
// elements with deterministic ids so re-discovery is idempotent.
func buildWorkflowElements(model *processModel, rootID, analyticsID string) *workflowBundle {
	bundle := &workflowBundle{}

	workflow := domain.NewWorkflow(rootID, "workflow:"+rootID)
	workflow.ElementID = fmt.Sprintf("Workflow:%s", rootID)
	workflow.PluginMetadataID = analyticsID
	bundle.workflows = append(bundle.workflows, workflow)

	nodeByActivity := make(map[activity]*domain.WorkflowNode, len(model.activities))
	for _, act := range model.activities {
		action := domain.NewAction(
			fmt.Sprintf("Action:%s:%s", rootID, act.String()), act.name, act.name)
		action.Description = act.name
		action.InputSchema = domain.SchemaUnknown
		action.OutputSchema = domain.SchemaUnknown
		action.IsGenerated = true
		action.PluginMetadataID = analyticsID
		bundle.actions = append(bundle.actions, action)

		node := domain.NewWorkflowNode(rootID, workflow.ElementID,
			fmt.Sprintf("WorkflowNode:%s#%s", rootID, act.String()))
		node.ElementID = node.Name
		node.ActionID = action.ElementID
		node.Agent = act.agent
		node.TaskCounter = model.taskCounts[act]
		node.PluginMetadataID = analyticsID
		bundle.nodes = append(bundle.nodes, node)
		nodeByActivity[act] = node

		metric := domain.NewNumericMetric(rootID,
			fmt.Sprintf("task_counter:%s", act.String()), float64(model.taskCounts[act]))
		metric.ElementID = fmt.Sprintf("Metric:task_counter:%s:%s", rootID, act.String())
		metric.PluginMetadataID = analyticsID
		metric.AddRelatedTo(node.ElementID, domain.KindWorkflowNode)
		bundle.metrics = append(bundle.metrics, metric)
	}

	keys := make([][2]activity, 0, len(model.successions))
	for key := range model.successions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i][0].String()+"|"+keys[i][1].String() < keys[j][0].String()+"|"+keys[j][1].String()
	})

	for _, key := range keys {
		s := model.successions[key]
		source := nodeByActivity[key[0]]
		destination := nodeByActivity[key[1]]
		edge := domain.NewWorkflowEdge(rootID, workflow.ElementID,
			[]string{source.ElementID}, []string{destination.ElementID})
		edge.ElementID = fmt.Sprintf("WorkflowEdge:%s:%s->%s", rootID, key[0].String(), key[1].String())
		edge.Name = edge.ElementID
		edge.SourceCategory = model.gatewayFor(key[0])
		edge.Weight = s.frequency
		edge.Support = float64(len(s.caseIDs)) / float64(maxInt(model.totalCases, 1))
		edge.PluginMetadataID = analyticsID
		bundle.edges = append(bundle.edges, edge)
		workflow.ControlFlowIDs = append(workflow.ControlFlowIDs, edge.ElementID)
	}

	traceWorkflow := domain.NewTraceWorkflow(rootID)
	traceWorkflow.ElementID = fmt.Sprintf("TraceWorkflow:%s", rootID)
	traceWorkflow.PluginMetadataID = analyticsID
	traceWorkflow.TotalCases = model.totalCases
	traceWorkflow.TotalVariants = model.totalVariants
	for _, a := range bundle.actions {
		traceWorkflow.ActionIDs = append(traceWorkflow.ActionIDs, a.ElementID)
	}
	for _, w := range bundle.workflows {
		traceWorkflow.WorkflowIDs = append(traceWorkflow.WorkflowIDs, w.ElementID)
	}
	for _, n := range bundle.nodes {
		traceWorkflow.WorkflowNodeIDs = append(traceWorkflow.WorkflowNodeIDs, n.ElementID)
	}
	for _, e := range bundle.edges {
		traceWorkflow.WorkflowEdgeIDs = append(traceWorkflow.WorkflowEdgeIDs, e.ElementID)
	}
	bundle.traceWorkflow = traceWorkflow
	return bundle
}
