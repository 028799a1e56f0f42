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

const (
	defaultMinOccurrences = 2
	maxCycleSearchDepth   = 100
)

// CycleDetector finds cycles in the task dependency graph where at least
// one task name repeats, keeps only the maximal ones, and emits one
// WARNING issue per cycle.
type CycleDetector struct{}

func NewCycleDetector() *CycleDetector { return &CycleDetector{} }

func (p *CycleDetector) InputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Single trace ID to analyze"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group to run this analytic on"},
		{Name: "min_occurrences", Type: analytics.FieldInteger, Required: false, Description: "Minimum repetitions of a task name inside a cycle"},
	}}
}

func (p *CycleDetector) OutputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_id", Type: analytics.FieldString, Required: false, Description: "Single trace ID when processing a single trace"},
		{Name: "trace_group_id", Type: analytics.FieldString, Required: false, Description: "Id of the trace group this analytic was run on"},
		{Name: "issues", Type: analytics.FieldArray, Required: true, Description: "List of extracted issues", ArrayType: fieldTypePtr(analytics.FieldAny)},
		{Name: "new_issues_id", Type: analytics.FieldArray, Required: false, Description: "Element ids of the created issues", ArrayType: fieldTypePtr(analytics.FieldString)},
	}}
}

func (p *CycleDetector) Execute(ctx context.Context, analyticsID string, dm ports.DataManager, input map[string]any, config map[string]any) (*analytics.ExecutionResult, error) {
	traceID, _ := input["trace_id"].(string)
	traceGroupID, _ := input["trace_group_id"].(string)
	if traceID == "" && traceGroupID == "" {
		return inputFailure(analyticsID,
			"No relevant input provided for the analytics (neither trace_id nor trace_group_id is given)"), nil
	}

	minOccurrences := int64(defaultMinOccurrences)
	if v, ok := intConfig(config, "min_occurrences"); ok && v > 0 {
		minOccurrences = v
	}
	if v, ok := intConfig(input, "min_occurrences"); ok && v > 0 {
		minOccurrences = v
	}

	traceIDs := []string{traceID}
	if traceGroupID != "" {
		group, err := dm.GetByID(ctx, traceGroupID, domain.KindTraceGroup, "")
		if err != nil {
			return nil, err
		}
		if group == nil {
			return dataFailure(analyticsID, fmt.Sprintf("No trace group found with id %s", traceGroupID)), nil
		}
		traceIDs = group.(*domain.TraceGroup).TracesIDs
	}

	var allIssues []*domain.Issue
	for _, id := range traceIDs {
		tasks, err := dm.GetTasksForTrace(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			continue
		}
		detector := newCycleSearch(tasks)
		cycles := detector.maximalCyclesWithRepeatedNames(int(minOccurrences))
		allIssues = append(allIssues, issuesForCycles(cycles, id, analyticsID)...)
	}

	if len(allIssues) > 0 {
		elems := make([]domain.Element, len(allIssues))
		for i, issue := range allIssues {
			elems[i] = issue
		}
		if _, err := dm.BulkStore(ctx, elems, true); err != nil {
			return nil, fmt.Errorf("store issues: %w", err)
		}
	}

	output := map[string]any{
		"issues":        issuesToMaps(allIssues),
		"new_issues_id": issueIDs(allIssues),
	}
	if traceGroupID != "" {
		output["trace_group_id"] = traceGroupID
	} else {
		output["trace_id"] = traceID
	}
	return successResult(analyticsID, output), nil
}

// cycleSearch enumerates simple paths of the dependency graph.
type cycleSearch struct {
	tasks map[string]*domain.Task
	order []string
}

func newCycleSearch(tasks []*domain.Task) *cycleSearch {
	s := &cycleSearch{tasks: make(map[string]*domain.Task, len(tasks))}
	for _, task := range tasks {
		s.tasks[task.ElementID] = task
		s.order = append(s.order, task.ElementID)
	}
	sort.Strings(s.order)
	return s
}

// shortTaskName extracts the part after ':' when present; task names like
// "0.2.0.3:validate" collapse onto "validate".
func shortTaskName(fullName string) string {
	if idx := strings.Index(fullName, ":"); idx >= 0 {
		return fullName[idx+1:]
	}
	return fullName
}

// collectPaths walks every simple path from startID along DependentIDs,
// recording closed paths (cycles) and exhausted ones.
func (s *cycleSearch) collectPaths(startID string, path []string, visited map[string]bool, out *[][]string) {
	if len(path) > maxCycleSearchDepth {
		return
	}
	path = append(path, startID)
	visited[startID] = true

	task := s.tasks[startID]
	deps := task.DependentIDs
	if len(deps) == 0 {
		snapshot := make([]string, len(path))
		copy(snapshot, path)
		*out = append(*out, snapshot)
	} else {
		for _, depID := range deps {
			if _, known := s.tasks[depID]; !known {
				continue
			}
			if !visited[depID] {
				nextVisited := make(map[string]bool, len(visited))
				for id := range visited {
					nextVisited[id] = true
				}
				nextPath := make([]string, len(path))
				copy(nextPath, path)
				s.collectPaths(depID, nextPath, nextVisited, out)
			} else {
				// Closed the loop: keep the cyclic tail plus the repeat.
				for i, id := range path {
					if id == depID {
						cycle := make([]string, 0, len(path)-i+1)
						cycle = append(cycle, path[i:]...)
						cycle = append(cycle, depID)
						*out = append(*out, cycle)
						break
					}
				}
			}
		}
	}

	delete(visited, startID)
}

// maximalCyclesWithRepeatedNames returns cycles in which at least one
// short task name appears minOccurrences times, filtered so that no
// returned cycle is a proper subsequence of another.
func (s *cycleSearch) maximalCyclesWithRepeatedNames(minOccurrences int) [][]*domain.Task {
	var paths [][]string
	for _, id := range s.order {
		s.collectPaths(id, nil, make(map[string]bool), &paths)
	}

	var cycles [][]*domain.Task
	seen := make(map[string]bool)
	for _, path := range paths {
		if len(path) < 2 {
			continue
		}
		// A closed path ends by repeating its first task; each member is
		// counted and reported once.
		if path[0] == path[len(path)-1] {
			path = path[:len(path)-1]
		}
		nameCounts := make(map[string]int)
		for _, id := range path {
			if task, ok := s.tasks[id]; ok {
				nameCounts[shortTaskName(task.Name)]++
			}
		}
		repeated := false
		for _, count := range nameCounts {
			if count >= minOccurrences {
				repeated = true
				break
			}
		}
		if !repeated {
			continue
		}

		tasks := make([]*domain.Task, 0, len(path))
		for _, id := range path {
			if task, ok := s.tasks[id]; ok {
				tasks = append(tasks, task)
			}
		}
		signature := cycleSignature(tasks)
		if seen[signature] {
			continue
		}
		seen[signature] = true
		cycles = append(cycles, tasks)
	}

	return filterMaximalCycles(cycles)
}

func cycleSignature(tasks []*domain.Task) string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ElementID)
	}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// filterMaximalCycles drops every cycle contained as a subsequence of a
// strictly larger one.
func filterMaximalCycles(cycles [][]*domain.Task) [][]*domain.Task {
	var maximal [][]*domain.Task
	for i, candidate := range cycles {
		contained := false
		for j, other := range cycles {
			if i == j {
				continue
			}
			if len(candidate) < len(other) && isSubsequence(candidate, other) {
				contained = true
				break
			}
		}
		if !contained {
			maximal = append(maximal, candidate)
		}
	}
	return maximal
}

// isSubsequence reports whether a's task ids appear in b in order,
// possibly with other tasks between them.
func isSubsequence(a, b []*domain.Task) bool {
	idx := 0
	for _, task := range b {
		if idx < len(a) && task.ElementID == a[idx].ElementID {
			idx++
			if idx == len(a) {
				return true
			}
		}
	}
	return idx == len(a)
}

// issuesForCycles creates one WARNING issue per cycle, related to the
// cycle's first task and listing the member task names as effect.
func issuesForCycles(cycles [][]*domain.Task, traceID, analyticsID string) []*domain.Issue {
	issues := make([]*domain.Issue, 0, len(cycles))
	for i, cycle := range cycles {
		sorted := make([]*domain.Task, len(cycle))
		copy(sorted, cycle)
		sort.Slice(sorted, func(a, b int) bool {
			return strings.ToLower(sorted[a].Name) < strings.ToLower(sorted[b].Name)
		})

		earliest := sorted[0].StartTime
		for _, task := range sorted {
			if task.StartTime.Before(earliest) {
				earliest = task.StartTime
			}
		}

		var description strings.Builder
		description.WriteString("There exists a cycle in system execution, starting from this task forward - some tasks may run more times than expected.\n")
		description.WriteString("The cycle contains the following tasks:\n")
		effect := make([]string, 0, len(sorted))
		for _, task := range sorted {
			fmt.Fprintf(&description, "\t%s (ID: %s)\n", task.Name, task.ElementID)
			effect = append(effect, task.Name)
		}

		issue := domain.NewIssue(traceID, fmt.Sprintf("Cycle Detection Issue: cycle_no.%d", i+1), domain.IssueLevelWarning)
		issue.Description = description.String()
		issue.PluginMetadataID = analyticsID
		issue.Timestamp = earliest
		issue.Effect = effect
		issue.AddRelatedTo(sorted[0].ElementID, domain.KindTask)
		issues = append(issues, issue)
	}
	return issues
}
