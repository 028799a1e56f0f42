package plugins

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// changeDirection restricts which side of a level shift raises an issue.
type changeDirection string

const (
	changeUp   changeDirection = "up"
	changeDown changeDirection = "down"
	changeBoth changeDirection = "both"
)

// watchedMetric is one metric series inspected for change points.
type watchedMetric struct {
	key       string
	label     string
	direction changeDirection
}

// defaultWatchedMetrics are the root-task metrics scanned by default.
var defaultWatchedMetrics = []watchedMetric{
	{"num_input_tokens", "number of input tokens", changeUp},
	{"num_output_tokens", "number of output tokens", changeUp},
	{"llm_calls", "number of LLM calls", changeUp},
	{"tool_calls", "number of tool calls", changeUp},
	{"execution_time", "execution time", changeUp},
}

const (
	defaultMinObservations = 10
	defaultWindowMax       = 10
	defaultChangeRatio     = 0.5
)

// ChangePointDetector runs PELT change-point detection over root-task
// metric series of a trace group and emits an issue for every level shift
// whose relative change exceeds the configured bound in the configured
// direction.
type ChangePointDetector struct{}

func NewChangePointDetector() *ChangePointDetector { return &ChangePointDetector{} }

func (p *ChangePointDetector) InputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_group_id", Type: analytics.FieldString, Required: true, Description: "ID of trace group"},
		{Name: "metrics_list", Type: analytics.FieldArray, Required: false, Description: "Metric series to inspect as [key, label, direction] triples", ArrayType: fieldTypePtr(analytics.FieldAny)},
		{Name: "min_observations", Type: analytics.FieldInteger, Required: false, Description: "Minimum number of traces required"},
		{Name: "window_max", Type: analytics.FieldInteger, Required: false, Description: "Maximum window around a change point"},
		{Name: "change_ratio_bound", Type: analytics.FieldFloat, Required: false, Description: "Relative change threshold"},
	}}
}

func (p *ChangePointDetector) OutputSpec() analytics.IOSpec {
	return analytics.IOSpec{Fields: []analytics.FieldSpec{
		{Name: "trace_group_id", Type: analytics.FieldString, Required: true, Description: "Id of the trace group this analytic was run on"},
		{Name: "detected_issues_id", Type: analytics.FieldArray, Required: false, Description: "Element ids of the detected issues", ArrayType: fieldTypePtr(analytics.FieldString)},
	}}
}

func (p *ChangePointDetector) Execute(ctx context.Context, analyticsID string, dm ports.DataManager, input map[string]any, config map[string]any) (*analytics.ExecutionResult, error) {
	traceGroupID, _ := input["trace_group_id"].(string)
	if traceGroupID == "" {
		return inputFailure(analyticsID, "trace_group_id must be provided"), nil
	}

	groupElem, err := dm.GetByID(ctx, traceGroupID, domain.KindTraceGroup, "")
	if err != nil {
		return nil, err
	}
	if groupElem == nil {
		return inputFailure(analyticsID, "The trace group for the provided trace_group_id doesn't exist"), nil
	}
	group := groupElem.(*domain.TraceGroup)
	if len(group.TracesIDs) == 0 {
		return inputFailure(analyticsID, "No traces for the provided trace group id exists"), nil
	}

	minObservations := int64(defaultMinObservations)
	if v, ok := intConfig(config, "min_observations"); ok {
		minObservations = v
	}
	windowMax := int64(defaultWindowMax)
	if v, ok := intConfig(config, "window_max"); ok {
		windowMax = v
	}
	changeRatioBound := defaultChangeRatio
	if v, ok := floatConfig(config, "change_ratio_bound"); ok {
		changeRatioBound = v
	}
	watched := parseWatchedMetrics(input["metrics_list"])

	// One observation per trace: its root task carries the aggregated
	// metrics.
	var observations []rootObservation
	for _, traceID := range group.TracesIDs {
		tasks, err := dm.GetTasksForTrace(ctx, traceID)
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			if task.ParentID != "" {
				continue
			}
			observations = append(observations, rootObservation{
				traceID: task.LogReference.TraceID,
				start:   task.StartTime,
				end:     task.EndTime,
				metrics: task.Metrics,
			})
		}
	}
	if len(observations) == 0 {
		return dataFailure(analyticsID, "No tasks found for provided trace_id(s)"), nil
	}
	if int64(len(observations)) < minObservations {
		return inputFailure(analyticsID, fmt.Sprintf(
			"Number of traces is too small for analytics. Minimal number of traces is %d", minObservations)), nil
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].start.Before(observations[j].start)
	})

	issues := detectChangePoints(observations, watched, traceGroupID, group.Name, analyticsID,
		int(windowMax), changeRatioBound)

	if len(issues) > 0 {
		elems := make([]domain.Element, len(issues))
		for i, issue := range issues {
			elems[i] = issue
		}
		if _, err := dm.BulkStore(ctx, elems, true); err != nil {
			return nil, fmt.Errorf("store issues: %w", err)
		}
	}

	return successResult(analyticsID, map[string]any{
		"trace_group_id":     traceGroupID,
		"detected_issues_id": issueIDs(issues),
	}), nil
}

type rootObservation struct {
	traceID string
	start   time.Time
	end     time.Time
	metrics map[string]float64
}

func parseWatchedMetrics(v any) []watchedMetric {
	raw, ok := v.([]any)
	if !ok || len(raw) == 0 {
		return defaultWatchedMetrics
	}
	var out []watchedMetric
	for _, item := range raw {
		triple, ok := item.([]any)
		if !ok || len(triple) < 3 {
			continue
		}
		key, _ := triple[0].(string)
		label, _ := triple[1].(string)
		direction, _ := triple[2].(string)
		if key == "" {
			continue
		}
		out = append(out, watchedMetric{key: key, label: label, direction: changeDirection(direction)})
	}
	if len(out) == 0 {
		return defaultWatchedMetrics
	}
	return out
}

// detectChangePoints runs PELT per watched metric and converts qualifying
// level shifts into issues.
func detectChangePoints(observations []rootObservation, watched []watchedMetric, groupID, groupName, analyticsID string, windowMax int, changeRatioBound float64) []*domain.Issue {
	var issues []*domain.Issue
	n := len(observations)

	for _, metric := range watched {
		series := make([]float64, n)
		complete := true
		for i, obs := range observations {
			value, ok := obs.metrics[metric.key]
			if !ok {
				complete = false
				break
			}
			series[i] = value
		}
		if !complete {
			continue
		}

		changePoints := peltGaussianMean(series)
		for j, cp := range changePoints {
			intervalStart := maxInt(0, cp-windowMax)
			if j > 0 {
				intervalStart = maxInt(intervalStart, changePoints[j-1]+1)
			}
			intervalEnd := minInt(n, cp+windowMax)
			if j < len(changePoints)-1 {
				intervalEnd = minInt(intervalEnd, changePoints[j+1])
			}

			levelBefore, okBefore := meanOf(series, intervalStart, cp)
			levelAfter, okAfter := meanOf(series, cp, intervalEnd)
			if !okBefore || !okAfter {
				continue
			}

			delta := math.Abs(levelBefore - levelAfter)
			if delta == 0 {
				continue
			}
			percent, percentComputed := relativeChangePercent(levelAfter, levelBefore)
			if percentComputed && percent <= changeRatioBound*100 {
				continue
			}
			if !directionMatches(metric.direction, levelBefore, levelAfter) {
				continue
			}

			issues = append(issues, changeIssue(
				metric, observations[cp], groupID, groupName, analyticsID,
				levelBefore, levelAfter, delta, percent, percentComputed))
		}
	}
	return issues
}

func changeIssue(metric watchedMetric, at rootObservation, groupID, groupName, analyticsID string, levelBefore, levelAfter, delta, percent float64, percentComputed bool) *domain.Issue {
	noun, verb := "Increase ", " increased by "
	direction := string(changeUp)
	if levelAfter < levelBefore {
		noun, verb = "Decrease ", " decreased by "
		direction = string(changeDown)
	}

	sentence := fmt.Sprintf("The metric value%s%.1f", verb, delta)
	if percentComputed {
		sentence += fmt.Sprintf(" and by %.1f%%. ", percent)
	} else {
		sentence += ". "
	}
	description := fmt.Sprintf(
		"Change in %s is detected at time %s for trace group %s. %sAverage metric level before change: %.1f. Average metric level after change: %.1f.",
		metric.label, at.end.Format("2006-01-02 15:04:05"), groupName,
		sentence, levelBefore, levelAfter)

	issue := domain.NewIssue(groupID, "Change detection: "+noun+"in "+metric.label, domain.IssueLevelWarning)
	issue.ElementID = fmt.Sprintf("Issue:Change:%s%s", metric.key, at.traceID)
	issue.Description = description
	issue.PluginMetadataID = analyticsID
	issue.Timestamp = at.end
	issue.Effect = []string{
		"Calculation is performed for trace group " + groupName,
		"Change in " + metric.label + " is detected at trace " + at.traceID,
	}
	issue.SetAttribute("direction", direction)
	issue.SetAttribute("level_before", levelBefore)
	issue.SetAttribute("level_after", levelAfter)
	issue.AddRelatedTo(groupID, domain.KindTraceGroup)
	issue.AddRelatedTo(at.traceID, domain.KindTrace)
	return issue
}

// meanOf averages series[start:end); windows of fewer than two samples are
// rejected.
func meanOf(series []float64, start, end int) (float64, bool) {
	if end-start <= 1 {
		return 0, false
	}
	sum := 0.0
	for i := start; i < end; i++ {
		sum += series[i]
	}
	return sum / float64(end-start), true
}

// relativeChangePercent is the absolute change relative to the level
// before, as a percentage. Not computable for non-positive baselines.
func relativeChangePercent(after, before float64) (float64, bool) {
	if before > 0 && after >= 0 {
		return math.Abs(math.Round((after-before)/before*1000) / 10), true
	}
	return 0, false
}

func directionMatches(direction changeDirection, before, after float64) bool {
	switch direction {
	case changeUp:
		return after > before
	case changeDown:
		return after < before
	default:
		return true
	}
}

// peltGaussianMean runs PELT with a Gaussian mean-shift cost, the variance
// estimated from the whole series, and a BIC-style penalty. Returned
// indices are segment starts of the post-change regime, in order.
func peltGaussianMean(series []float64) []int {
	n := len(series)
	if n < 4 {
		return nil
	}
	stdev := stddev(series)
	if stdev == 0 {
		return nil
	}
	variance := stdev * stdev
	penalty := 2 * math.Log(float64(n))

	// Prefix sums for O(1) segment costs.
	sum := make([]float64, n+1)
	sumSq := make([]float64, n+1)
	for i, v := range series {
		sum[i+1] = sum[i] + v
		sumSq[i+1] = sumSq[i] + v*v
	}
	segCost := func(s, t int) float64 {
		length := float64(t - s)
		segSum := sum[t] - sum[s]
		return (sumSq[t] - sumSq[s] - segSum*segSum/length) / variance
	}

	f := make([]float64, n+1)
	f[0] = -penalty
	prev := make([]int, n+1)
	candidates := []int{0}

	for t := 1; t <= n; t++ {
		best := math.Inf(1)
		bestS := 0
		for _, s := range candidates {
			cost := f[s] + segCost(s, t) + penalty
			if cost < best {
				best = cost
				bestS = s
			}
		}
		f[t] = best
		prev[t] = bestS

		// Prune candidates that can never become optimal again.
		var kept []int
		for _, s := range candidates {
			if f[s]+segCost(s, t) <= f[t] {
				kept = append(kept, s)
			}
		}
		candidates = append(kept, t)
	}

	// Backtrack the optimal segmentation.
	var changePoints []int
	for t := n; t > 0; t = prev[t] {
		if prev[t] > 0 {
			changePoints = append(changePoints, prev[t])
		}
	}
	sort.Ints(changePoints)
	return changePoints
}

func stddev(series []float64) float64 {
	n := float64(len(series))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range series {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / n)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
