package plugins

import (
	"encoding/json"

	"github.com/AgentToolkit/agent-mentor/internal/analytics"
	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

func fieldTypePtr(t analytics.FieldType) *analytics.FieldType { return &t }

// stringSlice tolerates the []any form JSON decoding produces alongside
// native []string inputs.
func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// intConfig reads an integer config value across the encodings configs
// arrive in (JSON floats, strings are not accepted).
func intConfig(config map[string]any, key string) (int64, bool) {
	v, ok := config[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// floatConfig reads a float config value.
func floatConfig(config map[string]any, key string) (float64, bool) {
	v, ok := config[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringConfig(config map[string]any, key string) (string, bool) {
	v, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// elementToMap serializes an element into its stored document form.
func elementToMap(e domain.Element) map[string]any {
	raw, err := json.Marshal(e)
	if err != nil {
		return map[string]any{"element_id": e.Header().ElementID}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"element_id": e.Header().ElementID}
	}
	return out
}

func tasksToMaps(tasks []*domain.Task) []any {
	out := make([]any, len(tasks))
	for i, t := range tasks {
		out[i] = elementToMap(t)
	}
	return out
}

func actionsToMaps(actions []*domain.Action) []any {
	out := make([]any, len(actions))
	for i, a := range actions {
		out[i] = elementToMap(a)
	}
	return out
}

func issuesToMaps(issues []*domain.Issue) []any {
	out := make([]any, len(issues))
	for i, issue := range issues {
		out[i] = elementToMap(issue)
	}
	return out
}

func issueIDs(issues []*domain.Issue) []any {
	out := make([]any, len(issues))
	for i, issue := range issues {
		out[i] = issue.ElementID
	}
	return out
}

// successResult builds a SUCCESS execution result with the given output.
func successResult(analyticsID string, output map[string]any) *analytics.ExecutionResult {
	result := analytics.NewExecutionResult(analyticsID, analytics.StatusSuccess)
	result.OutputResult = output
	return result
}

// inputFailure builds an InputError failure result.
func inputFailure(analyticsID, message string) *analytics.ExecutionResult {
	return analytics.FailureResult(analyticsID,
		analytics.NewExecutionError(analytics.ErrTypeInput, message))
}

// dataFailure builds a DataError failure result.
func dataFailure(analyticsID, message string) *analytics.ExecutionResult {
	return analytics.FailureResult(analyticsID,
		analytics.NewExecutionError(analytics.ErrTypeData, message))
}
