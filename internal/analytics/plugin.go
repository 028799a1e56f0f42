package analytics

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// ExecutionStatus is the state of one plugin execution.
type ExecutionStatus string

const (
	StatusSuccess       ExecutionStatus = "success"
	StatusFailure       ExecutionStatus = "failure"
	StatusInProgress    ExecutionStatus = "in_progress"
	StatusTimeout       ExecutionStatus = "timeout"
	StatusInvalidConfig ExecutionStatus = "invalid_config"
)

// Error type names used in execution results; HTTP mapping keys off them.
const (
	ErrTypeInput             = "InputError"
	ErrTypeData              = "DataError"
	ErrTypeDependencyFailure = "DependencyFailure"
	ErrTypeProcessing        = "ProcessingError"
	ErrTypeValidation        = "ValidationError"
)

// ExecutionError is the structured error carried by a failed execution.
type ExecutionError struct {
	ErrorType  string         `json:"error_type" bson:"error_type"`
	Message    string         `json:"message" bson:"message"`
	Timestamp  time.Time      `json:"timestamp" bson:"timestamp"`
	Stacktrace string         `json:"stacktrace,omitempty" bson:"stacktrace,omitempty"`
	Details    map[string]any `json:"details,omitempty" bson:"details,omitempty"`
}

// NewExecutionError builds a typed execution error.
func NewExecutionError(errType, message string) *ExecutionError {
	return &ExecutionError{
		ErrorType: errType,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// ExecutionErrorFrom wraps a Go error, capturing the current stack.
func ExecutionErrorFrom(err error) *ExecutionError {
	e := NewExecutionError(ErrTypeProcessing, err.Error())
	e.Stacktrace = string(debug.Stack())
	return e
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

// ExecutionResult records one plugin execution. Successful results must
// carry a non-empty output.
type ExecutionResult struct {
	domain.ElementHeader `bson:",inline"`

	ResultID      string          `json:"result_id" bson:"result_id"`
	AnalyticsID   string          `json:"analytics_id" bson:"analytics_id"`
	Status        ExecutionStatus `json:"status" bson:"status"`
	Error         *ExecutionError `json:"error,omitempty" bson:"error,omitempty"`
	ExecutionTime float64         `json:"execution_time,omitempty" bson:"execution_time,omitempty"`
	StartTime     time.Time       `json:"start_time" bson:"start_time"`
	EndTime       *time.Time      `json:"end_time,omitempty" bson:"end_time,omitempty"`
	ConfigUsed    map[string]any  `json:"config_used,omitempty" bson:"config_used,omitempty"`
	InputDataUsed map[string]any  `json:"input_data_used,omitempty" bson:"input_data_used,omitempty"`
	OutputResult  map[string]any  `json:"output_result,omitempty" bson:"output_result,omitempty"`
}

// NewExecutionResult stamps the start time and derives the result id:
// {analytics_id}_{start_time_with_microseconds}.
func NewExecutionResult(analyticsID string, status ExecutionStatus) *ExecutionResult {
	start := time.Now().UTC()
	resultID := fmt.Sprintf("%s_%s", analyticsID, start.Format("20060102150405.000000"))
	return &ExecutionResult{
		ElementHeader: domain.ElementHeader{
			ElementID: resultID,
			Type:      domain.KindExecutionResult,
		},
		ResultID:    resultID,
		AnalyticsID: analyticsID,
		Status:      status,
		StartTime:   start,
	}
}

// FailureResult builds a FAILURE result carrying the given error.
func FailureResult(analyticsID string, execErr *ExecutionError) *ExecutionResult {
	r := NewExecutionResult(analyticsID, StatusFailure)
	r.Error = execErr
	return r
}

// Complete stamps the execution time and end time.
func (r *ExecutionResult) Complete(executionTime float64) {
	end := time.Now().UTC()
	r.ExecutionTime = executionTime
	r.EndTime = &end
}

// Validate enforces the success/output contract.
func (r *ExecutionResult) Validate() error {
	if r.Status == StatusSuccess && len(r.OutputResult) == 0 {
		return fmt.Errorf("output_result must be non-empty when status is %s", StatusSuccess)
	}
	if r.Status != StatusSuccess && r.Status != StatusInProgress && r.Error == nil {
		return fmt.Errorf("error must be set when status is %s", r.Status)
	}
	return nil
}

// Plugin is the contract every analytics implementation satisfies. The
// engine validates input against InputSpec before Execute and records the
// declared OutputSpec fields for downstream dependency validation.
type Plugin interface {
	InputSpec() IOSpec
	OutputSpec() IOSpec
	Execute(ctx context.Context, analyticsID string, dm ports.DataManager, input map[string]any, config map[string]any) (*ExecutionResult, error)
}

// PluginFactory constructs a fresh plugin instance per execution.
type PluginFactory func() Plugin

// Catalog resolves runtime-config plugin names to in-process
// implementations. It replaces dynamic module loading: a name must resolve
// to exactly one concrete plugin.
type Catalog struct {
	factories map[string]PluginFactory
}

// NewCatalog returns an empty plugin catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]PluginFactory)}
}

// Register adds a plugin implementation under its catalog name.
func (c *Catalog) Register(name string, factory PluginFactory) error {
	if _, exists := c.factories[name]; exists {
		return fmt.Errorf("plugin %q already registered in catalog", name)
	}
	c.factories[name] = factory
	return nil
}

// Resolve returns a fresh plugin instance for the catalog name.
func (c *Catalog) Resolve(name string) (Plugin, error) {
	factory, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("no plugin implementation registered for %q", name)
	}
	return factory(), nil
}

// Has reports whether the catalog knows the name.
func (c *Catalog) Has(name string) bool {
	_, ok := c.factories[name]
	return ok
}
