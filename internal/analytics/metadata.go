// Package analytics holds the plugin contract, the registry of plugin
// metadata with its validation rules, and the execution engine that builds
// and runs per-request DAGs.
package analytics

import (
	"fmt"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

// FieldType restricts the types usable in plugin input/output specs.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldAny     FieldType = "any"
)

// FieldSpec describes one input or output field of a plugin.
type FieldSpec struct {
	Name        string     `json:"name"`
	Type        FieldType  `json:"type"`
	Required    bool       `json:"required"`
	Description string     `json:"description"`
	ArrayType   *FieldType `json:"array_type,omitempty"`
	Default     any        `json:"default,omitempty"`
}

// Validate checks the structural rules of a single field spec.
func (f FieldSpec) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("field spec without a name")
	}
	if f.Type == FieldArray && f.ArrayType == nil {
		return fmt.Errorf("array field %s must specify array_type", f.Name)
	}
	if f.Default != nil {
		if err := checkValueType(f.Default, f.Type, f.ArrayType); err != nil {
			return fmt.Errorf("default value for field %s: %w", f.Name, err)
		}
	}
	return nil
}

// checkValueType verifies a runtime value against a declared field type.
// JSON decoding produces float64 for every number, so integer checks accept
// whole floats.
func checkValueType(value any, t FieldType, arrayType *FieldType) error {
	switch t {
	case FieldAny:
		return nil
	case FieldString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case FieldInteger:
		switch n := value.(type) {
		case int, int32, int64:
		case float64:
			if n != float64(int64(n)) {
				return fmt.Errorf("expected integer, got fractional %v", n)
			}
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case FieldFloat:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("expected float, got %T", value)
		}
	case FieldArray:
		items, ok := anySlice(value)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		if arrayType != nil {
			for i, item := range items {
				if err := checkValueType(item, *arrayType, nil); err != nil {
					return fmt.Errorf("element %d: %w", i, err)
				}
			}
		}
	default:
		return fmt.Errorf("unknown field type %q", t)
	}
	return nil
}

func anySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

// compatible reports whether a value of type `from` can feed a field
// declared as `to`.
func compatible(from, to FieldType) bool {
	if from == to || to == FieldAny || from == FieldAny {
		return true
	}
	// Integers widen into floats.
	return from == FieldInteger && to == FieldFloat
}

// IOSpec is the ordered list of fields a plugin consumes or produces.
type IOSpec struct {
	Fields []FieldSpec `json:"fields"`
}

// FieldNames lists the declared field names in order.
func (s IOSpec) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the spec for a name, if declared.
func (s IOSpec) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Validate checks the spec: at least one field, unique names, well-formed
// field specs.
func (s IOSpec) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("io spec must contain at least one field")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name found: %s", f.Name)
		}
		seen[f.Name] = true
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Status is the lifecycle status of a registered plugin.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// RuntimeType selects the plugin runtime. Plugins run in-process.
type RuntimeType string

const RuntimeGo RuntimeType = "GO"

// RuntimeConfigKeyPlugin is the runtime config key naming the catalog
// entry that implements the plugin.
const RuntimeConfigKeyPlugin = "plugin_name"

// RuntimeConfig locates the plugin implementation.
type RuntimeConfig struct {
	Type   RuntimeType       `json:"type"`
	Config map[string]string `json:"config"`
}

// ControllerConfig declares the two directed dependency edges of a plugin:
// dependsOn plugins must finish before it, triggered plugins start after it.
type ControllerConfig struct {
	DependsOn []string `json:"dependsOn"`
	Triggers  []string `json:"triggers"`
}

// TemplateConfig bundles runtime, controller, defaults and io specs.
type TemplateConfig struct {
	Runtime    RuntimeConfig    `json:"runtime"`
	Controller ControllerConfig `json:"controller"`
	Config     map[string]any   `json:"config,omitempty"`
	InputSpec  *IOSpec          `json:"input_spec,omitempty"`
	OutputSpec *IOSpec          `json:"output_spec,omitempty"`
}

// Metadata is the registered description of one analytics plugin.
type Metadata struct {
	domain.ElementHeader `bson:",inline"`

	ID        string         `json:"id" bson:"id"`
	Version   string         `json:"version" bson:"version"`
	Owner     string         `json:"owner" bson:"owner"`
	Status    Status         `json:"status" bson:"status"`
	Template  TemplateConfig `json:"template" bson:"template"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" bson:"updated_at"`
}

// NewMetadata builds registry metadata with the header wired for storage.
func NewMetadata(id, name, version, owner string) *Metadata {
	now := time.Now().UTC()
	return &Metadata{
		ElementHeader: domain.ElementHeader{
			ElementID: id,
			Type:      domain.KindAnalytics,
			Name:      name,
		},
		ID:        id,
		Version:   version,
		Owner:     owner,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PluginName resolves the catalog entry named by the runtime config.
func (m *Metadata) PluginName() (string, error) {
	name := m.Template.Runtime.Config[RuntimeConfigKeyPlugin]
	if name == "" {
		return "", fmt.Errorf("runtime configuration is missing %q", RuntimeConfigKeyPlugin)
	}
	return name, nil
}

// Equals compares the identity-defining parts of two metadata records.
func (m *Metadata) Equals(other *Metadata) bool {
	if other == nil {
		return false
	}
	return m.ID == other.ID &&
		m.Name == other.Name &&
		m.Version == other.Version &&
		m.Template.Runtime.Config[RuntimeConfigKeyPlugin] == other.Template.Runtime.Config[RuntimeConfigKeyPlugin] &&
		equalStrings(m.Template.Controller.DependsOn, other.Template.Controller.DependsOn) &&
		equalStrings(m.Template.Controller.Triggers, other.Template.Controller.Triggers)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
